package query

import (
	"facility-calls-backend/internal/model"
)

// Order sorts by one scalar field.
type Order struct {
	Field string
	Desc  bool
}

func Asc(field string) Order  { return Order{Field: field} }
func Desc(field string) Order { return Order{Field: field, Desc: true} }

// Shape selects which fields and relations a read returns. Select and Include are mutually
// exclusive, as are Select and Omit. Select may name relations, which are then loaded too.
type Shape struct {
	Select  []string
	Include []string
	Omit    []string
}

// FindArgs are the arguments of findMany and findFirst.
type FindArgs struct {
	Where   Filter
	OrderBy []Order
	// Cursor is a unique key of the row the page starts from. The cursor row is part of the page.
	Cursor Key
	// Take limits the page size. A negative value takes rows before the cursor.
	Take     *int
	Skip     int
	Distinct []string
	Shape    Shape
}

// Limit is a helper for FindArgs.Take.
func Limit(n int) *int { return &n }

// Resolved is a validated Shape.
type Resolved struct {
	Columns   []string // nil means every column
	Omit      []string
	Relations []*model.Relation
}

// ResolveShape validates s against e.
func ResolveShape(e *model.Entity, s Shape) (Resolved, error) {
	if len(s.Select) > 0 && len(s.Include) > 0 {
		return Resolved{}, invalid("select and include cannot be combined")
	}
	if len(s.Select) > 0 && len(s.Omit) > 0 {
		return Resolved{}, invalid("select and omit cannot be combined")
	}

	var out Resolved
	if len(s.Select) > 0 {
		seen := map[string]bool{}
		add := func(col string) {
			if !seen[col] {
				seen[col] = true
				out.Columns = append(out.Columns, col)
			}
		}
		add("id")
		for _, name := range s.Select {
			if f, ok := e.Field(name); ok {
				add(f.Column)
				continue
			}
			r, ok := e.Relation(name)
			if !ok {
				return Resolved{}, invalid("%s has no field or relation %q", e.Name, name)
			}
			if !r.Many {
				add(r.LocalColumn)
			}
			out.Relations = append(out.Relations, r)
		}
	}
	for _, name := range s.Include {
		r, ok := e.Relation(name)
		if !ok {
			return Resolved{}, invalid("%s has no relation %q", e.Name, name)
		}
		out.Relations = append(out.Relations, r)
	}
	for _, name := range s.Omit {
		f, ok := e.Field(name)
		if !ok {
			return Resolved{}, invalid("%s has no field %q", e.Name, name)
		}
		if f.Name == "id" {
			return Resolved{}, invalid("id cannot be omitted")
		}
		out.Omit = append(out.Omit, f.Column)
	}
	return out, nil
}

// ResolveKey checks that k names exactly one unique field combination of e.
func ResolveKey(e *model.Entity, k Key) error {
	if len(k) == 0 {
		return invalid("empty %s key", e.Name)
	}
	if _, ok := e.UniqueKey(k.Fields()); !ok {
		return invalid("%v is not a unique key of %s", k.Fields(), e.Name)
	}
	for _, name := range k.Fields() {
		f, _ := e.Field(name)
		if k[name] == nil {
			return invalid("%s key field %q is nil", e.Name, name)
		}
		if err := model.CheckValue(f, k[name]); err != nil {
			return invalid("%v", err)
		}
	}
	return nil
}

// ResolveOrder validates the orders and appends the id tiebreak when missing.
func ResolveOrder(e *model.Entity, orders []Order) ([]Order, error) {
	out := make([]Order, 0, len(orders)+1)
	hasID := false
	for _, o := range orders {
		if _, ok := e.Field(o.Field); !ok {
			return nil, invalid("cannot order %s by unknown field %q", e.Name, o.Field)
		}
		if o.Field == "id" {
			hasID = true
		}
		out = append(out, o)
	}
	if !hasID {
		out = append(out, Asc("id"))
	}
	return out, nil
}

// Reverse flips every sort direction.
func Reverse(orders []Order) []Order {
	out := make([]Order, len(orders))
	for i, o := range orders {
		out[i] = Order{Field: o.Field, Desc: !o.Desc}
	}
	return out
}

// Seek returns the filter selecting the cursor row and every row after it in the given order.
// values holds the cursor row's value for each ordered field. Null sorts after every value,
// matching the order OrderBy renders.
func Seek(e *model.Entity, orders []Order, values map[string]any) (Filter, error) {
	same := make([]Filter, 0, len(orders))
	branches := make([]Filter, 0, len(orders)+1)
	for _, o := range orders {
		f, ok := e.Field(o.Field)
		if !ok {
			return nil, invalid("cannot order %s by unknown field %q", e.Name, o.Field)
		}
		v := model.Normalize(values[o.Field])
		if v == nil && !f.Nullable {
			return nil, invalid("cursor row has no value for ordered field %q", o.Field)
		}

		var after Filter
		switch {
		case v == nil && o.Desc:
			after = Ne(o.Field, nil)
		case v == nil:
			// nothing sorts after null ascending
		case o.Desc:
			after = Lt(o.Field, v)
		case f.Nullable:
			after = Or(Gt(o.Field, v), Eq(o.Field, nil))
		default:
			after = Gt(o.Field, v)
		}
		if after != nil {
			conds := make([]Filter, 0, len(same)+1)
			conds = append(conds, same...)
			branches = append(branches, And(append(conds, after)...))
		}
		same = append(same, Eq(o.Field, v))
	}
	branches = append(branches, And(same...))
	return Or(branches...), nil
}
