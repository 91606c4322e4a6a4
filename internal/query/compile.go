package query

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm/clause"

	"facility-calls-backend/internal/model"
)

const likeEscape = '!'

// compiler renders a filter tree into one SQL fragment with positional variables.
// Columns travel as clause.Column variables so the dialect quotes them.
type compiler struct {
	sql     strings.Builder
	vars    []any
	aliases int
	// having is set while compiling groupBy having clauses, where fields may be
	// aggregate references.
	having *havingScope
}

// Where compiles f against entity e. The top-level table is referenced by its table name.
// A nil filter matches every row.
func Where(e *model.Entity, f Filter) (clause.Expr, error) {
	c := &compiler{}
	if err := c.filter(e, e.Table, f); err != nil {
		return clause.Expr{}, err
	}
	return clause.Expr{SQL: c.sql.String(), Vars: c.vars}, nil
}

func (c *compiler) write(parts ...string) {
	for _, p := range parts {
		c.sql.WriteString(p)
	}
}

func (c *compiler) column(alias, name string) {
	c.sql.WriteByte('?')
	c.vars = append(c.vars, clause.Column{Table: alias, Name: name})
}

func (c *compiler) value(v any) {
	c.sql.WriteByte('?')
	c.vars = append(c.vars, v)
}

func (c *compiler) filter(e *model.Entity, alias string, f Filter) error {
	switch f := f.(type) {
	case nil:
		c.write("1=1")
	case Cond:
		return c.cond(e, alias, f)
	case *Cond:
		return c.cond(e, alias, *f)
	case AndFilter:
		return c.join(e, alias, f.Filters, " AND ", "1=1")
	case OrFilter:
		return c.join(e, alias, f.Filters, " OR ", "1=0")
	case NotFilter:
		if len(f.Filters) == 0 {
			c.write("1=1")
			return nil
		}
		c.write("NOT (")
		if err := c.join(e, alias, f.Filters, " OR ", "1=0"); err != nil {
			return err
		}
		c.write(")")
	case RelationFilter:
		return c.relation(e, alias, f)
	default:
		return invalid("unsupported filter %T", f)
	}
	return nil
}

func (c *compiler) join(e *model.Entity, alias string, filters []Filter, sep, empty string) error {
	if len(filters) == 0 {
		c.write(empty)
		return nil
	}
	c.write("(")
	for i, f := range filters {
		if i > 0 {
			c.write(sep)
		}
		c.write("(")
		if err := c.filter(e, alias, f); err != nil {
			return err
		}
		c.write(")")
	}
	c.write(")")
	return nil
}

func (c *compiler) relation(e *model.Entity, alias string, f RelationFilter) error {
	if c.having != nil {
		return invalid("relation filters are not allowed in having")
	}
	r, ok := e.Relation(f.Relation)
	if !ok {
		return invalid("%s has no relation %q", e.Name, f.Relation)
	}
	switch f.Quantifier {
	case Some, Every, None:
		if !r.Many {
			return invalid("%s.%s is a to-one relation, use is/isNot", e.Name, r.Name)
		}
	case Is, IsNot:
		if r.Many {
			return invalid("%s.%s is a to-many relation, use some/every/none", e.Name, r.Name)
		}
		if f.Where == nil {
			c.column(alias, r.LocalColumn)
			if f.Quantifier == Is {
				c.write(" IS NULL")
			} else {
				c.write(" IS NOT NULL")
			}
			return nil
		}
	default:
		return invalid("unknown relation quantifier %q", f.Quantifier)
	}

	target := e.Target(r)
	c.aliases++
	sub := fmt.Sprintf("r%d", c.aliases)

	switch f.Quantifier {
	case Some, Is:
		c.write("EXISTS (")
	default:
		c.write("NOT EXISTS (")
	}
	c.write("SELECT 1 FROM ")
	c.sql.WriteByte('?')
	c.vars = append(c.vars, clause.Table{Name: target.Table, Alias: sub})
	c.write(" WHERE ")
	c.column(sub, r.TargetColumn)
	c.write(" = ")
	c.column(alias, r.LocalColumn)
	if f.Where != nil {
		if f.Quantifier == Every {
			c.write(" AND NOT (")
		} else {
			c.write(" AND (")
		}
		if err := c.filter(target, sub, f.Where); err != nil {
			return err
		}
		c.write(")")
	}
	c.write(")")
	return nil
}

func (c *compiler) cond(e *model.Entity, alias string, cond Cond) error {
	if c.having != nil && strings.HasPrefix(cond.Field, "_") {
		return c.aggregateCond(e, alias, cond)
	}
	f, ok := e.Field(cond.Field)
	if !ok {
		return invalid("%s has no field %q", e.Name, cond.Field)
	}
	if c.having != nil && !c.having.grouped[f.Name] {
		return invalid("having field %q must be part of by", f.Name)
	}
	lhs := func() { c.column(alias, f.Column) }
	return c.compare(f, lhs, cond)
}

// compare writes "lhs op value" for field f.
func (c *compiler) compare(f *model.Field, lhs func(), cond Cond) error {
	fold := cond.Mode == ModeInsensitive
	if fold && f.Kind != model.KindString {
		return invalid("insensitive mode needs a string field, %q is %s", f.Name, f.Kind)
	}
	side := func() {
		if fold {
			c.write("LOWER(")
			lhs()
			c.write(")")
			return
		}
		lhs()
	}
	val := func(v any) {
		if fold {
			c.write("LOWER(")
			c.value(v)
			c.write(")")
			return
		}
		c.value(v)
	}

	switch cond.Op {
	case OpEquals, OpNot:
		v := model.Normalize(cond.Value)
		if v == nil {
			side()
			if cond.Op == OpEquals {
				c.write(" IS NULL")
			} else {
				c.write(" IS NOT NULL")
			}
			return nil
		}
		if err := checkValue(f, v); err != nil {
			return err
		}
		side()
		if cond.Op == OpEquals {
			c.write(" = ")
		} else {
			c.write(" <> ")
		}
		val(argument(v))
	case OpIn, OpNotIn:
		values, err := listOf(cond.Value)
		if err != nil {
			return invalid("%s on %q: %v", cond.Op, f.Name, err)
		}
		if len(values) == 0 {
			if cond.Op == OpIn {
				c.write("1=0")
			} else {
				c.write("1=1")
			}
			return nil
		}
		side()
		if cond.Op == OpIn {
			c.write(" IN (")
		} else {
			c.write(" NOT IN (")
		}
		for i, v := range values {
			v = model.Normalize(v)
			if v == nil {
				return invalid("%s on %q cannot contain nil", cond.Op, f.Name)
			}
			if err := checkValue(f, v); err != nil {
				return err
			}
			if i > 0 {
				c.write(", ")
			}
			val(argument(v))
		}
		c.write(")")
	case OpLt, OpLte, OpGt, OpGte:
		v := model.Normalize(cond.Value)
		if v == nil {
			return invalid("%s on %q needs a value", cond.Op, f.Name)
		}
		if err := checkValue(f, v); err != nil {
			return err
		}
		side()
		c.write(" ", comparison[cond.Op], " ")
		val(argument(v))
	case OpContains, OpStartsWith, OpEndsWith:
		if f.Kind != model.KindString {
			return invalid("%s needs a string field, %q is %s", cond.Op, f.Name, f.Kind)
		}
		s, ok := model.Normalize(cond.Value).(string)
		if !ok {
			return invalid("%s on %q needs a string value", cond.Op, f.Name)
		}
		pattern := escapeLike(s)
		switch cond.Op {
		case OpContains:
			pattern = "%" + pattern + "%"
		case OpStartsWith:
			pattern += "%"
		default:
			pattern = "%" + pattern
		}
		side()
		c.write(" LIKE ")
		val(pattern)
		c.write(" ESCAPE '", string(likeEscape), "'")
	default:
		return invalid("unknown operator %q", cond.Op)
	}
	return nil
}

var comparison = map[Op]string{OpLt: "<", OpLte: "<=", OpGt: ">", OpGte: ">="}

func checkValue(f *model.Field, v any) error {
	if err := model.CheckValue(f, v); err != nil {
		return invalid("%v", err)
	}
	return nil
}

// argument prepares a normalised value for binding. Times are bound in UTC so that
// textual timestamp storage compares in order.
func argument(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

func listOf(v any) ([]any, error) {
	switch vs := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return vs, nil
	case []string:
		out := make([]any, len(vs))
		for i := range vs {
			out[i] = vs[i]
		}
		return out, nil
	case []int:
		out := make([]any, len(vs))
		for i := range vs {
			out[i] = vs[i]
		}
		return out, nil
	case []int64:
		out := make([]any, len(vs))
		for i := range vs {
			out[i] = vs[i]
		}
		return out, nil
	case []time.Time:
		out := make([]any, len(vs))
		for i := range vs {
			out[i] = vs[i]
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a list, got %T", v)
}

func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '%' || r == '_' || r == likeEscape {
			b.WriteRune(likeEscape)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// OrderBy returns the qualified order-by clause for orders. Nulls sort after every value:
// last when ascending, first when descending, on every dialect.
func OrderBy(e *model.Entity, orders []Order) (clause.OrderBy, error) {
	var sql strings.Builder
	vars := make([]any, 0, len(orders)*2)
	for i, o := range orders {
		f, ok := e.Field(o.Field)
		if !ok {
			return clause.OrderBy{}, invalid("cannot order %s by unknown field %q", e.Name, o.Field)
		}
		if i > 0 {
			sql.WriteString(", ")
		}
		col := clause.Column{Table: e.Table, Name: f.Column}
		if f.Nullable {
			sql.WriteString("? IS NULL")
			if o.Desc {
				sql.WriteString(" DESC")
			}
			sql.WriteString(", ")
			vars = append(vars, col)
		}
		sql.WriteString("?")
		if o.Desc {
			sql.WriteString(" DESC")
		}
		vars = append(vars, col)
	}
	return clause.OrderBy{Expression: clause.Expr{SQL: sql.String(), Vars: vars}}, nil
}
