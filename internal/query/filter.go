// Package query holds the entity-agnostic argument shapes of the data layer (filters,
// ordering, pagination, shape selection, grouping and aggregation) and compiles them into
// gorm clause expressions using the runtime metadata of package model.
package query

// Filter is a node of a where-expression tree.
type Filter interface {
	isFilter()
}

// Op is a scalar comparison operator.
type Op string

const (
	OpEquals     Op = "equals"
	OpNot        Op = "not"
	OpIn         Op = "in"
	OpNotIn      Op = "notIn"
	OpLt         Op = "lt"
	OpLte        Op = "lte"
	OpGt         Op = "gt"
	OpGte        Op = "gte"
	OpContains   Op = "contains"
	OpStartsWith Op = "startsWith"
	OpEndsWith   Op = "endsWith"
)

// Mode selects string comparison semantics.
type Mode int

const (
	ModeDefault Mode = iota
	ModeInsensitive
)

// Cond compares one field with a value. Field is either a scalar field name or, inside a
// groupBy having clause, an aggregate reference such as "_avg.number" or "_count._all".
type Cond struct {
	Field string
	Op    Op
	Value any
	Mode  Mode
}

// Fold switches the condition to case-insensitive comparison.
func (c Cond) Fold() Cond {
	c.Mode = ModeInsensitive
	return c
}

// AndFilter matches when every child matches. An empty AndFilter matches everything.
type AndFilter struct{ Filters []Filter }

// OrFilter matches when at least one child matches. An empty OrFilter matches nothing.
type OrFilter struct{ Filters []Filter }

// NotFilter matches when none of its children match. An empty NotFilter matches everything.
type NotFilter struct{ Filters []Filter }

// Quantifier is the kind of a relation filter.
type Quantifier string

const (
	Some  Quantifier = "some"
	Every Quantifier = "every"
	None  Quantifier = "none"
	Is    Quantifier = "is"
	IsNot Quantifier = "isNot"
)

// RelationFilter filters on related rows. Some, Every and None apply to to-many relations,
// Is and IsNot to to-one relations. A nil Where with Is/IsNot tests for the absence/presence
// of the related row.
type RelationFilter struct {
	Relation   string
	Quantifier Quantifier
	Where      Filter
}

func (Cond) isFilter()           {}
func (AndFilter) isFilter()      {}
func (OrFilter) isFilter()       {}
func (NotFilter) isFilter()      {}
func (RelationFilter) isFilter() {}

func Eq(field string, v any) Cond  { return Cond{Field: field, Op: OpEquals, Value: v} }
func Ne(field string, v any) Cond  { return Cond{Field: field, Op: OpNot, Value: v} }
func Lt(field string, v any) Cond  { return Cond{Field: field, Op: OpLt, Value: v} }
func Lte(field string, v any) Cond { return Cond{Field: field, Op: OpLte, Value: v} }
func Gt(field string, v any) Cond  { return Cond{Field: field, Op: OpGt, Value: v} }
func Gte(field string, v any) Cond { return Cond{Field: field, Op: OpGte, Value: v} }

func In(field string, values ...any) Cond {
	return Cond{Field: field, Op: OpIn, Value: values}
}

func NotIn(field string, values ...any) Cond {
	return Cond{Field: field, Op: OpNotIn, Value: values}
}

func Contains(field, s string) Cond   { return Cond{Field: field, Op: OpContains, Value: s} }
func StartsWith(field, s string) Cond { return Cond{Field: field, Op: OpStartsWith, Value: s} }
func EndsWith(field, s string) Cond   { return Cond{Field: field, Op: OpEndsWith, Value: s} }

func And(filters ...Filter) AndFilter { return AndFilter{Filters: filters} }
func Or(filters ...Filter) OrFilter   { return OrFilter{Filters: filters} }
func Not(filters ...Filter) NotFilter { return NotFilter{Filters: filters} }

func SomeOf(relation string, where Filter) RelationFilter {
	return RelationFilter{Relation: relation, Quantifier: Some, Where: where}
}

func EveryOf(relation string, where Filter) RelationFilter {
	return RelationFilter{Relation: relation, Quantifier: Every, Where: where}
}

func NoneOf(relation string, where Filter) RelationFilter {
	return RelationFilter{Relation: relation, Quantifier: None, Where: where}
}

func Has(relation string, where Filter) RelationFilter {
	return RelationFilter{Relation: relation, Quantifier: Is, Where: where}
}

func HasNot(relation string, where Filter) RelationFilter {
	return RelationFilter{Relation: relation, Quantifier: IsNot, Where: where}
}

// Key identifies a single row through one of the entity's unique field combinations.
type Key map[string]any

// Filter turns the key into an equality filter.
func (k Key) Filter() Filter {
	if len(k) == 1 {
		for name, v := range k {
			return Eq(name, v)
		}
	}
	conds := make([]Filter, 0, len(k))
	for _, name := range k.Fields() {
		conds = append(conds, Eq(name, k[name]))
	}
	return And(conds...)
}

// Fields returns the key's field names in a stable order.
func (k Key) Fields() []string {
	names := make([]string, 0, len(k))
	for name := range k {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

// ByID is the primary key of any entity.
func ByID(id string) Key { return Key{"id": id} }
