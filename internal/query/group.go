package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"facility-calls-backend/internal/model"
)

// All names the row count in Aggregates.Count.
const All = "_all"

// Aggregates lists the fields each aggregate is computed over.
type Aggregates struct {
	Count []string // field names, or All
	Min   []string
	Max   []string
	Avg   []string
	Sum   []string
}

func (a Aggregates) empty() bool {
	return len(a.Count)+len(a.Min)+len(a.Max)+len(a.Avg)+len(a.Sum) == 0
}

// AggregateArgs are the arguments of aggregate.
type AggregateArgs struct {
	Where      Filter
	Aggregates Aggregates
}

// GroupByArgs are the arguments of groupBy. OrderBy and Having may reference aggregates as
// "_count._all", "_count.<field>", "_min.<field>", "_max.<field>", "_avg.<field>" and
// "_sum.<field>".
type GroupByArgs struct {
	By         []string
	Where      Filter
	Having     Filter
	OrderBy    []Order
	Aggregates Aggregates
	Skip       int
	Take       *int
}

// AggregateResult holds the computed aggregates keyed by field name.
// Avg and Sum are nil for groups without non-null values.
type AggregateResult struct {
	Count map[string]int64
	Min   map[string]any
	Max   map[string]any
	Avg   map[string]*float64
	Sum   map[string]*int64
}

// Group is one row of a groupBy result.
type Group struct {
	Keys map[string]any
	AggregateResult
}

type aggFunc string

const (
	aggCount aggFunc = "_count"
	aggMin   aggFunc = "_min"
	aggMax   aggFunc = "_max"
	aggAvg   aggFunc = "_avg"
	aggSum   aggFunc = "_sum"
)

// aggregate is one computed column.
type aggregate struct {
	fn    aggFunc
	field *model.Field // nil for _count._all
}

func (a aggregate) name() string {
	if a.field == nil {
		return All
	}
	return a.field.Name
}

func (a aggregate) alias() string {
	if a.field == nil {
		return string(a.fn) + "_all"
	}
	return string(a.fn) + "_" + a.field.Column
}

// kind is the kind of the computed value.
func (a aggregate) kind() model.Kind {
	switch a.fn {
	case aggCount, aggSum:
		return model.KindInt
	case aggAvg:
		return model.KindFloat
	}
	return a.field.Kind
}

// write renders the aggregate expression.
func (a aggregate) write(c *compiler, alias string) {
	if a.field == nil {
		c.write("COUNT(*)")
		return
	}
	switch a.fn {
	case aggCount:
		c.write("COUNT(")
	case aggMin:
		c.write("MIN(")
	case aggMax:
		c.write("MAX(")
	case aggAvg:
		c.write("CAST(AVG(")
	case aggSum:
		c.write("CAST(SUM(")
	}
	c.column(alias, a.field.Column)
	switch a.fn {
	case aggAvg:
		c.write(") AS DOUBLE PRECISION)")
	case aggSum:
		c.write(") AS BIGINT)")
	default:
		c.write(")")
	}
}

func parseAggregate(e *model.Entity, fn aggFunc, name string) (aggregate, error) {
	if name == All {
		if fn != aggCount {
			return aggregate{}, invalid("%s cannot be computed over %s", fn, All)
		}
		return aggregate{fn: fn}, nil
	}
	f, ok := e.Field(name)
	if !ok {
		return aggregate{}, invalid("%s has no field %q", e.Name, name)
	}
	if (fn == aggAvg || fn == aggSum) && !f.Numeric() {
		return aggregate{}, invalid("%s needs a numeric field, %q is %s", fn, name, f.Kind)
	}
	return aggregate{fn: fn, field: f}, nil
}

// parseRef parses an aggregate reference such as "_avg.number".
func parseRef(e *model.Entity, ref string) (aggregate, error) {
	fn, name, ok := strings.Cut(ref, ".")
	if !ok {
		return aggregate{}, invalid("malformed aggregate reference %q", ref)
	}
	switch aggFunc(fn) {
	case aggCount, aggMin, aggMax, aggAvg, aggSum:
		return parseAggregate(e, aggFunc(fn), name)
	}
	return aggregate{}, invalid("unknown aggregate %q", fn)
}

func (a Aggregates) resolve(e *model.Entity) ([]aggregate, error) {
	var out []aggregate
	lists := []struct {
		fn    aggFunc
		names []string
	}{
		{aggCount, a.Count}, {aggMin, a.Min}, {aggMax, a.Max}, {aggAvg, a.Avg}, {aggSum, a.Sum},
	}
	for _, l := range lists {
		for _, name := range l.names {
			agg, err := parseAggregate(e, l.fn, name)
			if err != nil {
				return nil, err
			}
			out = append(out, agg)
		}
	}
	return out, nil
}

type havingScope struct {
	grouped map[string]bool
}

func (c *compiler) aggregateCond(e *model.Entity, alias string, cond Cond) error {
	agg, err := parseRef(e, cond.Field)
	if err != nil {
		return err
	}
	f := &model.Field{Name: cond.Field, Kind: agg.kind(), Nullable: agg.fn != aggCount}
	return c.compare(f, func() { agg.write(c, alias) }, cond)
}

// Plan is a validated aggregate or groupBy query.
type Plan struct {
	entity *model.Entity
	keys   []*model.Field
	aggs   []aggregate

	Select  clause.Expr
	Where   clause.Expr
	GroupBy []clause.Column
	Having  *clause.Expr
	OrderBy *clause.Expr
	Offset  int
	Limit   *int
}

// PlanAggregate validates args for an aggregate over e.
func PlanAggregate(e *model.Entity, args AggregateArgs) (*Plan, error) {
	if args.Aggregates.empty() {
		return nil, invalid("aggregate needs at least one of _count, _min, _max, _avg, _sum")
	}
	aggs, err := args.Aggregates.resolve(e)
	if err != nil {
		return nil, err
	}
	where, err := Where(e, args.Where)
	if err != nil {
		return nil, err
	}
	p := &Plan{entity: e, aggs: aggs, Where: where}
	p.Select = p.selectExpr()
	return p, nil
}

// PlanGroupBy validates args for a groupBy over e. Every check happens here, before the
// database is involved.
func PlanGroupBy(e *model.Entity, args GroupByArgs) (*Plan, error) {
	if len(args.By) == 0 {
		return nil, invalid("groupBy needs at least one field in by")
	}
	p := &Plan{entity: e, Offset: args.Skip}
	grouped := make(map[string]bool, len(args.By))
	for _, name := range args.By {
		f, ok := e.Field(name)
		if !ok {
			return nil, invalid("%s has no field %q", e.Name, name)
		}
		if grouped[name] {
			return nil, invalid("field %q listed twice in by", name)
		}
		grouped[name] = true
		p.keys = append(p.keys, f)
		p.GroupBy = append(p.GroupBy, clause.Column{Table: e.Table, Name: f.Column})
	}

	aggs, err := args.Aggregates.resolve(e)
	if err != nil {
		return nil, err
	}
	p.aggs = aggs

	if p.Where, err = Where(e, args.Where); err != nil {
		return nil, err
	}

	orders := args.OrderBy
	if len(orders) == 0 {
		for _, name := range args.By {
			orders = append(orders, Asc(name))
		}
	}
	oc := &compiler{}
	for i, o := range orders {
		if i > 0 {
			oc.write(", ")
		}
		if strings.HasPrefix(o.Field, "_") {
			agg, err := parseRef(e, o.Field)
			if err != nil {
				return nil, err
			}
			agg.write(oc, e.Table)
		} else {
			f, ok := e.Field(o.Field)
			if !ok {
				return nil, invalid("%s has no field %q", e.Name, o.Field)
			}
			if !grouped[f.Name] {
				return nil, invalid("orderBy field %q must be part of by", f.Name)
			}
			oc.column(e.Table, f.Column)
		}
		if o.Desc {
			oc.write(" DESC")
		} else {
			oc.write(" ASC")
		}
	}
	p.OrderBy = &clause.Expr{SQL: oc.sql.String(), Vars: oc.vars}

	if args.Having != nil {
		hc := &compiler{having: &havingScope{grouped: grouped}}
		if err := hc.filter(e, e.Table, args.Having); err != nil {
			return nil, err
		}
		p.Having = &clause.Expr{SQL: hc.sql.String(), Vars: hc.vars}
	}

	if args.Skip < 0 {
		return nil, invalid("skip cannot be negative")
	}
	if args.Take != nil {
		if *args.Take < 0 {
			return nil, invalid("groupBy take cannot be negative")
		}
		p.Limit = args.Take
	}

	p.Select = p.selectExpr()
	return p, nil
}

// Apply adds the plan's clauses to tx, which must already target the entity's table.
func (p *Plan) Apply(tx *gorm.DB) *gorm.DB {
	tx = tx.Clauses(clause.Select{Expression: p.Select}, clause.Where{Exprs: []clause.Expression{p.Where}})
	if len(p.GroupBy) > 0 {
		group := clause.GroupBy{Columns: p.GroupBy}
		if p.Having != nil {
			group.Having = []clause.Expression{*p.Having}
		}
		tx = tx.Clauses(group)
	}
	if p.OrderBy != nil {
		tx = tx.Clauses(clause.OrderBy{Expression: *p.OrderBy})
	}
	if p.Offset > 0 {
		tx = tx.Offset(p.Offset)
	}
	if p.Limit != nil {
		tx = tx.Limit(*p.Limit)
	}
	return tx
}

func (p *Plan) selectExpr() clause.Expr {
	c := &compiler{}
	n := 0
	sep := func() {
		if n > 0 {
			c.write(", ")
		}
		n++
	}
	for _, f := range p.keys {
		sep()
		c.column(p.entity.Table, f.Column)
		c.write(" AS ")
		c.column("", f.Column)
	}
	for _, a := range p.aggs {
		sep()
		a.write(c, p.entity.Table)
		c.write(" AS ")
		c.column("", a.alias())
	}
	return clause.Expr{SQL: c.sql.String(), Vars: c.vars}
}

// Width is the number of columns each result row carries.
func (p *Plan) Width() int { return len(p.keys) + len(p.aggs) }

// Decode converts one scanned row, in select order, into a Group.
func (p *Plan) Decode(row []any) (Group, error) {
	if len(row) != p.Width() {
		return Group{}, fmt.Errorf("query: expected %d columns, got %d", p.Width(), len(row))
	}
	g := Group{Keys: make(map[string]any, len(p.keys)), AggregateResult: newResult()}
	for i, f := range p.keys {
		v, err := decode(f.Kind, row[i])
		if err != nil {
			return Group{}, fmt.Errorf("query: %s: %w", f.Name, err)
		}
		g.Keys[f.Name] = v
	}
	for i, a := range p.aggs {
		v, err := decode(a.kind(), row[len(p.keys)+i])
		if err != nil {
			return Group{}, fmt.Errorf("query: %s.%s: %w", a.fn, a.name(), err)
		}
		switch a.fn {
		case aggCount:
			n, _ := v.(int64)
			g.Count[a.name()] = n
		case aggMin:
			g.Min[a.name()] = v
		case aggMax:
			g.Max[a.name()] = v
		case aggAvg:
			if f, ok := v.(float64); ok {
				g.Avg[a.name()] = &f
			} else {
				g.Avg[a.name()] = nil
			}
		case aggSum:
			if n, ok := v.(int64); ok {
				g.Sum[a.name()] = &n
			} else {
				g.Sum[a.name()] = nil
			}
		}
	}
	return g, nil
}

func newResult() AggregateResult {
	return AggregateResult{
		Count: map[string]int64{},
		Min:   map[string]any{},
		Max:   map[string]any{},
		Avg:   map[string]*float64{},
		Sum:   map[string]*int64{},
	}
}

// decode normalises a driver value to string, int64, float64, time.Time or nil.
func decode(kind model.Kind, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil, nil
	}
	switch kind {
	case model.KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case model.KindInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int32:
			return int64(n), nil
		case int:
			return int64(n), nil
		case float64:
			return int64(n), nil
		}
	case model.KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case model.KindTime:
		switch t := v.(type) {
		case time.Time:
			return t.UTC(), nil
		case string:
			return parseTimestamp(t)
		}
	}
	return nil, fmt.Errorf("unexpected %T for %s value", v, kind)
}

// parseTimestamp reads the textual timestamps sqlite returns for computed columns.
func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
