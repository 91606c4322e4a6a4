package model

import (
	"fmt"
	"sort"
)

// Kind is the scalar type of a field as seen by filters and aggregates.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindTime
	// KindFloat only describes computed values such as averages.
	KindFloat
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindTime:
		return "time"
	case KindFloat:
		return "float"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Field describes one scalar column of an entity.
type Field struct {
	Name     string // public name used by filters, keys and patches
	Column   string
	GoName   string
	Kind     Kind
	Nullable bool
	// Managed fields are assigned by the data layer (id, timestamps) and are not patchable.
	Managed bool
}

// Numeric reports whether _avg and _sum may be computed over the field.
func (f *Field) Numeric() bool {
	return f.Kind == KindInt || f.Kind == KindFloat
}

// Relation describes a navigable association between two entities.
type Relation struct {
	Name   string
	GoName string
	Target string
	Many   bool
	// For to-one relations LocalColumn is the foreign key on this table and TargetColumn is the
	// target primary key. For to-many relations LocalColumn is this table's primary key and
	// TargetColumn is the foreign key on the target table.
	LocalColumn  string
	TargetColumn string
	// Field is the public name of the foreign key field on this entity (to-one only).
	Field    string
	Optional bool
}

// Entity is the runtime metadata of one model.
type Entity struct {
	Name      string
	Table     string
	Rank      int // position in the dependency order, leaves first
	Fields    []Field
	Relations []Relation
	Uniques   [][]string
	// Immutable entities reject every update path.
	Immutable bool

	fields    map[string]*Field
	relations map[string]*Relation
}

var registry = map[string]*Entity{}

func register(e *Entity) *Entity {
	e.fields = make(map[string]*Field, len(e.Fields))
	for i := range e.Fields {
		e.fields[e.Fields[i].Name] = &e.Fields[i]
	}
	e.relations = make(map[string]*Relation, len(e.Relations))
	for i := range e.Relations {
		e.relations[e.Relations[i].Name] = &e.Relations[i]
	}
	registry[e.Name] = e
	return e
}

// Lookup returns the entity registered under name.
func Lookup(name string) (*Entity, bool) {
	e, ok := registry[name]
	return e, ok
}

// Entities returns all registered entities in dependency order.
func Entities() []*Entity {
	out := make([]*Entity, 0, len(registry))
	for _, e := range registry {
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Field returns the scalar field with the given public name.
func (e *Entity) Field(name string) (*Field, bool) {
	f, ok := e.fields[name]
	return f, ok
}

// Relation returns the relation with the given name.
func (e *Entity) Relation(name string) (*Relation, bool) {
	r, ok := e.relations[name]
	return r, ok
}

// Target resolves the entity on the other side of a relation.
func (e *Entity) Target(r *Relation) *Entity {
	t, ok := registry[r.Target]
	if !ok {
		panic(fmt.Sprintf("model: relation %s.%s targets unknown entity %q", e.Name, r.Name, r.Target))
	}
	return t
}

// HasUpdatedAt reports whether the entity tracks an update timestamp.
func (e *Entity) HasUpdatedAt() bool {
	_, ok := e.fields["updatedAt"]
	return ok
}

// UniqueKey returns the unique field combination that exactly matches names.
func (e *Entity) UniqueKey(names []string) ([]string, bool) {
	for _, combo := range e.Uniques {
		if sameSet(combo, names) {
			return combo, true
		}
	}
	return nil, false
}

// ForeignKeys returns the to-one relations whose foreign key field is set by name.
func (e *Entity) ForeignKeys() []*Relation {
	var out []*Relation
	for i := range e.Relations {
		if !e.Relations[i].Many {
			out = append(out, &e.Relations[i])
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		if seen[s] == 0 {
			return false
		}
		seen[s]--
	}
	return true
}

func managed(name, column, goName string, kind Kind) Field {
	return Field{Name: name, Column: column, GoName: goName, Kind: kind, Managed: true}
}

var (
	idField        = managed("id", "id", "ID", KindString)
	createdAtField = managed("createdAt", "created_at", "CreatedAt", KindTime)
	updatedAtField = managed("updatedAt", "updated_at", "UpdatedAt", KindTime)
)

func toOne(name, goName, target, field, column string, optional bool) Relation {
	return Relation{Name: name, GoName: goName, Target: target, LocalColumn: column, TargetColumn: "id", Field: field, Optional: optional}
}

func toMany(name, goName, target, column string) Relation {
	return Relation{Name: name, GoName: goName, Target: target, Many: true, LocalColumn: "id", TargetColumn: column}
}

// Entity metadata, one per model.
var (
	TenantEntity = register(&Entity{
		Name:  "Tenant",
		Table: "tenants",
		Rank:  0,
		Fields: []Field{
			idField,
			{Name: "name", Column: "name", GoName: "Name", Kind: KindString},
			{Name: "slug", Column: "slug", GoName: "Slug", Kind: KindString},
			{Name: "status", Column: "status", GoName: "Status", Kind: KindString},
			{Name: "subscriptionTier", Column: "subscription_tier", GoName: "SubscriptionTier", Kind: KindString},
			createdAtField,
			updatedAtField,
		},
		Relations: []Relation{
			toMany("users", "Users", "User", "tenant_id"),
			toMany("divisions", "Divisions", "Division", "tenant_id"),
			toMany("locations", "Locations", "Location", "tenant_id"),
			toMany("machines", "Machines", "Machine", "tenant_id"),
			toMany("calls", "Calls", "Call", "tenant_id"),
		},
		Uniques: [][]string{{"id"}, {"slug"}},
	})

	DivisionEntity = register(&Entity{
		Name:  "Division",
		Table: "divisions",
		Rank:  1,
		Fields: []Field{
			idField,
			{Name: "name", Column: "name", GoName: "Name", Kind: KindString},
			{Name: "tenantId", Column: "tenant_id", GoName: "TenantID", Kind: KindString},
			createdAtField,
			updatedAtField,
		},
		Relations: []Relation{
			toOne("tenant", "Tenant", "Tenant", "tenantId", "tenant_id", false),
			toMany("users", "Users", "User", "division_id"),
			toMany("targetedCalls", "TargetedCalls", "Call", "target_division_id"),
		},
		Uniques: [][]string{{"id"}},
	})

	LocationEntity = register(&Entity{
		Name:  "Location",
		Table: "locations",
		Rank:  1,
		Fields: []Field{
			idField,
			{Name: "name", Column: "name", GoName: "Name", Kind: KindString},
			{Name: "tenantId", Column: "tenant_id", GoName: "TenantID", Kind: KindString},
			createdAtField,
			updatedAtField,
		},
		Relations: []Relation{
			toOne("tenant", "Tenant", "Tenant", "tenantId", "tenant_id", false),
			toMany("machines", "Machines", "Machine", "location_id"),
		},
		Uniques: [][]string{{"id"}},
	})

	UserEntity = register(&Entity{
		Name:  "User",
		Table: "users",
		Rank:  2,
		Fields: []Field{
			idField,
			{Name: "name", Column: "name", GoName: "Name", Kind: KindString, Nullable: true},
			{Name: "email", Column: "email", GoName: "Email", Kind: KindString},
			{Name: "password", Column: "password", GoName: "Password", Kind: KindString},
			{Name: "role", Column: "role", GoName: "Role", Kind: KindString},
			{Name: "tenantId", Column: "tenant_id", GoName: "TenantID", Kind: KindString},
			{Name: "divisionId", Column: "division_id", GoName: "DivisionID", Kind: KindString, Nullable: true},
			createdAtField,
			updatedAtField,
		},
		Relations: []Relation{
			toOne("tenant", "Tenant", "Tenant", "tenantId", "tenant_id", false),
			toOne("division", "Division", "Division", "divisionId", "division_id", true),
			toMany("respondedCalls", "RespondedCalls", "Call", "responder_id"),
		},
		Uniques: [][]string{{"id"}, {"email"}},
	})

	MachineEntity = register(&Entity{
		Name:  "Machine",
		Table: "machines",
		Rank:  2,
		Fields: []Field{
			idField,
			{Name: "name", Column: "name", GoName: "Name", Kind: KindString},
			{Name: "code", Column: "code", GoName: "Code", Kind: KindString},
			{Name: "qrCodeUrl", Column: "qr_code_url", GoName: "QRCodeURL", Kind: KindString, Nullable: true},
			{Name: "locationId", Column: "location_id", GoName: "LocationID", Kind: KindString},
			{Name: "tenantId", Column: "tenant_id", GoName: "TenantID", Kind: KindString},
			createdAtField,
			updatedAtField,
		},
		Relations: []Relation{
			toOne("location", "Location", "Location", "locationId", "location_id", false),
			toOne("tenant", "Tenant", "Tenant", "tenantId", "tenant_id", false),
			toMany("calls", "Calls", "Call", "machine_id"),
		},
		Uniques: [][]string{{"id"}, {"tenantId", "code"}},
	})

	CallEntity = register(&Entity{
		Name:  "Call",
		Table: "calls",
		Rank:  3,
		Fields: []Field{
			idField,
			{Name: "machineId", Column: "machine_id", GoName: "MachineID", Kind: KindString},
			{Name: "tenantId", Column: "tenant_id", GoName: "TenantID", Kind: KindString},
			{Name: "status", Column: "status", GoName: "Status", Kind: KindString},
			{Name: "number", Column: "number", GoName: "Number", Kind: KindInt},
			{Name: "reportedAt", Column: "reported_at", GoName: "ReportedAt", Kind: KindTime},
			{Name: "respondedAt", Column: "responded_at", GoName: "RespondedAt", Kind: KindTime, Nullable: true},
			{Name: "resolvedAt", Column: "resolved_at", GoName: "ResolvedAt", Kind: KindTime, Nullable: true},
			{Name: "targetDivisionId", Column: "target_division_id", GoName: "TargetDivisionID", Kind: KindString, Nullable: true},
			{Name: "responderId", Column: "responder_id", GoName: "ResponderID", Kind: KindString, Nullable: true},
			{Name: "content", Column: "content", GoName: "Content", Kind: KindString, Nullable: true},
			createdAtField,
			updatedAtField,
		},
		Relations: []Relation{
			toOne("machine", "Machine", "Machine", "machineId", "machine_id", false),
			toOne("tenant", "Tenant", "Tenant", "tenantId", "tenant_id", false),
			toOne("targetDivision", "TargetDivision", "Division", "targetDivisionId", "target_division_id", true),
			toOne("responder", "Responder", "User", "responderId", "responder_id", true),
			toMany("reports", "Reports", "Report", "call_id"),
		},
		Uniques: [][]string{{"id"}},
	})

	ReportEntity = register(&Entity{
		Name:  "Report",
		Table: "reports",
		Rank:  4,
		Fields: []Field{
			idField,
			{Name: "content", Column: "content", GoName: "Content", Kind: KindString},
			{Name: "callId", Column: "call_id", GoName: "CallID", Kind: KindString},
			createdAtField,
		},
		Relations: []Relation{
			toOne("call", "Call", "Call", "callId", "call_id", false),
		},
		Uniques:   [][]string{{"id"}},
		Immutable: true,
	})
)
