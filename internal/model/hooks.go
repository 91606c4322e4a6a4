package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewID returns a fresh primary key value.
func NewID() string {
	return uuid.NewString()
}

func assignID(id *string) {
	if *id == "" {
		*id = NewID()
	}
}

func (Tenant) TableName() string   { return "tenants" }
func (User) TableName() string     { return "users" }
func (Division) TableName() string { return "divisions" }
func (Location) TableName() string { return "locations" }
func (Machine) TableName() string  { return "machines" }
func (Call) TableName() string     { return "calls" }
func (Report) TableName() string   { return "reports" }

func (t *Tenant) BeforeCreate(tx *gorm.DB) error   { assignID(&t.ID); return nil }
func (u *User) BeforeCreate(tx *gorm.DB) error     { assignID(&u.ID); return nil }
func (d *Division) BeforeCreate(tx *gorm.DB) error { assignID(&d.ID); return nil }
func (l *Location) BeforeCreate(tx *gorm.DB) error { assignID(&l.ID); return nil }
func (m *Machine) BeforeCreate(tx *gorm.DB) error  { assignID(&m.ID); return nil }
func (c *Call) BeforeCreate(tx *gorm.DB) error     { assignID(&c.ID); return nil }
func (r *Report) BeforeCreate(tx *gorm.DB) error   { assignID(&r.ID); return nil }

// All returns one zero value of every model in dependency order, for migrations.
func All() []any {
	return []any{
		&Tenant{},
		&Division{},
		&Location{},
		&User{},
		&Machine{},
		&Call{},
		&Report{},
	}
}
