package model

import "time"

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantArchived  TenantStatus = "archived"
)

// Tenant is the top-level isolation boundary. Every other row belongs to exactly one tenant.
type Tenant struct {
	ID               string       `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name             string       `gorm:"column:name;size:256;not null" json:"name"`
	Slug             string       `gorm:"column:slug;size:128;not null;uniqueIndex:idx_tenants_slug" json:"slug"`
	Status           TenantStatus `gorm:"column:status;size:32;not null" json:"status"`
	SubscriptionTier string       `gorm:"column:subscription_tier;size:64;not null" json:"subscriptionTier"`
	CreatedAt        time.Time    `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt        time.Time    `gorm:"column:updated_at;not null" json:"updatedAt"`

	// Associations
	Users     []User     `gorm:"foreignKey:TenantID" json:"users,omitempty"`
	Divisions []Division `gorm:"foreignKey:TenantID" json:"divisions,omitempty"`
	Locations []Location `gorm:"foreignKey:TenantID" json:"locations,omitempty"`
	Machines  []Machine  `gorm:"foreignKey:TenantID" json:"machines,omitempty"`
	Calls     []Call     `gorm:"foreignKey:TenantID" json:"calls,omitempty"`
}
