package model

import "time"

// Location is a physical place of a tenant where machines are installed.
type Location struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name      string    `gorm:"column:name;size:256;not null" json:"name"`
	TenantID  string    `gorm:"column:tenant_id;size:36;not null;index" json:"tenantId"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`

	// Associations
	Tenant   *Tenant   `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	Machines []Machine `gorm:"foreignKey:LocationID" json:"machines,omitempty"`
}
