package model

import "time"

// Division is an organizational unit of a tenant. Users belong to it and calls are routed to it.
type Division struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name      string    `gorm:"column:name;size:256;not null" json:"name"`
	TenantID  string    `gorm:"column:tenant_id;size:36;not null;index" json:"tenantId"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`

	// Associations
	Tenant        *Tenant `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	Users         []User  `gorm:"foreignKey:DivisionID;constraint:OnDelete:SET NULL" json:"users,omitempty"`
	TargetedCalls []Call  `gorm:"foreignKey:TargetDivisionID;constraint:OnDelete:SET NULL" json:"targetedCalls,omitempty"`
}
