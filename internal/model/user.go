package model

import "time"

// User is a person acting inside one tenant, optionally attached to a division.
type User struct {
	ID         string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name       *string   `gorm:"column:name;size:256" json:"name"`
	Email      string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_users_email" json:"email"`
	Password   string    `gorm:"column:password;size:255;not null" json:"-"`
	Role       string    `gorm:"column:role;size:64;not null" json:"role"`
	TenantID   string    `gorm:"column:tenant_id;size:36;not null;index" json:"tenantId"`
	DivisionID *string   `gorm:"column:division_id;size:36;index" json:"divisionId"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`

	// Associations
	Tenant         *Tenant   `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	Division       *Division `gorm:"foreignKey:DivisionID" json:"division,omitempty"`
	RespondedCalls []Call    `gorm:"foreignKey:ResponderID;constraint:OnDelete:SET NULL" json:"respondedCalls,omitempty"`
}
