package model

import "time"

// Machine is a piece of equipment that reports calls. Codes are unique per tenant.
type Machine struct {
	ID         string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Name       string    `gorm:"column:name;size:256;not null" json:"name"`
	Code       string    `gorm:"column:code;size:64;not null;uniqueIndex:idx_machines_tenant_code,priority:2" json:"code"`
	QRCodeURL  *string   `gorm:"column:qr_code_url;size:1024" json:"qrCodeUrl"`
	LocationID string    `gorm:"column:location_id;size:36;not null;index" json:"locationId"`
	TenantID   string    `gorm:"column:tenant_id;size:36;not null;uniqueIndex:idx_machines_tenant_code,priority:1" json:"tenantId"`
	CreatedAt  time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`

	// Associations
	Location *Location `gorm:"foreignKey:LocationID" json:"location,omitempty"`
	Tenant   *Tenant   `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	Calls    []Call    `gorm:"foreignKey:MachineID" json:"calls,omitempty"`
}
