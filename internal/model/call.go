package model

import "time"

// CallStatus is the state of a call. The accepted set is configured per deployment.
type CallStatus string

const (
	CallOpen      CallStatus = "open"
	CallResponded CallStatus = "responded"
	CallResolved  CallStatus = "resolved"
	CallClosed    CallStatus = "closed"
)

// Call is an issue reported against a machine, optionally routed to a division and a responder.
type Call struct {
	ID               string     `gorm:"column:id;primaryKey;size:36" json:"id"`
	MachineID        string     `gorm:"column:machine_id;size:36;not null;index" json:"machineId"`
	TenantID         string     `gorm:"column:tenant_id;size:36;not null;index" json:"tenantId"`
	Status           CallStatus `gorm:"column:status;size:32;not null" json:"status"`
	Number           int        `gorm:"column:number;not null" json:"number"`
	ReportedAt       time.Time  `gorm:"column:reported_at;not null" json:"reportedAt"`
	RespondedAt      *time.Time `gorm:"column:responded_at" json:"respondedAt"`
	ResolvedAt       *time.Time `gorm:"column:resolved_at" json:"resolvedAt"`
	TargetDivisionID *string    `gorm:"column:target_division_id;size:36;index" json:"targetDivisionId"`
	ResponderID      *string    `gorm:"column:responder_id;size:36;index" json:"responderId"`
	Content          *string    `gorm:"column:content;type:text" json:"content"`
	CreatedAt        time.Time  `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;not null" json:"updatedAt"`

	// Associations
	Machine        *Machine  `gorm:"foreignKey:MachineID" json:"machine,omitempty"`
	Tenant         *Tenant   `gorm:"foreignKey:TenantID" json:"tenant,omitempty"`
	TargetDivision *Division `gorm:"foreignKey:TargetDivisionID" json:"targetDivision,omitempty"`
	Responder      *User     `gorm:"foreignKey:ResponderID" json:"responder,omitempty"`
	Reports        []Report  `gorm:"foreignKey:CallID" json:"reports,omitempty"`
}
