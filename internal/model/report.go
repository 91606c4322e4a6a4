package model

import "time"

// Report is an append-only note attached to a call. It has no update timestamp.
type Report struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CallID    string    `gorm:"column:call_id;size:36;not null;index" json:"callId"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`

	// Associations
	Call *Call `gorm:"foreignKey:CallID" json:"call,omitempty"`
}
