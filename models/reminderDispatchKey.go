package models

import "time"

// ReminderDispatchKey provides durable, DB-backed idempotency for reminder
// sends: at-least-once sweeps must dispatch at most one reminder per invoice
// per escalation level. Unique constraint: (business_id, invoice_id, level).
type ReminderDispatchKey struct {
	ID         int             `gorm:"primary_key" json:"id"`
	BusinessId string          `gorm:"size:64;not null;index:uniq_reminder,unique" json:"business_id"`
	InvoiceId  int             `gorm:"not null;index:uniq_reminder,unique" json:"invoice_id"`
	Level      EscalationLevel `gorm:"type:enum('none','gentle','firm','final','agency');not null;index:uniq_reminder,unique" json:"level"`
	Status     string          `gorm:"size:20;not null;index" json:"status"` // STARTED|SUCCEEDED|FAILED
	LastError  *string         `gorm:"type:text" json:"last_error"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
