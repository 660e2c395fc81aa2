package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// EscalationTimelineEvent is the append-only audit log of everything that
// happened to an invoice in collections. Rows are never updated or deleted.
// Ordering within an invoice is the insert order (auto-increment id); reads
// must not reorder.
type EscalationTimelineEvent struct {
	ID         int                 `gorm:"primary_key" json:"id"`
	BusinessId string              `gorm:"size:64;index;not null" json:"business_id"`
	InvoiceId  int                 `gorm:"index;not null" json:"invoice_id"`
	EventType  EscalationEventType `gorm:"type:enum('stage_advanced','paused','resumed','agency_handoff','reminder_sent');not null" json:"event_type"`
	Level      EscalationLevel     `gorm:"type:enum('none','gentle','firm','final','agency');not null" json:"level"`
	Metadata   []byte              `gorm:"type:blob" json:"metadata"`
	CreatedAt  time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
}

// AppendTimelineEvent is a plain ordered insert. Call inside the same
// transaction as the state mutation it records.
func AppendTimelineEvent(ctx context.Context, tx *gorm.DB, event *EscalationTimelineEvent) error {
	return tx.WithContext(ctx).Create(event).Error
}

func GetEscalationTimeline(ctx context.Context, db *gorm.DB, invoiceId int) ([]EscalationTimelineEvent, error) {
	var events []EscalationTimelineEvent
	if err := db.WithContext(ctx).
		Where("invoice_id = ?", invoiceId).
		Order("id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// CountReminderEvents returns how many reminders were actually sent for the
// invoice. Used as the previous-attempts signal for recovery recommendations.
func CountReminderEvents(ctx context.Context, db *gorm.DB, invoiceId int) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&EscalationTimelineEvent{}).
		Where("invoice_id = ? AND event_type = ?", invoiceId, EscalationEventReminderSent).
		Count(&count).Error
	return count, err
}
