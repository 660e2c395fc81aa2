package models

import (
	"context"
	"time"

	"github.com/recouphq/collections_backend/config"
	"gorm.io/gorm"
)

// EscalationEventRecord is the transactional outbox for escalation events.
// Rows are written in the same transaction as the state change they describe;
// the dispatcher publishes them to Pub/Sub after commit. Timeline events stay
// immutable, so publish bookkeeping lives here instead.
type EscalationEventRecord struct {
	ID         int                 `gorm:"primary_key;index:idx_escalation_outbox,priority:3" json:"id"`
	BusinessId string              `gorm:"size:64;not null;index" json:"business_id"`
	InvoiceId  int                 `gorm:"index;not null" json:"invoice_id"`
	EventType  EscalationEventType `gorm:"type:enum('stage_advanced','paused','resumed','agency_handoff','reminder_sent');not null" json:"event_type"`
	Level      EscalationLevel     `gorm:"type:enum('none','gentle','firm','final','agency');not null" json:"level"`
	OccurredAt time.Time           `gorm:"index;not null" json:"occurred_at"`
	Metadata   []byte              `gorm:"type:blob" json:"metadata"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_escalation_outbox,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_escalation_outbox,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`

	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToEscalationEventMessage(record EscalationEventRecord) config.EscalationEventMessage {
	return config.EscalationEventMessage{
		ID:            record.ID,
		BusinessId:    record.BusinessId,
		InvoiceId:     record.InvoiceId,
		EventType:     string(record.EventType),
		Level:         string(record.Level),
		OccurredAt:    record.OccurredAt,
		Metadata:      record.Metadata,
		CorrelationId: record.CorrelationId,
	}
}

// EnqueueEscalationEvent writes an outbox row inside the caller's transaction.
func EnqueueEscalationEvent(ctx context.Context, tx *gorm.DB, record *EscalationEventRecord) error {
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now().UTC()
	}
	return tx.WithContext(ctx).Create(record).Error
}
