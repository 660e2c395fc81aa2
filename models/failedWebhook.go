package models

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FailedWebhook is an outbound webhook call that did not get a 2xx. The retry
// worker redelivers it with exponential backoff until it succeeds (row is
// deleted) or retry_count reaches the cap (row goes DEAD and is surfaced for
// manual review).
type FailedWebhook struct {
	ID         int    `gorm:"primary_key" json:"id"`
	BusinessId string `gorm:"size:64;index;not null" json:"business_id"`
	InvoiceId  int    `gorm:"index;not null" json:"invoice_id"`
	URL        string `gorm:"size:2048;not null" json:"url"`
	Payload    []byte `gorm:"type:blob" json:"payload"`

	Status        string     `gorm:"size:20;index;not null;default:'PENDING'" json:"status"` // PENDING|PROCESSING|DEAD
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	NextRetryAt   *time.Time `gorm:"index" json:"next_retry_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at"`
	LastError     *string    `gorm:"type:text" json:"last_error"`
	LockedAt      *time.Time `gorm:"index" json:"locked_at"`
	LockedBy      *string    `gorm:"size:100" json:"locked_by"`

	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ClaimRetryableWebhooks selects and claims due webhooks in one transaction:
// PENDING rows whose next_retry_at has passed, plus PROCESSING rows whose
// claim went stale (worker crashed mid-batch).
func ClaimRetryableWebhooks(ctx context.Context, db *gorm.DB, workerId string, batchSize int, lockTimeout time.Duration) ([]FailedWebhook, error) {
	now := time.Now().UTC()
	staleBefore := now.Add(-lockTimeout)

	var claimed []FailedWebhook
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where(`
				(
					status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)
				)
				OR
				(
					status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, WebhookStatusPending, now, WebhookStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(batchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			claimed[i].Status = WebhookStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &workerId
			if err := tx.Model(&FailedWebhook{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"status":    WebhookStatusProcessing,
					"locked_at": claimed[i].LockedAt,
					"locked_by": claimed[i].LockedBy,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkWebhookDelivered clears the failed-webhook record after a successful
// redelivery.
func MarkWebhookDelivered(ctx context.Context, db *gorm.DB, id int) error {
	return db.WithContext(ctx).Delete(&FailedWebhook{}, "id = ?", id).Error
}

// MarkWebhookFailed records another failed attempt. When retryCount has hit
// maxRetries the row goes DEAD and is excluded from future selection; the
// caller decides what to surface. nextRetryAt is ignored for DEAD rows.
func MarkWebhookFailed(ctx context.Context, db *gorm.DB, id int, retryCount int, maxRetries int, nextRetryAt time.Time, attemptErr error) (dead bool, err error) {
	now := time.Now().UTC()
	errMsg := ""
	if attemptErr != nil {
		errMsg = attemptErr.Error()
	}

	updates := map[string]interface{}{
		"retry_count":     retryCount,
		"last_attempt_at": &now,
		"last_error":      &errMsg,
		"locked_at":       nil,
		"locked_by":       nil,
	}
	if retryCount >= maxRetries {
		updates["status"] = WebhookStatusDead
		updates["next_retry_at"] = nil
		dead = true
	} else {
		updates["status"] = WebhookStatusPending
		updates["next_retry_at"] = &nextRetryAt
	}

	err = db.WithContext(ctx).Model(&FailedWebhook{}).
		Where("id = ?", id).
		Updates(updates).Error
	return dead, err
}

// GetDeadWebhooks lists permanently failed webhooks for manual review.
func GetDeadWebhooks(ctx context.Context, db *gorm.DB) ([]FailedWebhook, error) {
	var rows []FailedWebhook
	if err := db.WithContext(ctx).
		Where("status = ?", WebhookStatusDead).
		Order("updated_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// RequeueDeadWebhook puts a DEAD webhook back into rotation after the target
// endpoint has been fixed.
func RequeueDeadWebhook(ctx context.Context, db *gorm.DB, id int) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).Model(&FailedWebhook{}).
		Where("id = ? AND status = ?", id, WebhookStatusDead).
		Updates(map[string]interface{}{
			"status":        WebhookStatusPending,
			"retry_count":   0,
			"next_retry_at": &now,
			"last_error":    nil,
			"locked_at":     nil,
			"locked_by":     nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
