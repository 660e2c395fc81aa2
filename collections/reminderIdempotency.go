package collections

import (
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/recouphq/collections_backend/models"
	"gorm.io/gorm"
)

var ErrReminderInProgress = errors.New("reminder dispatch in progress")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BeginReminderDispatch inserts a STARTED dispatch key for (business, invoice,
// level). Returns skip=true when a SUCCEEDED key already exists: at-least-once
// sweeps must send at most one reminder per invoice per level.
func BeginReminderDispatch(tx *gorm.DB, businessId string, invoiceId int, level models.EscalationLevel) (skip bool, err error) {
	key := models.ReminderDispatchKey{
		BusinessId: businessId,
		InvoiceId:  invoiceId,
		Level:      level,
		Status:     models.ReminderDispatchStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.ReminderDispatchKey
	if err := tx.Where("business_id = ? AND invoice_id = ? AND level = ?", businessId, invoiceId, level).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.ReminderDispatchSucceeded:
		return true, nil
	case models.ReminderDispatchStarted:
		// Another sweep may be mid-send; back off unless the claim is stale.
		if time.Since(existing.UpdatedAt) < 5*time.Minute {
			return false, ErrReminderInProgress
		}
		return false, resetReminderDispatch(tx, existing.ID)
	default: // FAILED, or anything unexpected: retry
		return false, resetReminderDispatch(tx, existing.ID)
	}
}

func resetReminderDispatch(tx *gorm.DB, id int) error {
	return tx.Model(&models.ReminderDispatchKey{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.ReminderDispatchStarted, "last_error": nil}).Error
}

func MarkReminderDispatchSucceeded(tx *gorm.DB, businessId string, invoiceId int, level models.EscalationLevel) error {
	return tx.Model(&models.ReminderDispatchKey{}).
		Where("business_id = ? AND invoice_id = ? AND level = ?", businessId, invoiceId, level).
		Updates(map[string]interface{}{"status": models.ReminderDispatchSucceeded, "last_error": nil}).Error
}

func MarkReminderDispatchFailed(tx *gorm.DB, businessId string, invoiceId int, level models.EscalationLevel, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.ReminderDispatchKey{}).
		Where("business_id = ? AND invoice_id = ? AND level = ?", businessId, invoiceId, level).
		Updates(map[string]interface{}{"status": models.ReminderDispatchFailed, "last_error": &msg}).Error
}
