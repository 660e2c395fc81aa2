package main

import (
	"context"

	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// flagDeliveryDegradedOnDead marks the invoice's escalation state when a
// reminder webhook goes permanently dead, so dashboards surface the invoice
// for manual review instead of silently stopping all contact.
func flagDeliveryDegradedOnDead(db *gorm.DB, logger *logrus.Logger) func(ctx context.Context, wh *models.FailedWebhook) {
	return func(ctx context.Context, wh *models.FailedWebhook) {
		if wh == nil || wh.InvoiceId <= 0 {
			return
		}
		sysCtx := utils.SystemContext(ctx, wh.CorrelationId)

		if err := models.MarkDeliveryDegraded(sysCtx, db, wh.InvoiceId); err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"field":       "WebhookDeadRevert",
					"business_id": wh.BusinessId,
					"invoice_id":  wh.InvoiceId,
					"webhook_id":  wh.ID,
				}).Warn("failed to flag delivery degraded after DEAD webhook: " + err.Error())
			}
			return
		}

		if logger != nil {
			logger.WithFields(logrus.Fields{
				"field":       "WebhookDeadRevert",
				"business_id": wh.BusinessId,
				"invoice_id":  wh.InvoiceId,
				"webhook_id":  wh.ID,
			}).Info("flagged delivery degraded after DEAD webhook")
		}
	}
}
