package collections

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReminderPayload is the webhook body sent to the business's notification
// endpoint. The endpoint owns the actual channel (email, SMS, letter).
type ReminderPayload struct {
	InvoiceId     int    `json:"invoice_id"`
	InvoiceNumber string `json:"invoice_number"`
	BusinessId    string `json:"business_id"`
	ClientName    string `json:"client_name"`
	ClientEmail   string `json:"client_email,omitempty"`
	ClientPhone   string `json:"client_phone,omitempty"`
	AmountDue     string `json:"amount_due"`
	CurrencyCode  string `json:"currency_code"`
	DueDate       string `json:"due_date"`
	DaysOverdue   int    `json:"days_overdue"`
	Level         string `json:"level"`
	CorrelationId string `json:"correlation_id,omitempty"`

	// Interest is included from the firm stage on, so later reminders can
	// quote the statutory late payment charge.
	Interest *InterestBreakdown `json:"interest,omitempty"`
}

// NotificationSender dispatches one reminder. Implementations must be safe for
// concurrent use; the sweeper may fan out.
type NotificationSender interface {
	SendReminder(ctx context.Context, invoice *models.Invoice, level models.EscalationLevel) error
}

// WebhookNotifier posts reminders to the account's configured endpoint. A
// non-2xx or transport error records a FailedWebhook row for the retry worker
// and reports ErrorDeliveryFailed; escalation state still advances.
type WebhookNotifier struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Client *http.Client
	Now    func() time.Time
}

func NewWebhookNotifier(db *gorm.DB, logger *logrus.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		DB:     db,
		Logger: logger,
		Client: &http.Client{Timeout: 15 * time.Second},
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (n *WebhookNotifier) SendReminder(ctx context.Context, invoice *models.Invoice, level models.EscalationLevel) error {
	account, err := models.GetAccountByBusinessId(ctx, n.DB, invoice.BusinessId)
	if err != nil {
		return fmt.Errorf("load account %s: %w", invoice.BusinessId, err)
	}
	if account.NotificationEndpoint == "" {
		return fmt.Errorf("business %s has no notification endpoint configured", invoice.BusinessId)
	}

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	payload := ReminderPayload{
		InvoiceId:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		BusinessId:    invoice.BusinessId,
		ClientName:    invoice.ClientName,
		AmountDue:     invoice.AmountDue.StringFixed(2),
		CurrencyCode:  invoice.CurrencyCode,
		DueDate:       invoice.DueDate.Format("2006-01-02"),
		DaysOverdue:   invoice.DaysOverdue(n.Now()),
		Level:         string(level),
		CorrelationId: correlationId,
	}
	// Unusable contact details are dropped from the payload, not fatal.
	if utils.IsValidEmail(invoice.ClientEmail) {
		payload.ClientEmail = invoice.ClientEmail
	}
	if invoice.ClientPhone != "" && utils.ValidatePhoneNumber(invoice.ClientPhone, utils.CountryCode) == nil {
		if formatted, perr := utils.FormatPhoneNumber(invoice.ClientPhone, utils.CountryCode); perr == nil {
			payload.ClientPhone = formatted
		}
	}
	if level.Rank() >= models.EscalationLevelFirm.Rank() {
		amountMinor := invoice.AmountDue.Mul(decimalHundred).Round(0).IntPart()
		breakdown := CalculateLateInterest(amountMinor, payload.DaysOverdue)
		payload.Interest = &breakdown
	}

	body, err := utils.MarshalToJSON(payload)
	if err != nil {
		return err
	}

	if derr := n.deliver(ctx, account, []byte(body)); derr != nil {
		if ferr := n.recordFailure(ctx, invoice, account.NotificationEndpoint, []byte(body), correlationId, derr); ferr != nil {
			logError(n.Logger, "failed to record webhook failure", ferr, invoice.ID)
		}
		return fmt.Errorf("%w: %v", utils.ErrorDeliveryFailed, derr)
	}
	return nil
}

func (n *WebhookNotifier) deliver(ctx context.Context, account *models.Account, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, account.NotificationEndpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if account.NotificationToken != "" {
		req.Header.Set("Authorization", "Bearer "+account.NotificationToken)
	}

	resp, err := n.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// recordFailure enqueues the webhook for the retry worker. Retry count starts
// at 0; next_retry_at now means the first retry is eligible immediately.
func (n *WebhookNotifier) recordFailure(ctx context.Context, invoice *models.Invoice, url string, body []byte, correlationId string, cause error) error {
	now := n.Now()
	msg := cause.Error()
	return n.DB.WithContext(ctx).Create(&models.FailedWebhook{
		BusinessId:    invoice.BusinessId,
		InvoiceId:     invoice.ID,
		URL:           url,
		Payload:       body,
		Status:        models.WebhookStatusPending,
		RetryCount:    0,
		NextRetryAt:   &now,
		LastError:     &msg,
		CorrelationId: correlationId,
	}).Error
}

func logError(logger *logrus.Logger, msg string, err error, invoiceId int) {
	if logger == nil {
		return
	}
	logger.WithFields(logrus.Fields{
		"module":     "collections",
		"invoice_id": invoiceId,
		"error":      err.Error(),
	}).Error(msg)
}
