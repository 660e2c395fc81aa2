package collections

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var decimalHundred = decimal.NewFromInt(100)

// HandoffPack is everything a debt collection agency needs to take over a
// case: the debt, its full chase history and the economics of recovery.
// Uploaded to object storage as JSON; agencies pull it via a signed URL.
type HandoffPack struct {
	GeneratedAt    time.Time                        `json:"generated_at"`
	BusinessId     string                           `json:"business_id"`
	Invoice        *models.Invoice                  `json:"invoice"`
	State          *models.EscalationState          `json:"escalation_state"`
	Timeline       []models.EscalationTimelineEvent `json:"timeline"`
	Recommendation RecoveryRecommendation           `json:"recommendation"`
	Interest       InterestBreakdown                `json:"interest"`
}

// PackBuilder assembles and uploads agency handoff packs.
type PackBuilder struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewPackBuilder(db *gorm.DB, logger *logrus.Logger) *PackBuilder {
	return &PackBuilder{DB: db, Logger: logger, Now: func() time.Time { return time.Now().UTC() }}
}

// HandoffObjectKey is where the pack lives in the bucket, one per invoice.
// Re-handoffs overwrite; the timeline is the audit trail, not the bucket.
func HandoffObjectKey(businessId string, invoiceId int) string {
	return fmt.Sprintf("%s/handoffs/invoice-%d.json", businessId, invoiceId)
}

// Handoff builds the pack and uploads it. Implements AgencyHandoffHandler.
func (b *PackBuilder) Handoff(ctx context.Context, invoice *models.Invoice, state *models.EscalationState) error {
	pack, err := b.Build(ctx, invoice, state)
	if err != nil {
		return err
	}
	body, err := utils.MarshalToJSON(pack)
	if err != nil {
		return err
	}

	key := HandoffObjectKey(invoice.BusinessId, invoice.ID)
	if err := utils.SaveHandoffPackToGCS(ctx, key, []byte(body)); err != nil {
		return fmt.Errorf("upload handoff pack: %w", err)
	}

	b.Logger.WithFields(logrus.Fields{
		"module":      "collections",
		"invoice_id":  invoice.ID,
		"business_id": invoice.BusinessId,
		"object_key":  key,
	}).Info("agency handoff pack uploaded")
	return nil
}

// Build assembles the pack without uploading. Separated for tests and for the
// on-demand download endpoint.
func (b *PackBuilder) Build(ctx context.Context, invoice *models.Invoice, state *models.EscalationState) (*HandoffPack, error) {
	timeline, err := models.GetEscalationTimeline(ctx, b.DB, invoice.ID)
	if err != nil {
		return nil, err
	}

	now := b.Now()
	daysOverdue := invoice.DaysOverdue(now)
	amountMinor := invoice.AmountDue.Mul(decimalHundred).Round(0).IntPart()

	return &HandoffPack{
		GeneratedAt:    now,
		BusinessId:     invoice.BusinessId,
		Invoice:        invoice,
		State:          state,
		Timeline:       timeline,
		Recommendation: Recommend(RecommendationInputForInvoice(invoice, timeline, now)),
		Interest:       CalculateLateInterest(amountMinor, daysOverdue),
	}, nil
}

// RecommendationInputForInvoice derives the scoring input from what the
// invoice record and chase history can tell us. Fields the record cannot
// answer (relationship, evidence, assets) stay at their unknown defaults.
func RecommendationInputForInvoice(invoice *models.Invoice, timeline []models.EscalationTimelineEvent, now time.Time) RecommendationInput {
	clientType := invoice.ClientType
	if clientType == "" {
		clientType = DebtorTypeUnknown
	}
	return RecommendationInput{
		InvoiceAmount:    invoice.AmountDue.Mul(decimalHundred).Round(0).IntPart(),
		DaysOverdue:      invoice.DaysOverdue(now),
		IsDisputedDebt:   invoice.CurrentStatus == models.InvoiceStatusDisputed,
		DebtorType:       clientType,
		PreviousAttempts: countAttempts(timeline),
	}
}

// SignedDownloadURL returns a short-lived GET URL for an uploaded pack.
func (b *PackBuilder) SignedDownloadURL(ctx context.Context, businessId string, invoiceId int, expires time.Duration) (string, error) {
	key := HandoffObjectKey(businessId, invoiceId)
	exists, err := utils.ObjectExistsInGCS(ctx, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", utils.ErrorRecordNotFound
	}
	signed, err := utils.SignDownload(ctx, key, expires)
	if err != nil {
		return "", err
	}
	return signed.URL, nil
}

func countAttempts(timeline []models.EscalationTimelineEvent) int {
	attempts := 0
	for _, ev := range timeline {
		if ev.EventType == models.EscalationEventReminderSent {
			attempts++
		}
	}
	return attempts
}
