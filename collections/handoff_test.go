package collections

import (
	"testing"
	"time"

	"github.com/recouphq/collections_backend/models"
	"github.com/shopspring/decimal"
)

func TestRecommendationInputForInvoice(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	invoice := &models.Invoice{
		ID:            42,
		BusinessId:    "biz-1",
		AmountDue:     decimal.RequireFromString("1234.56"),
		DueDate:       now.AddDate(0, 0, -40),
		CurrentStatus: models.InvoiceStatusDisputed,
	}
	timeline := []models.EscalationTimelineEvent{
		{EventType: models.EscalationEventReminderSent},
		{EventType: models.EscalationEventStageAdvanced},
		{EventType: models.EscalationEventReminderSent},
		{EventType: models.EscalationEventPaused},
	}

	in := RecommendationInputForInvoice(invoice, timeline, now)

	if in.InvoiceAmount != 123456 {
		t.Fatalf("amount expected 123456 minor units, got %d", in.InvoiceAmount)
	}
	if in.DaysOverdue != 40 {
		t.Fatalf("days overdue expected 40, got %d", in.DaysOverdue)
	}
	if !in.IsDisputedDebt {
		t.Fatalf("disputed status must carry through")
	}
	if in.DebtorType != DebtorTypeUnknown {
		t.Fatalf("empty client type defaults to unknown, got %s", in.DebtorType)
	}
	if in.PreviousAttempts != 2 {
		t.Fatalf("only reminder_sent events count as attempts, expected 2, got %d", in.PreviousAttempts)
	}
}

func TestHandoffObjectKey_IsPerInvoice(t *testing.T) {
	if got := HandoffObjectKey("biz-1", 42); got != "biz-1/handoffs/invoice-42.json" {
		t.Fatalf("unexpected object key %q", got)
	}
}
