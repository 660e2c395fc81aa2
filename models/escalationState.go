package models

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// EscalationState is the per-invoice collections record: current stage, pause
// status and the next automatic escalation time. One row per invoice, created
// lazily the first time a sweep finds the invoice overdue.
//
// Invariants:
//   - CurrentLevel only advances under automatic operation. Resume after a
//     pause re-engages at the level held before pausing (pausing never changes
//     the level, so no separate pre-pause field is stored).
//   - NextEscalationDue NULL means no further automatic escalation (agency
//     terminal state, or invoice paid).
type EscalationState struct {
	ID           int             `gorm:"primary_key" json:"id"`
	BusinessId   string          `gorm:"size:64;index;not null" json:"business_id"`
	InvoiceId    int             `gorm:"uniqueIndex;not null" json:"invoice_id"`
	CurrentLevel EscalationLevel `gorm:"type:enum('none','gentle','firm','final','agency');not null;default:'none'" json:"current_level"`

	IsPaused    bool       `gorm:"not null;default:false;index" json:"is_paused"`
	PauseReason string     `gorm:"type:text" json:"pause_reason"`
	PausedAt    *time.Time `json:"paused_at"`
	PauseUntil  *time.Time `json:"pause_until"`

	LastEscalatedAt   *time.Time `json:"last_escalated_at"`
	NextEscalationDue *time.Time `gorm:"index" json:"next_escalation_due"`

	// DeliveryDegraded is set when a reminder webhook for this invoice goes
	// permanently dead, so dashboards can surface it for manual review.
	DeliveryDegraded bool `gorm:"not null;default:false" json:"delivery_degraded"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetEscalationState(ctx context.Context, db *gorm.DB, invoiceId int) (*EscalationState, error) {
	var state EscalationState
	if err := db.WithContext(ctx).First(&state, "invoice_id = ?", invoiceId).Error; err != nil {
		return nil, err
	}
	return &state, nil
}

// GetOrCreateEscalationState lazily creates the default (none) state on the
// first overdue sweep hit. Safe under concurrent sweeps: the unique index on
// invoice_id makes the second creator lose and re-read.
func GetOrCreateEscalationState(ctx context.Context, tx *gorm.DB, invoice *Invoice) (*EscalationState, error) {
	state, err := GetEscalationState(ctx, tx, invoice.ID)
	if err == nil {
		return state, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	fresh := EscalationState{
		BusinessId:   invoice.BusinessId,
		InvoiceId:    invoice.ID,
		CurrentLevel: EscalationLevelNone,
	}
	if err := tx.WithContext(ctx).Create(&fresh).Error; err != nil {
		// Lost the race; the row exists now.
		if existing, gerr := GetEscalationState(ctx, tx, invoice.ID); gerr == nil {
			return existing, nil
		}
		return nil, err
	}
	return &fresh, nil
}

// GetStatesForPaidInvoices returns escalation states still armed for
// automatic escalation whose invoice has since been paid. The sweep freezes
// these so collections stop the moment billing records the payment.
func GetStatesForPaidInvoices(ctx context.Context, db *gorm.DB) ([]EscalationState, error) {
	var states []EscalationState
	err := db.WithContext(ctx).
		Joins("JOIN invoices ON invoices.id = escalation_states.invoice_id").
		Where("invoices.current_status = ? AND escalation_states.next_escalation_due IS NOT NULL", InvoiceStatusPaid).
		Order("escalation_states.id ASC").
		Find(&states).Error
	if err != nil {
		return nil, err
	}
	return states, nil
}

// FreezeEscalationState stops all automatic escalation once an invoice is
// paid. The row is kept for audit; NextEscalationDue goes NULL.
func FreezeEscalationState(ctx context.Context, db *gorm.DB, invoiceId int) error {
	return db.WithContext(ctx).Model(&EscalationState{}).
		Where("invoice_id = ?", invoiceId).
		Updates(map[string]interface{}{
			"next_escalation_due": nil,
		}).Error
}

// MarkDeliveryDegraded flags the state after a reminder webhook went DEAD.
func MarkDeliveryDegraded(ctx context.Context, db *gorm.DB, invoiceId int) error {
	return db.WithContext(ctx).Model(&EscalationState{}).
		Where("invoice_id = ?", invoiceId).
		Updates(map[string]interface{}{
			"delivery_degraded": true,
		}).Error
}
