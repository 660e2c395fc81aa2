package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type InvoiceStatus string

const (
	InvoiceStatusUnpaid   InvoiceStatus = "Unpaid"
	InvoiceStatusPaid     InvoiceStatus = "Paid"
	InvoiceStatusDisputed InvoiceStatus = "Disputed"
)

// Invoice is created and mutated by the billing flows outside this service.
// The collections core only reads amount/due-date/status/debtor contact and
// writes nothing here; escalation state lives in its own table.
type Invoice struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BusinessId      string          `gorm:"size:64;index;not null" json:"business_id"`
	InvoiceNumber   string          `gorm:"size:255;not null" json:"invoice_number"`
	ReferenceNumber string          `gorm:"size:255;default:null" json:"reference_number"`
	ClientName      string          `gorm:"size:255;not null" json:"client_name"`
	ClientEmail     string          `gorm:"size:255" json:"client_email"`
	ClientPhone     string          `gorm:"size:64" json:"client_phone"`
	ClientType      string          `gorm:"type:enum('individual','business');default:'individual'" json:"client_type"`
	CurrencyCode    string          `gorm:"size:8;not null;default:'GBP'" json:"currency_code"`
	AmountDue       decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_due"`
	InvoiceDate     time.Time       `gorm:"not null" json:"invoice_date"`
	DueDate         time.Time       `gorm:"index;not null" json:"due_date"`
	CurrentStatus   InvoiceStatus   `gorm:"type:enum('Unpaid','Paid','Disputed');not null;index" json:"current_status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// DaysOverdue is whole days past the due date as of now; never negative.
func (inv *Invoice) DaysOverdue(now time.Time) int {
	d := int(now.Sub(inv.DueDate).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func GetInvoice(ctx context.Context, db *gorm.DB, invoiceId int) (*Invoice, error) {
	var invoice Invoice
	if err := db.WithContext(ctx).First(&invoice, "id = ?", invoiceId).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// GetOverdueUnpaidInvoices returns unpaid invoices whose due date has passed,
// across all businesses. Callers must use a system context (tenant scope off).
// Paused invoices are included; the state machine decides whether to skip.
func GetOverdueUnpaidInvoices(ctx context.Context, db *gorm.DB, asOf time.Time) ([]Invoice, error) {
	var invoices []Invoice
	if err := db.WithContext(ctx).
		Where("current_status = ? AND due_date < ?", InvoiceStatusUnpaid, asOf).
		Order("id ASC").
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func IsInvoiceOwnedBy(invoice *Invoice, businessId string) error {
	if invoice == nil {
		return gorm.ErrRecordNotFound
	}
	if invoice.BusinessId != businessId {
		return errors.New("invoice does not belong to business")
	}
	return nil
}
