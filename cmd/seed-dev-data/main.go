// seed-dev-data creates a demo business with a spread of overdue invoices so
// the sweep, recommendation and handoff flows can be exercised locally.
// Rerunning is safe: the account is matched by business id and invoices by
// invoice number.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev-data
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/recouphq/collections_backend/config"
	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
)

const demoBusinessId = "demo-collections-business"

func main() {
	endpoint := flag.String("notification-endpoint", "http://localhost:9090/reminders", "Webhook endpoint reminders are posted to.")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	models.MigrateTable()

	ctx := utils.SystemContext(context.Background(), "seed-dev-data")
	now := time.Now().UTC()

	account := models.Account{
		BusinessId:           demoBusinessId,
		BusinessName:         "Demo Freelance Studio",
		Email:                "studio@example.test",
		NotificationEndpoint: *endpoint,
		NotificationToken:    "dev-token",
	}
	if err := db.WithContext(ctx).
		Where("business_id = ?", demoBusinessId).
		Assign(models.Account{NotificationEndpoint: *endpoint}).
		FirstOrCreate(&account).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed account: %v\n", err)
		os.Exit(1)
	}

	type seedInvoice struct {
		number      string
		client      string
		clientType  string
		amount      string
		daysOverdue int
		status      models.InvoiceStatus
	}
	seeds := []seedInvoice{
		{"DEMO-0001", "Fresh Deadbeat Ltd", "business", "2000.00", 12, models.InvoiceStatusUnpaid},
		{"DEMO-0002", "Slow Payer & Co", "business", "5000.00", 45, models.InvoiceStatusUnpaid},
		{"DEMO-0003", "J. Individual", "individual", "300.00", 95, models.InvoiceStatusUnpaid},
		{"DEMO-0004", "Contested Works", "business", "1500.00", 70, models.InvoiceStatusDisputed},
		{"DEMO-0005", "Settled Fine", "individual", "800.00", 20, models.InvoiceStatusPaid},
	}

	created := 0
	for _, s := range seeds {
		amount, err := decimal.NewFromString(s.amount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: bad amount %q: %v\n", s.number, s.amount, err)
			os.Exit(1)
		}
		due := now.AddDate(0, 0, -s.daysOverdue)
		invoice := models.Invoice{
			BusinessId:    demoBusinessId,
			InvoiceNumber: s.number,
			ClientName:    s.client,
			ClientEmail:   "billing@example.test",
			ClientType:    s.clientType,
			CurrencyCode:  "GBP",
			AmountDue:     amount,
			InvoiceDate:   due.AddDate(0, 0, -30),
			DueDate:       due,
			CurrentStatus: s.status,
		}
		res := db.WithContext(ctx).
			Where("business_id = ? AND invoice_number = ?", demoBusinessId, s.number).
			FirstOrCreate(&invoice)
		if res.Error != nil {
			fmt.Fprintf(os.Stderr, "%s: failed to seed invoice: %v\n", s.number, res.Error)
			os.Exit(1)
		}
		if res.RowsAffected > 0 {
			created++
		}
	}

	var total int64
	if err := db.WithContext(ctx).Model(&models.Invoice{}).
		Where("business_id = ?", demoBusinessId).
		Count(&total).Error; err != nil && err != gorm.ErrRecordNotFound {
		fmt.Fprintf(os.Stderr, "failed to count seeded invoices: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("seeded business %q: %d invoices created this run, %d total\n", demoBusinessId, created, total)
}
