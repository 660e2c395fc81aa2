// escalation-backfill creates missing escalation state rows for invoices that
// are already overdue, so the next sweep starts from a complete picture. Safe
// to rerun; existing rows are left untouched.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/escalation-backfill
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/recouphq/collections_backend/config"
	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
	"gorm.io/gorm"
)

func main() {
	businessID := flag.String("business-id", "", "Optional: backfill only one business. If empty, backfills all businesses.")
	dryRun := flag.Bool("dry-run", false, "Report what would be created without writing anything.")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	ctx := utils.SystemContext(context.Background(), "escalation-backfill")
	now := time.Now().UTC()

	invoices, err := models.GetOverdueUnpaidInvoices(ctx, db, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list overdue invoices: %v\n", err)
		os.Exit(1)
	}

	created, skipped, failed := 0, 0, 0
	for i := range invoices {
		invoice := &invoices[i]
		if strings.TrimSpace(*businessID) != "" && invoice.BusinessId != strings.TrimSpace(*businessID) {
			continue
		}

		if _, serr := models.GetEscalationState(ctx, db, invoice.ID); serr == nil {
			skipped++
			continue
		} else if serr != gorm.ErrRecordNotFound {
			fmt.Fprintf(os.Stderr, "invoice %d: failed to read state: %v\n", invoice.ID, serr)
			failed++
			continue
		}

		if *dryRun {
			fmt.Printf("invoice %d (business %s, %d days overdue): would create state row\n",
				invoice.ID, invoice.BusinessId, invoice.DaysOverdue(now))
			created++
			continue
		}

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			_, terr := models.GetOrCreateEscalationState(ctx, tx, invoice)
			return terr
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "invoice %d: failed to create state: %v\n", invoice.ID, err)
			failed++
			continue
		}
		if qerr := utils.EnqueueEscalation(invoice.ID); qerr != nil {
			fmt.Fprintf(os.Stderr, "invoice %d: state created but enqueue failed: %v\n", invoice.ID, qerr)
		}
		created++
	}

	fmt.Printf("done: created=%d skipped=%d failed=%d (of %d overdue invoices)\n",
		created, skipped, failed, len(invoices))
	if failed > 0 {
		os.Exit(1)
	}
}
