package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/recouphq/collections_backend/collections"
	"github.com/recouphq/collections_backend/config"
	"github.com/recouphq/collections_backend/models"
	"github.com/recouphq/collections_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Regression: pausing and immediately resuming must leave the invoice exactly
// where it was (same level, not paused) with the pause and resume both on the
// timeline. A lost resume event would make the audit trail lie about why
// reminders kept going out.
func TestPauseThenResume_KeepsLevelAndAppendsTwoEvents(t *testing.T) {
	db := startCollectionsTestEnv(t)

	now := time.Now().UTC()
	ctx := utils.SetBusinessIdInContext(context.Background(), "biz-pause")

	invoice := models.Invoice{
		BusinessId:    "biz-pause",
		InvoiceNumber: "INV-PAUSE-1",
		ClientName:    "Slow Payer & Co",
		CurrencyCode:  "GBP",
		AmountDue:     decimal.NewFromInt(1200),
		InvoiceDate:   now.AddDate(0, 0, -50),
		DueDate:       now.AddDate(0, 0, -20),
		CurrentStatus: models.InvoiceStatusUnpaid,
	}
	if err := db.WithContext(ctx).Create(&invoice).Error; err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	nextDue := now.AddDate(0, 0, 10)
	state := models.EscalationState{
		BusinessId:        "biz-pause",
		InvoiceId:         invoice.ID,
		CurrentLevel:      models.EscalationLevelFirm,
		NextEscalationDue: &nextDue,
	}
	if err := db.WithContext(ctx).Create(&state).Error; err != nil {
		t.Fatalf("create escalation state: %v", err)
	}

	svc := collections.NewService(db, logrus.New(), collections.NewMachine(false))

	paused, err := svc.Pause(ctx, invoice.ID, "client promised payment", nil)
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !paused.IsPaused {
		t.Fatalf("expected is_paused=true after pause; got %+v", paused)
	}

	resumed, err := svc.Resume(ctx, invoice.ID, "promise expired")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.IsPaused {
		t.Fatalf("expected is_paused=false after resume; got %+v", resumed)
	}
	if resumed.CurrentLevel != models.EscalationLevelFirm {
		t.Fatalf("pause/resume must not change the level; got %s", resumed.CurrentLevel)
	}
	if resumed.NextEscalationDue == nil {
		t.Fatalf("resume must re-arm next_escalation_due")
	}

	events, err := models.GetEscalationTimeline(ctx, db, invoice.ID)
	if err != nil {
		t.Fatalf("GetEscalationTimeline: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected exactly 2 timeline events (paused, resumed); got %d", len(events))
	}
	if events[0].EventType != models.EscalationEventPaused || events[1].EventType != models.EscalationEventResumed {
		t.Fatalf("expected [paused, resumed] in insert order; got [%s, %s]", events[0].EventType, events[1].EventType)
	}
	for _, ev := range events {
		if ev.Level != models.EscalationLevelFirm {
			t.Fatalf("pause/resume events carry the held level; got %s", ev.Level)
		}
	}
}

// Regression: once retry_count reaches the cap the webhook must go DEAD and
// stay out of every later claim batch until an operator requeues it.
func TestWebhookDeadAfterMaxRetries_ExcludedFromClaims(t *testing.T) {
	db := startCollectionsTestEnv(t)

	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Minute)
	hook := models.FailedWebhook{
		BusinessId:  "biz-hooks",
		InvoiceId:   7,
		URL:         "https://example.test/reminders",
		Payload:     []byte(`{"invoice_id":7}`),
		Status:      models.WebhookStatusPending,
		RetryCount:  9,
		NextRetryAt: &past,
	}
	if err := db.WithContext(ctx).Create(&hook).Error; err != nil {
		t.Fatalf("create failed webhook: %v", err)
	}

	claimed, err := models.ClaimRetryableWebhooks(ctx, db, "worker-a", 10, 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimRetryableWebhooks: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != hook.ID {
		t.Fatalf("expected the due webhook to be claimed; got %+v", claimed)
	}

	dead, err := models.MarkWebhookFailed(ctx, db, hook.ID, 10, 10, time.Now().UTC().Add(time.Hour), errors.New("endpoint returned 500"))
	if err != nil {
		t.Fatalf("MarkWebhookFailed: %v", err)
	}
	if !dead {
		t.Fatalf("retry_count at the cap must mark the webhook dead")
	}
	var row models.FailedWebhook
	if err := db.WithContext(ctx).First(&row, "id = ?", hook.ID).Error; err != nil {
		t.Fatalf("reload webhook: %v", err)
	}
	if row.Status != models.WebhookStatusDead {
		t.Fatalf("expected status DEAD; got %s", row.Status)
	}
	if row.NextRetryAt != nil {
		t.Fatalf("dead webhooks must not carry a next_retry_at; got %v", row.NextRetryAt)
	}

	claimed, err = models.ClaimRetryableWebhooks(ctx, db, "worker-a", 10, 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimRetryableWebhooks(after dead): %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("dead webhooks must be excluded from claims; got %+v", claimed)
	}

	// Operator requeue puts it back into rotation with a fresh counter.
	if err := models.RequeueDeadWebhook(ctx, db, hook.ID); err != nil {
		t.Fatalf("RequeueDeadWebhook: %v", err)
	}
	claimed, err = models.ClaimRetryableWebhooks(ctx, db, "worker-a", 10, 5*time.Minute)
	if err != nil {
		t.Fatalf("ClaimRetryableWebhooks(after requeue): %v", err)
	}
	if len(claimed) != 1 || claimed[0].RetryCount != 0 {
		t.Fatalf("requeued webhook should be claimable with retry_count=0; got %+v", claimed)
	}
}

// Regression: one invoice whose transition cannot commit must not abort the
// sweep. The batch finishes, the aggregate counts the failure, and the failed
// invoice is left untouched for the next run.
func TestRunSweep_FailingInvoiceDoesNotAbortBatch(t *testing.T) {
	db := startCollectionsTestEnv(t)

	now := time.Now().UTC()
	ctx := context.Background()
	logger := logrus.New()

	var invoices []models.Invoice
	for i := 1; i <= 3; i++ {
		inv := models.Invoice{
			BusinessId:    "biz-sweep",
			InvoiceNumber: fmt.Sprintf("INV-SWP-%d", i),
			ClientName:    "Overdue Client",
			CurrencyCode:  "GBP",
			AmountDue:     decimal.NewFromInt(500),
			InvoiceDate:   now.AddDate(0, 0, -40),
			DueDate:       now.AddDate(0, 0, -10),
			CurrentStatus: models.InvoiceStatusUnpaid,
		}
		if err := db.WithContext(ctx).Create(&inv).Error; err != nil {
			t.Fatalf("create invoice %d: %v", i, err)
		}
		invoices = append(invoices, inv)
	}
	bad := invoices[1]

	// Make the middle invoice's timeline insert fail so the batch has exactly
	// one bad item. The transition transaction must roll back for it alone.
	trigger := fmt.Sprintf(
		"CREATE TRIGGER fail_one_invoice_timeline BEFORE INSERT ON escalation_timeline_events FOR EACH ROW IF NEW.invoice_id = %d THEN SIGNAL SQLSTATE '45000' SET MESSAGE_TEXT = 'forced write failure'; END IF",
		bad.ID,
	)
	if err := db.Exec(trigger).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	machine := collections.NewMachine(false)
	svc := collections.NewService(db, logger, machine)
	locker := collections.NewRedisLockProvider(config.GetRedisLock())
	sweeper := collections.NewSweeper(db, logger, locker, svc, machine, nil, nil)

	result, err := sweeper.RunSweep(ctx)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if result.LockBusy {
		t.Fatalf("unexpected lock busy")
	}
	if result.Processed != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Fatalf("expected aggregate {processed:3 succeeded:2 failed:1}; got %+v", result)
	}

	for _, inv := range []models.Invoice{invoices[0], invoices[2]} {
		state, err := models.GetEscalationState(ctx, db, inv.ID)
		if err != nil {
			t.Fatalf("GetEscalationState(%d): %v", inv.ID, err)
		}
		if state.CurrentLevel != models.EscalationLevelGentle {
			t.Fatalf("invoice %d: expected gentle after first sweep; got %s", inv.ID, state.CurrentLevel)
		}
	}
	if _, err := models.GetEscalationState(ctx, db, bad.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("failed invoice must leave no state behind (rolled back); got %v", err)
	}
}

// startCollectionsTestEnv spins up throwaway MySQL and Redis containers, wires
// the config.Connect* env vars at them and migrates a fresh schema.
func startCollectionsTestEnv(t *testing.T) *gorm.DB {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "recoup_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}
	return db
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("collections-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("collections-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=recoup_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
