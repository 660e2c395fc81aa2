package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/recouphq/collections_backend/collections"
	"github.com/recouphq/collections_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type webhookRetryConfig struct {
	maxRetries  int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func getWebhookRetryConfig() webhookRetryConfig {
	cfg := webhookRetryConfig{
		maxRetries:  10,
		baseBackoff: 5 * time.Minute,
		maxBackoff:  6 * time.Hour,
	}

	if v := os.Getenv("WEBHOOK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxRetries = n
		}
	}
	if v := os.Getenv("WEBHOOK_BASE_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.baseBackoff = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("WEBHOOK_MAX_BACKOFF_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.maxBackoff = time.Duration(n) * time.Second
		}
	}

	return cfg
}

// webhookRetryBackoff is base * 2^retryCount, capped. retryCount is the
// number of failures already recorded before this attempt.
func webhookRetryBackoff(retryCount int, cfg webhookRetryConfig) time.Duration {
	if retryCount <= 0 {
		return cfg.baseBackoff
	}
	delay := time.Duration(float64(cfg.baseBackoff) * math.Pow(2, float64(retryCount)))
	if delay > cfg.maxBackoff || delay <= 0 {
		return cfg.maxBackoff
	}
	return delay
}

// RetryResult summarizes one webhook redelivery run.
type RetryResult struct {
	Processed   int  `json:"processed"`
	Delivered   int  `json:"delivered"`
	Rescheduled int  `json:"rescheduled"`
	Dead        int  `json:"dead"`
	LockBusy    bool `json:"lock_busy"`
}

// WebhookRetryWorker redelivers failed reminder webhooks with exponential
// backoff. The "retry-webhooks" job lock keeps concurrent triggers down to a
// single active run; claimed rows use SKIP LOCKED on top of that so a crashed
// batch is reclaimed after the row lock goes stale.
type WebhookRetryWorker struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Locker collections.LockProvider
	Client *http.Client

	WorkerID          string
	JobName           string
	BatchSize         int
	LockTTL           time.Duration
	HeartbeatInterval time.Duration
	RowLockTimeout    time.Duration

	Config webhookRetryConfig
	Now    func() time.Time

	// OnDead is invoked after a webhook is marked permanently failed.
	OnDead func(ctx context.Context, webhook *models.FailedWebhook)
}

func NewWebhookRetryWorker(db *gorm.DB, logger *logrus.Logger, locker collections.LockProvider) *WebhookRetryWorker {
	return &WebhookRetryWorker{
		DB:                db,
		Logger:            logger,
		Locker:            locker,
		Client:            &http.Client{Timeout: 15 * time.Second},
		WorkerID:          "retry-" + time.Now().Format("20060102-150405.000"),
		JobName:           "retry-webhooks",
		BatchSize:         50,
		LockTTL:           2 * time.Minute,
		HeartbeatInterval: 30 * time.Second,
		RowLockTimeout:    5 * time.Minute,
		Config:            getWebhookRetryConfig(),
		Now:               func() time.Time { return time.Now().UTC() },
	}
}

// RunRetry executes one redelivery batch. Lock contention is a clean no-op.
func (w *WebhookRetryWorker) RunRetry(ctx context.Context) (RetryResult, error) {
	var result RetryResult

	lock, err := w.Locker.Obtain(ctx, w.JobName, w.LockTTL)
	if errors.Is(err, collections.ErrJobLockHeld) {
		w.Logger.WithField("job", w.JobName).Info("webhook retry already running elsewhere, skipping")
		result.LockBusy = true
		return result, nil
	}
	if err != nil {
		return result, err
	}
	defer func() {
		if rerr := lock.Release(context.Background()); rerr != nil {
			w.Logger.WithField("job", w.JobName).Warn("failed to release job lock: " + rerr.Error())
		}
	}()

	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go w.heartbeat(ctx, lock, heartbeatDone)

	claimed, err := models.ClaimRetryableWebhooks(ctx, w.DB, w.WorkerID, w.BatchSize, w.RowLockTimeout)
	if err != nil {
		return result, err
	}

	for i := range claimed {
		wh := &claimed[i]
		result.Processed++

		attemptErr := w.attempt(ctx, wh)
		if attemptErr == nil {
			if err := models.MarkWebhookDelivered(ctx, w.DB, wh.ID); err != nil {
				w.Logger.WithField("webhook_id", wh.ID).Error("failed to clear delivered webhook: " + err.Error())
			}
			result.Delivered++
			continue
		}

		newCount := wh.RetryCount + 1
		nextRetryAt := w.Now().Add(webhookRetryBackoff(wh.RetryCount, w.Config))
		dead, err := models.MarkWebhookFailed(ctx, w.DB, wh.ID, newCount, w.Config.maxRetries, nextRetryAt, attemptErr)
		if err != nil {
			w.Logger.WithField("webhook_id", wh.ID).Error("failed to record webhook failure: " + err.Error())
			continue
		}
		if dead {
			result.Dead++
			w.Logger.WithFields(logrus.Fields{
				"job":         w.JobName,
				"webhook_id":  wh.ID,
				"invoice_id":  wh.InvoiceId,
				"business_id": wh.BusinessId,
				"retry_count": newCount,
			}).Error("webhook permanently failed after max retries")
			if w.OnDead != nil {
				w.OnDead(ctx, wh)
			}
			continue
		}
		result.Rescheduled++
	}

	w.Logger.WithFields(logrus.Fields{
		"job":         w.JobName,
		"processed":   result.Processed,
		"delivered":   result.Delivered,
		"rescheduled": result.Rescheduled,
		"dead":        result.Dead,
	}).Info("webhook retry run finished")
	return result, nil
}

func (w *WebhookRetryWorker) heartbeat(ctx context.Context, lock collections.JobLock, done <-chan struct{}) {
	ticker := time.NewTicker(w.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := lock.Refresh(ctx, w.LockTTL); err != nil {
				w.Logger.WithField("job", w.JobName).Warn("job lock refresh failed: " + err.Error())
			}
		}
	}
}

func (w *WebhookRetryWorker) attempt(ctx context.Context, wh *models.FailedWebhook) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(wh.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if wh.CorrelationId != "" {
		req.Header.Set("X-Correlation-Id", wh.CorrelationId)
	}

	resp, err := w.Client.Do(req)
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
