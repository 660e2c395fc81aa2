package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/recouphq/collections_backend/collections"
	"github.com/sirupsen/logrus"
)

// BackgroundSweepRunner drives the escalation sweep and webhook retry jobs on
// an interval, as a safety net for environments where Cloud Scheduler is not
// configured (local/dev) or its trigger is misconfigured. The named job locks
// make this safe alongside HTTP-triggered runs: whoever loses the lock skips.
type BackgroundSweepRunner struct {
	Sweeper     *collections.Sweeper
	RetryWorker *WebhookRetryWorker
	Logger      *logrus.Logger

	SweepInterval time.Duration
	RetryInterval time.Duration
}

func NewBackgroundSweepRunner(sweeper *collections.Sweeper, retryWorker *WebhookRetryWorker, logger *logrus.Logger) *BackgroundSweepRunner {
	return &BackgroundSweepRunner{
		Sweeper:       sweeper,
		RetryWorker:   retryWorker,
		Logger:        logger,
		SweepInterval: sweepIntervalFromEnv("SWEEP_INTERVAL_SECONDS", time.Hour),
		RetryInterval: sweepIntervalFromEnv("WEBHOOK_RETRY_INTERVAL_SECONDS", 15*time.Minute),
	}
}

func sweepIntervalFromEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}

func (r *BackgroundSweepRunner) Run(ctx context.Context) {
	if r == nil || r.Sweeper == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sweepTicker := time.NewTicker(r.SweepInterval)
	defer sweepTicker.Stop()
	retryTicker := time.NewTicker(r.RetryInterval)
	defer retryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			if _, err := r.Sweeper.RunSweep(ctx); err != nil {
				r.Logger.WithField("job", "process-escalations").Error("background sweep failed: " + err.Error())
			}
		case <-retryTicker.C:
			if r.RetryWorker == nil {
				continue
			}
			if _, err := r.RetryWorker.RunRetry(ctx); err != nil {
				r.Logger.WithField("job", "retry-webhooks").Error("background webhook retry failed: " + err.Error())
			}
		}
	}
}
