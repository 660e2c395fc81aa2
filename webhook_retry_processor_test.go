package main

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/recouphq/collections_backend/collections"
	"github.com/sirupsen/logrus"
)

func testRetryConfig() webhookRetryConfig {
	return webhookRetryConfig{
		maxRetries:  10,
		baseBackoff: 5 * time.Minute,
		maxBackoff:  6 * time.Hour,
	}
}

func TestWebhookRetryBackoff_DoublesPerRecordedFailure(t *testing.T) {
	cfg := testRetryConfig()
	cases := []struct {
		retryCount int
		expected   time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 40 * time.Minute},
		{6, 320 * time.Minute},
	}
	for _, tc := range cases {
		if got := webhookRetryBackoff(tc.retryCount, cfg); got != tc.expected {
			t.Fatalf("backoff(%d) expected %s, got %s", tc.retryCount, tc.expected, got)
		}
	}
}

func TestWebhookRetryBackoff_CapsAtMax(t *testing.T) {
	cfg := testRetryConfig()
	// 5m * 2^7 = 640m > 6h cap.
	if got := webhookRetryBackoff(7, cfg); got != cfg.maxBackoff {
		t.Fatalf("expected cap at %s, got %s", cfg.maxBackoff, got)
	}
	// Absurd counts must not overflow into negatives.
	if got := webhookRetryBackoff(500, cfg); got != cfg.maxBackoff {
		t.Fatalf("expected cap at %s for huge count, got %s", cfg.maxBackoff, got)
	}
	if got := webhookRetryBackoff(-1, cfg); got != cfg.baseBackoff {
		t.Fatalf("negative count falls back to base, got %s", got)
	}
}

type busyLockProvider struct{}

func (busyLockProvider) Obtain(ctx context.Context, jobName string, ttl time.Duration) (collections.JobLock, error) {
	return nil, collections.ErrJobLockHeld
}

func TestRunRetry_LockHeldElsewhereIsACleanNoOp(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	w := NewWebhookRetryWorker(nil, logger, busyLockProvider{})

	result, err := w.RunRetry(context.Background())
	if err != nil {
		t.Fatalf("lock contention must not be an error, got %v", err)
	}
	if !result.LockBusy || result.Processed != 0 {
		t.Fatalf("busy run must touch nothing, got %+v", result)
	}
}

type failingLockProvider struct{ err error }

func (p failingLockProvider) Obtain(ctx context.Context, jobName string, ttl time.Duration) (collections.JobLock, error) {
	return nil, p.err
}

func TestRunRetry_LockObtainFailurePropagates(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	boom := errors.New("redis unavailable")
	w := NewWebhookRetryWorker(nil, logger, failingLockProvider{err: boom})

	_, err := w.RunRetry(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected obtain error to propagate, got %v", err)
	}
}
