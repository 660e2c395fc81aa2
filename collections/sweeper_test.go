package collections

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type fakeLock struct {
	refreshes int
	released  bool
}

func (l *fakeLock) Refresh(ctx context.Context, ttl time.Duration) error {
	l.refreshes++
	return nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released = true
	return nil
}

type fakeLockProvider struct {
	err  error
	lock *fakeLock
}

func (p *fakeLockProvider) Obtain(ctx context.Context, jobName string, ttl time.Duration) (JobLock, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.lock, nil
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunSweep_LockHeldElsewhereIsACleanNoOp(t *testing.T) {
	s := NewSweeper(nil, quietLogger(), &fakeLockProvider{err: ErrJobLockHeld}, nil, NewMachine(false), nil, nil)

	result, err := s.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("lock contention must not be an error, got %v", err)
	}
	if !result.LockBusy {
		t.Fatalf("expected LockBusy, got %+v", result)
	}
	if result.Processed != 0 || result.Succeeded != 0 || result.Failed != 0 {
		t.Fatalf("busy sweep must touch nothing, got %+v", result)
	}
}

func TestRunSweep_LockObtainFailurePropagates(t *testing.T) {
	boom := errors.New("redis unavailable")
	s := NewSweeper(nil, quietLogger(), &fakeLockProvider{err: boom}, nil, NewMachine(false), nil, nil)

	_, err := s.RunSweep(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected obtain error to propagate, got %v", err)
	}
}
