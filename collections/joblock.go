package collections

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
)

// ErrJobLockHeld means another worker instance is already running the job.
// Callers exit cleanly and skip the batch; this is not a failure.
var ErrJobLockHeld = errors.New("job lock held by another worker")

// JobLock is a held lease. Refresh extends it (heartbeat); an unrefreshed
// lease expires and the job may be reacquired by a later trigger. That expiry
// is the only crash-recovery mechanism for abandoned sweeps.
type JobLock interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// LockProvider hands out named job locks ("process-escalations",
// "retry-webhooks") across independent process instances.
type LockProvider interface {
	Obtain(ctx context.Context, jobName string, ttl time.Duration) (JobLock, error)
}

// RedisLockProvider backs LockProvider with bsm/redislock.
type RedisLockProvider struct {
	Client *redislock.Client
}

func NewRedisLockProvider(client *redislock.Client) *RedisLockProvider {
	return &RedisLockProvider{Client: client}
}

func (p *RedisLockProvider) Obtain(ctx context.Context, jobName string, ttl time.Duration) (JobLock, error) {
	if p.Client == nil {
		return nil, errors.New("redis lock client not initialized")
	}
	lock, err := p.Client.Obtain(ctx, "job:"+jobName, ttl, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrJobLockHeld
	}
	if err != nil {
		return nil, err
	}
	return &redisJobLock{lock: lock}, nil
}

type redisJobLock struct {
	lock *redislock.Lock
}

func (l *redisJobLock) Refresh(ctx context.Context, ttl time.Duration) error {
	return l.lock.Refresh(ctx, ttl, nil)
}

func (l *redisJobLock) Release(ctx context.Context) error {
	return l.lock.Release(ctx)
}
