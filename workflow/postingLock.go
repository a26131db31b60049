package workflow

import (
	"context"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/billing_backend/config"
)

const (
	billNumberLockTTL  = 10 * time.Second
	idempotencyLockTTL = 30 * time.Second
)

// acquireBillNumberLock serializes auto numbering for one prefix across instances.
// It narrows the window for unique-index collisions; the insert retry loop still
// guards correctness when Redis is absent or the lock cannot be obtained.
func acquireBillNumberLock(ctx context.Context, locker *redislock.Client, logger *logrus.Logger, prefix string) func() {
	return obtainLock(ctx, locker, logger, "lock:bill-number:"+prefix, billNumberLockTTL)
}

// acquireIdempotencyLock keeps two requests carrying the same key from both creating.
func acquireIdempotencyLock(ctx context.Context, locker *redislock.Client, logger *logrus.Logger, cacheKey string) func() {
	return obtainLock(ctx, locker, logger, "lock:"+cacheKey, idempotencyLockTTL)
}

func obtainLock(ctx context.Context, locker *redislock.Client, logger *logrus.Logger, lockKey string, ttl time.Duration) func() {
	if locker == nil {
		return func() {}
	}
	lock, err := locker.Obtain(ctx, lockKey, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(50*time.Millisecond), 60),
	})
	if err != nil {
		config.LogError(logger, "postingLock.go", "obtainLock", "Could not obtain lock", lockKey, err)
		return func() {}
	}
	return func() {
		_ = lock.Release(context.Background())
	}
}
