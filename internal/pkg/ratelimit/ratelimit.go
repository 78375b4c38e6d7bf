package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Limiter is a fixed-window request budget gate backed by the shared Redis
// counter store, so every app instance draws from the same budget.
//
// Windows are discrete buckets: the first request in a bucket creates the
// counter with a TTL of the window length, later requests increment it.
// Slight over-admission at window boundaries is accepted; the counter itself
// is atomic (INCR + EXPIRE NX in one round trip).
type Limiter struct {
	client   *redis.Client
	now      func() time.Time
	failOpen atomic.Int64
}

// New creates a limiter on the given Redis client.
func New(client *redis.Client) *Limiter {
	return &Limiter{client: client, now: time.Now}
}

// Allow reports whether a request for the identifier fits the current window.
//
// When the counter store is unreachable the limiter fails open: blocking all
// outbound traffic during an infrastructure outage would be worse than
// briefly exceeding a provider budget. Every such admission is logged and
// counted so operators can see degraded-mode traffic.
func (l *Limiter) Allow(ctx context.Context, identifier string, limit int, window time.Duration) bool {
	if limit <= 0 || window <= 0 {
		return true
	}

	bucket := l.now().Unix() / int64(window.Seconds())
	key := fmt.Sprintf("%s%s:%d", keyPrefix, identifier, bucket)

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.failOpen.Add(1)
		log.Warnf("[RateLimit] counter store unreachable, failing open for %s: %v", identifier, err)
		return true
	}

	return incr.Val() <= int64(limit)
}

// FailOpenCount returns how many requests were admitted because the counter
// store was unreachable.
func (l *Limiter) FailOpenCount() int64 {
	return l.failOpen.Load()
}

// Usage returns the request count consumed in the current window.
func (l *Limiter) Usage(ctx context.Context, identifier string, window time.Duration) (int64, error) {
	if window <= 0 {
		return 0, nil
	}
	bucket := l.now().Unix() / int64(window.Seconds())
	key := fmt.Sprintf("%s%s:%d", keyPrefix, identifier, bucket)
	count, err := l.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return count, err
}
