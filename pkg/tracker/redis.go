package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of redis.Cmdable used by RedisTracker.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// RedisTracker shares repeat-evidence state between processes through Redis.
type RedisTracker struct {
	client   RedisClient
	interval time.Duration
	prefix   string
	timeout  time.Duration
}

// RedisOption configures a RedisTracker.
type RedisOption func(*RedisTracker)

// WithKeyPrefix namespaces fingerprint keys. Default "shareusage:seen:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisTracker) {
		r.prefix = prefix
	}
}

// WithRedisTimeout bounds each SET NX round trip. Default 50ms.
func WithRedisTimeout(d time.Duration) RedisOption {
	return func(r *RedisTracker) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRedisTracker panics on a nil client.
func NewRedisTracker(client RedisClient, interval time.Duration, opts ...RedisOption) *RedisTracker {
	if client == nil {
		panic("tracker: redis client cannot be nil")
	}
	r := &RedisTracker{
		client:   client,
		interval: interval,
		prefix:   "shareusage:seen:",
		timeout:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Track sets the fingerprint key only if absent, expiring after the interval.
func (r *RedisTracker) Track(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	if r.interval <= 0 {
		return true, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	fresh, err := r.client.SetNX(ctx, r.prefix+key, 1, r.interval).Result()
	if err != nil {
		return false, errors.Join(ErrTrackerUnavailable, err)
	}
	return fresh, nil
}
