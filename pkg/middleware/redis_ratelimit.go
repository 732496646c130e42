package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisRateLimiter is a fixed-window counter backed by Redis so the quota
// is shared across server instances. Drop-in replacement for RateLimiter
// behind the Admitter interface; horizontal deployments opt in via config.
type RedisRateLimiter struct {
	client *redis.Client
	config *ThrottleConfig
	prefix string
}

// NewRedisRateLimiter creates a new Redis-backed rate limiter
func NewRedisRateLimiter(client *redis.Client, config *ThrottleConfig, prefix string) *RedisRateLimiter {
	if config == nil {
		config = DefaultThrottleConfig()
	}
	if prefix == "" {
		prefix = "throttle"
	}

	return &RedisRateLimiter{
		client: client,
		config: config,
		prefix: prefix,
	}
}

// Admit counts the request against the client's shared window.
//
// INCR plus a first-write EXPIRE gives fixed-window semantics: the key's
// TTL marks the window boundary. Unlike the in-memory limiter the counter
// advances on denied requests too; the error path reports the failure so
// the middleware can fail open.
func (rl *RedisRateLimiter) Admit(ctx context.Context, clientKey string) (Decision, error) {
	key := fmt.Sprintf("%s:%s", rl.prefix, clientKey)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis incr failed: %w", err)
	}

	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.config.Window).Err(); err != nil {
			return Decision{Allowed: true}, fmt.Errorf("redis expire failed: %w", err)
		}
	}

	if count > int64(rl.config.Quota) {
		ttl, err := rl.client.TTL(ctx, key).Result()
		if err != nil {
			return Decision{Allowed: false, RetryAfter: rl.config.Window}, nil
		}
		if ttl == -1*time.Second {
			// The first-write EXPIRE can fail after its INCR succeeded,
			// leaving a counter that never resets and a client that is
			// locked out forever. Re-arm the window before denying so the
			// Retry-After promise actually holds.
			if err := rl.client.Expire(ctx, key, rl.config.Window).Err(); err != nil {
				return Decision{Allowed: true}, fmt.Errorf("redis expire failed: %w", err)
			}
			ttl = rl.config.Window
		}
		if ttl < 0 {
			ttl = rl.config.Window
		}
		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}

	return Decision{Allowed: true}, nil
}

// Reset clears the window for a client (admin/testing escape hatch)
func (rl *RedisRateLimiter) Reset(ctx context.Context, clientKey string) error {
	key := fmt.Sprintf("%s:%s", rl.prefix, clientKey)
	return rl.client.Del(ctx, key).Err()
}

var _ Admitter = (*RedisRateLimiter)(nil)
var _ Admitter = (*RateLimiter)(nil)
