package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const rateLimitPrefix = "ratelimit:booking:"

// RateLimiter is a fixed-window counter kept in Redis so every replica shares it.
type RateLimiter struct {
	Client *redis.Client
	Limit  int
	Window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{Client: client, Limit: limit, Window: window}
}

// Allow counts one request for key and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if r.Limit <= 0 {
		return true, nil
	}
	k := rateLimitPrefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}

	// first hit in the window, or a counter that lost its TTL
	if incr.Val() == 1 || ttl.Val() < 0 {
		if err := r.Client.Expire(ctx, k, r.Window).Err(); err != nil {
			return false, fmt.Errorf("rate limit expiry: %w", err)
		}
	}
	return incr.Val() <= int64(r.Limit), nil
}
