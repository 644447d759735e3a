// Package ratelimit throttles requests with fixed-window counters in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chanzhaoyu/nest-blog-api/internal/logging"
)

const keyPrefix = "ratelimit"

// Rule caps a route at Limit hits per Window for each client.
type Rule struct {
	Route  string
	Limit  int64
	Window time.Duration
}

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter struct {
	client redis.Cmdable
	logger logging.Logger
}

func New(client redis.Cmdable, logger logging.Logger) *Limiter {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Limiter{client: client, logger: logger}
}

func Key(route, client string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, route, client)
}

// Allow counts one hit by client against rule. When Redis is unavailable the
// hit is allowed and a warning is logged.
func (l *Limiter) Allow(ctx context.Context, rule Rule, client string) Decision {
	key := Key(rule.Route, client)

	n, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		l.logger.Warn(ctx, "rate limiter unavailable", "key", key, "error", err)
		return Decision{Allowed: true}
	}

	if n == 1 {
		if err := l.client.Expire(ctx, key, rule.Window).Err(); err != nil {
			l.logger.Warn(ctx, "rate limiter expire failed", "key", key, "error", err)
		}
	}

	if n <= rule.Limit {
		return Decision{Allowed: true, Remaining: rule.Limit - n}
	}

	retry, err := l.client.TTL(ctx, key).Result()
	if err != nil || retry < 0 {
		retry = rule.Window
	}
	return Decision{Allowed: false, RetryAfter: retry}
}
