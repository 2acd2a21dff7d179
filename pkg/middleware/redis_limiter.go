package middleware

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisWindowLimiter is a fixed-window limiter whose counters live in Redis,
// so every replica sees the same count. Keys expire with their window.
type RedisWindowLimiter struct {
	client redis.UniversalClient
	prefix string
	scope  string
	limit  int
	window time.Duration
}

func NewRedisWindowLimiter(client redis.UniversalClient, prefix, scope string, limit int, window time.Duration) *RedisWindowLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "assistant:rate_limit"
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisWindowLimiter{client: client, prefix: prefix, scope: strings.TrimSpace(scope), limit: limit, window: window}
}

func (r *RedisWindowLimiter) Allow(ctx context.Context, subject string) (Result, error) {
	subject = strings.TrimSpace(subject)
	if r == nil || r.client == nil || r.limit <= 0 || subject == "" {
		return Result{Allowed: true}, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, r.scope, subject)
	raw, err := windowScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return Result{}, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return Result{}, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return Result{}, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	res := Result{Limit: r.limit}
	if int(count) > r.limit {
		seconds := math.Ceil(float64(ttlMs) / 1000.0)
		res.RetryAfter = time.Duration(seconds) * time.Second
		return res, nil
	}
	res.Allowed = true
	res.Remaining = r.limit - int(count)
	return res, nil
}

var (
	_ Limiter = (*WindowLimiter)(nil)
	_ Limiter = (*RedisWindowLimiter)(nil)
)
