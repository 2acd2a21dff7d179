/**
 * @description
 * Rate limiting middleware for the chat API. Two fixed-window limiters share
 * the Limiter interface: an in-memory one for single instances and a Redis
 * one for deployments with several replicas.
 *
 * @dependencies
 * - container/list: recency order for bounded eviction.
 * - github.com/redis/go-redis/v9: shared counters across replicas.
 *
 * @notes
 * - The in-memory limiter never holds more than maxKeys counters. Expired
 *   windows are dropped on access and the least recently used key goes first
 *   when the table is full.
 * - Limiter errors fail open: the request is served and the error logged.
 */
package middleware

import (
	"container/list"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/transfa/assistant-service/internal/metrics"
)

const (
	DefaultWindow  = time.Minute
	DefaultMaxKeys = 10000
)

// LimitedMessage is the body text returned with 429 responses.
const LimitedMessage = "Too many requests. Please try again in a minute."

// Result is the outcome of one limiter check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type windowEntry struct {
	key   string
	count int
	start time.Time
}

// WindowLimiter is a bounded in-memory fixed-window limiter.
type WindowLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	maxKeys int
	entries map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

// NewWindowLimiter allows limit requests per key per window. Non-positive
// window and maxKeys fall back to the defaults.
func NewWindowLimiter(limit int, window time.Duration, maxKeys int) *WindowLimiter {
	if window <= 0 {
		window = DefaultWindow
	}
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	return &WindowLimiter{
		limit:   limit,
		window:  window,
		maxKeys: maxKeys,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

func (l *WindowLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if l.limit <= 0 {
		return Result{Allowed: true}, nil
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.evictExpired(now)

	var e *windowEntry
	if el, ok := l.entries[key]; ok {
		e = el.Value.(*windowEntry)
		if now.Sub(e.start) >= l.window {
			e.count, e.start = 0, now
		}
		l.order.MoveToFront(el)
	} else {
		for l.order.Len() >= l.maxKeys {
			l.remove(l.order.Back())
		}
		e = &windowEntry{key: key, start: now}
		l.entries[key] = l.order.PushFront(e)
	}

	if e.count >= l.limit {
		return Result{Limit: l.limit, RetryAfter: e.start.Add(l.window).Sub(now)}, nil
	}
	e.count++
	return Result{Allowed: true, Limit: l.limit, Remaining: l.limit - e.count}, nil
}

// evictExpired drops stale counters from the cold end of the recency list.
func (l *WindowLimiter) evictExpired(now time.Time) {
	for el := l.order.Back(); el != nil; el = l.order.Back() {
		if now.Sub(el.Value.(*windowEntry).start) < l.window {
			return
		}
		l.remove(el)
	}
}

func (l *WindowLimiter) remove(el *list.Element) {
	e := l.order.Remove(el).(*windowEntry)
	delete(l.entries, e.key)
}

// Len reports how many keys are currently tracked.
func (l *WindowLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

// KeyFunc picks the rate limit key for a request.
type KeyFunc func(r *http.Request) string

// RateLimitMiddleware rejects requests over the limit with 429 and a JSON body.
func RateLimitMiddleware(limiter Limiter, name string, key KeyFunc, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rate_limit", "limiter", name)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if res.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			}
			if !res.Allowed {
				m.RateLimited(name)
				retry := int(math.Ceil(res.RetryAfter.Seconds()))
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": LimitedMessage})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP extracts the client IP, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
