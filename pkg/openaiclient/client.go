/**
 * @description
 * A thin wrapper around the go-openai client that paces outbound requests and
 * retries transient failures with exponential backoff and jitter.
 *
 * @dependencies
 * - github.com/sashabaranov/go-openai: chat completion API.
 * - golang.org/x/time/rate: client-side request pacing.
 *
 * @notes
 * - At most MaxAttempts calls are made per request. The wait before retry n
 *   (zero based) is 2^n * BaseDelay plus a random jitter below BaseDelay.
 * - Model calls are reads from the service's point of view. Nothing that writes
 *   to the ledger goes through this retry loop.
 */
package openaiclient

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/transfa/assistant-service/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxAttempts = 4
	DefaultBaseDelay   = time.Second
	DefaultTimeout     = 60 * time.Second
)

// Config configures the client.
type Config struct {
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	MaxAttempts       int
	BaseDelay         time.Duration
	RequestsPerSecond float64
}

// ChatAPI is the go-openai surface the client wraps.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client is safe for concurrent use.
type Client struct {
	api         ChatAPI
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
	jitter      func(max time.Duration) time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New builds a client for the OpenAI-compatible endpoint in cfg.
func New(cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return NewWithAPI(openai.NewClientWithConfig(oc), cfg, m, logger)
}

// NewWithAPI wraps an existing ChatAPI implementation.
func NewWithAPI(api ChatAPI, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		api:         api,
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		jitter:      randomJitter,
		sleep:       sleepContext,
		metrics:     m,
		logger:      logger.With("component", "openai_client"),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultBaseDelay
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// CreateChatCompletion sends req, retrying retryable failures. The returned
// error is always an *Error carrying the final class.
func (c *Client) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	var lastErr error
	var class ErrorClass
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return openai.ChatCompletionResponse{}, &Error{Class: ClassFatal, Attempts: attempt, Err: err}
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		class = Classify(err)
		if ctx.Err() != nil {
			class = ClassFatal
		}
		if !class.Retryable() || attempt == c.maxAttempts-1 {
			return openai.ChatCompletionResponse{}, &Error{Class: class, Attempts: attempt + 1, Err: err}
		}

		delay := c.backoff(attempt)
		c.metrics.LLMRetry(string(class))
		c.logger.Warn("chat completion failed, retrying", "attempt", attempt+1, "class", class, "delay", delay, "error", err)
		if err := c.sleep(ctx, delay); err != nil {
			return openai.ChatCompletionResponse{}, &Error{Class: ClassFatal, Attempts: attempt + 1, Err: err}
		}
	}
	return openai.ChatCompletionResponse{}, &Error{Class: class, Attempts: c.maxAttempts, Err: lastErr}
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.baseDelay<<attempt + c.jitter(c.baseDelay)
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
