package openaiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedAPI struct {
	errs  []error
	calls int
}

func (s *scriptedAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return openai.ChatCompletionResponse{}, s.errs[i]
	}
	return openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "ok"}}}}, nil
}

func newTestClient(api ChatAPI) (*Client, *[]time.Duration) {
	c := NewWithAPI(api, Config{}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var delays []time.Duration
	c.jitter = func(time.Duration) time.Duration { return 0 }
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return c, &delays
}

func apiError(code int) error {
	return &openai.APIError{HTTPStatusCode: code, Message: fmt.Sprintf("status %d", code)}
}

func TestCreateChatCompletion_RetriesThenSucceeds(t *testing.T) {
	api := &scriptedAPI{errs: []error{apiError(429), apiError(503)}}
	c, delays := newTestClient(api)

	resp, err := c.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Choices[0].Message.Content)
	assert.Equal(t, 3, api.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestCreateChatCompletion_GivesUpAfterFourAttempts(t *testing.T) {
	api := &scriptedAPI{errs: []error{apiError(500), apiError(500), apiError(500), apiError(500), nil}}
	c, delays := newTestClient(api)

	_, err := c.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 4, api.calls)
	assert.Len(t, *delays, 3)
	assert.Equal(t, 4*time.Second, (*delays)[2])

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, ClassRetryable, e.Class)
	assert.Equal(t, 4, e.Attempts)
}

func TestCreateChatCompletion_NoRetryOnClientErrors(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404, 422} {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			api := &scriptedAPI{errs: []error{apiError(code)}}
			c, delays := newTestClient(api)

			_, err := c.CreateChatCompletion(context.Background(), openai.ChatCompletionRequest{})
			require.Error(t, err)
			assert.Equal(t, 1, api.calls)
			assert.Empty(t, *delays)
			assert.False(t, ClassOf(err).Retryable())
		})
	}
}

func TestCreateChatCompletion_StopsWhenContextDone(t *testing.T) {
	api := &scriptedAPI{errs: []error{apiError(503), apiError(503)}}
	c, _ := newTestClient(api)
	ctx, cancel := context.WithCancel(context.Background())
	c.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, 1, api.calls)
	assert.Equal(t, ClassFatal, ClassOf(err))
}

func TestBackoff_JitterBounded(t *testing.T) {
	c := NewWithAPI(&scriptedAPI{}, Config{BaseDelay: 10 * time.Millisecond}, nil, nil)
	for attempt := 0; attempt < 3; attempt++ {
		base := (10 * time.Millisecond) << attempt
		for i := 0; i < 50; i++ {
			d := c.backoff(attempt)
			assert.GreaterOrEqual(t, d, base)
			assert.Less(t, d, base+10*time.Millisecond)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"rate limit", apiError(429), ClassRateLimited},
		{"server error", apiError(502), ClassRetryable},
		{"bad request", apiError(400), ClassBadRequest},
		{"unauthorized", apiError(401), ClassFatal},
		{"request error 503", &openai.RequestError{HTTPStatusCode: 503, Err: errors.New("unavailable")}, ClassRetryable},
		{"timeout", context.DeadlineExceeded, ClassRetryable},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, ClassRetryable},
		{"wrapped", fmt.Errorf("call: %w", apiError(429)), ClassRateLimited},
		{"canceled", context.Canceled, ClassFatal},
		{"other", errors.New("boom"), ClassFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
