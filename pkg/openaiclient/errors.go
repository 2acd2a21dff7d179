package openaiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// ErrorClass buckets model API failures by how the caller should react.
type ErrorClass string

const (
	ClassRetryable   ErrorClass = "retryable"
	ClassRateLimited ErrorClass = "rate_limited"
	ClassBadRequest  ErrorClass = "bad_request"
	ClassFatal       ErrorClass = "fatal"
)

// Retryable reports whether another attempt may succeed.
func (c ErrorClass) Retryable() bool {
	return c == ClassRetryable || c == ClassRateLimited
}

// Error is returned once the client gives up on a request.
type Error struct {
	Class    ErrorClass
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("chat completion failed after %d attempt(s) (%s): %v", e.Attempts, e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf returns the class recorded on err, classifying raw errors on the fly.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return Classify(err)
}

// Classify maps a go-openai or transport error to an ErrorClass. Only 429, 5xx,
// timeouts and network failures are retryable.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return classifyStatus(reqErr.HTTPStatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassRetryable
	}
	return ClassFatal
}

func classifyStatus(code int) ErrorClass {
	switch {
	case code == http.StatusTooManyRequests:
		return ClassRateLimited
	case code >= 500:
		return ClassRetryable
	case code == http.StatusRequestTimeout:
		return ClassRetryable
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return ClassBadRequest
	default:
		return ClassFatal
	}
}
