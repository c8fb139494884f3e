// Package httpx executes JSON requests with bounded retries on transient failures.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxBodySnippet = 512

// HTTPError carries the status and body of a non-2xx response.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error: %s %s status=%d body=%s", e.Method, e.URL, e.StatusCode, snippet(e.Body))
}

// IsStatus reports whether err is an *HTTPError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == statusCode
}

// RetryConfig controls retry behavior for a single request.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig retries a handful of times within a few seconds, well inside a poll cycle deadline.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   300 * time.Millisecond,
		MaxDelay:    3 * time.Second,
	}
}

// RequestBuilder builds a fresh request for every attempt.
type RequestBuilder func(ctx context.Context) (*http.Request, error)

// Do executes the request with retries on network errors, 429 and 5xx. The body is always drained.
func Do(ctx context.Context, client *http.Client, build RequestBuilder, cfg RetryConfig) ([]byte, error) {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		request, err := build(ctx)
		if err != nil {
			return nil, err
		}

		body, retryAfter, err := doOnce(client, request)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable(err) || attempt == cfg.MaxAttempts {
			break
		}
		if err := sleepBackoff(ctx, attempt, cfg, retryAfter); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// DoJSON executes the request and decodes a JSON response into out. A nil out discards the body.
func DoJSON(ctx context.Context, client *http.Client, build RequestBuilder, out any, cfg RetryConfig) error {
	body, err := Do(ctx, client, build, cfg)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("json parse error: %w body=%s", err, snippet(body))
	}
	return nil
}

func doOnce(client *http.Client, request *http.Request) ([]byte, time.Duration, error) {
	response, err := client.Do(request)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, 0, err
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return body, 0, nil
	}
	return nil, parseRetryAfter(response.Header.Get("Retry-After")), &HTTPError{
		Method:     request.Method,
		URL:        redact(request.URL.String()),
		StatusCode: response.StatusCode,
		Body:       body,
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "connection reset") || strings.Contains(message, "eof")
}

func sleepBackoff(ctx context.Context, attempt int, cfg RetryConfig, retryAfter time.Duration) error {
	delay := retryAfter
	if delay <= 0 {
		delay = cfg.BaseDelay * time.Duration(1<<(attempt-1))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		delay += time.Duration(rand.IntN(100)) * time.Millisecond
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// redact drops credentials passed as query parameters.
func redact(rawURL string) string {
	if index := strings.IndexByte(rawURL, '?'); index >= 0 {
		return rawURL[:index]
	}
	return rawURL
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) <= maxBodySnippet {
		return text
	}
	return text[:maxBodySnippet] + "..."
}
