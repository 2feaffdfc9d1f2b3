// Package retry wraps outbound HTTP calls with bounded retries, exponential
// backoff with jitter, and Retry-After header honoring.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxAttempts = 5
	maxJitter          = 500 * time.Millisecond
	drainLimit         = 64 << 10
)

// Transport retries transient failures on the wrapped RoundTripper. A failure
// is transient when the request errors at the network level, or the response
// status is 5xx or 429, or the response carries a Retry-After header. The
// final attempt's outcome is returned to the caller unmodified.
type Transport struct {
	// Base performs the actual requests. Defaults to http.DefaultTransport.
	Base http.RoundTripper
	// MaxAttempts bounds total attempts, not retries. Defaults to 5.
	MaxAttempts int
	// Logger records each retry with attempt count and reason.
	Logger *zap.Logger
	// now and sleep are test seams.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Transport with defaults around the provided base.
func New(base http.RoundTripper, logger *zap.Logger) *Transport {
	return &Transport{Base: base, Logger: logger}
}

// Client returns an http.Client that routes through the Transport.
func (t *Transport) Client(timeout time.Duration) *http.Client {
	return &http.Client{Transport: t, Timeout: timeout}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	maxAttempts := t.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	logger := t.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 1; ; attempt++ {
		attemptReq, reqErr := cloneRequest(req, attempt)
		if reqErr != nil {
			return nil, reqErr
		}

		resp, err = base.RoundTrip(attemptReq)

		reason, retryable := t.classify(resp, err)
		if !retryable || attempt >= maxAttempts {
			return resp, err
		}
		// Rewindable bodies are required for another attempt.
		if req.Body != nil && req.GetBody == nil {
			return resp, err
		}

		delay := t.delayFor(resp, attempt)
		discard(resp)

		logger.Warn("retrying request",
			zap.String("url", req.URL.String()),
			zap.Int("attempt", attempt),
			zap.String("reason", reason),
			zap.Duration("delay", delay),
		)

		if sleepErr := t.wait(req.Context(), delay); sleepErr != nil {
			return nil, sleepErr
		}
	}
}

// classify reports whether an attempt outcome warrants a retry.
func (t *Transport) classify(resp *http.Response, err error) (string, bool) {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", false
		}
		return fmt.Sprintf("network error: %v", err), true
	}
	if resp == nil {
		return "", false
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Sprintf("status %d", resp.StatusCode), true
	}
	if resp.Header.Get("Retry-After") != "" {
		return "retry-after header", true
	}
	return "", false
}

// delayFor selects the wait before the next attempt. Retry-After (seconds or
// HTTP-date) wins; otherwise the delay is 2^(attempt-1) seconds with random
// jitter in [-500ms, +500ms].
func (t *Transport) delayFor(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if d, ok := t.parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return d
		}
	}
	backoff := time.Duration(1<<uint(attempt-1)) * time.Second
	jitter := time.Duration(rand.Int63n(int64(2*maxJitter))) - maxJitter
	if backoff+jitter < 0 {
		return 0
	}
	return backoff + jitter
}

func (t *Transport) parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(t.clock()())
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func (t *Transport) clock() func() time.Time {
	if t.now != nil {
		return t.now
	}
	return time.Now
}

func (t *Transport) wait(ctx context.Context, d time.Duration) error {
	if t.sleep != nil {
		return t.sleep(ctx, d)
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func cloneRequest(req *http.Request, attempt int) (*http.Request, error) {
	out := req.Clone(req.Context())
	if attempt > 1 && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
	_ = resp.Body.Close()
}
