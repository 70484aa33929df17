// Package httpx is a small HTTP client shared by the catalog and notification
// code: per-host rate limiting, bounded exponential backoff on 429, 5xx and
// connection failures, and capped response bodies.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	maxResponseBytes int64 = 16 << 20
	errorBodyLimit         = 1024
)

// Timing controls timeouts, rate limiting and retry backoff.
type Timing struct {
	Timeout           time.Duration
	RateInterval      time.Duration
	RateBurst         int
	BackoffMaxElapsed time.Duration
	BackoffMax        time.Duration
	BackoffInitial    time.Duration
}

// DefaultTiming suits interactive API calls.
var DefaultTiming = Timing{
	Timeout:           30 * time.Second,
	RateInterval:      100 * time.Millisecond,
	RateBurst:         5,
	BackoffMaxElapsed: 60 * time.Second,
	BackoffMax:        10 * time.Second,
	BackoffInitial:    500 * time.Millisecond,
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Status     string
	Body       []byte
}

// RequestBuilder creates a fresh request for each attempt.
type RequestBuilder func(ctx context.Context) (*retryablehttp.Request, error)

// Client issues requests with retries. Statuses other than 429 and 5xx are
// returned to the caller untouched.
type Client struct {
	logger    zerolog.Logger
	client    *retryablehttp.Client
	timing    Timing
	userAgent string
	limiters  map[string]*rate.Limiter
	limiterMu sync.Mutex
}

// New constructs a Client.
func New(logger zerolog.Logger, userAgent string, timing Timing) *Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.CheckRetry = func(_ context.Context, _ *http.Response, _ error) (bool, error) {
		return false, nil
	}
	client.Logger = nil
	client.HTTPClient = &http.Client{Timeout: timing.Timeout}

	return &Client{
		logger:    logger,
		client:    client,
		timing:    timing,
		userAgent: userAgent,
		limiters:  make(map[string]*rate.Limiter),
	}
}

// Do sends the request built by build, retrying transient failures until the
// backoff window closes or ctx ends.
func (c *Client) Do(ctx context.Context, target *url.URL, build RequestBuilder) (*Response, error) {
	backoffCfg := backoff.NewExponentialBackOff()
	backoffCfg.InitialInterval = c.timing.BackoffInitial
	backoffCfg.MaxInterval = c.timing.BackoffMax
	backoffCfg.MaxElapsedTime = c.timing.BackoffMaxElapsed
	backoffCfg.Reset()

	for attempt := 1; ; attempt++ {
		if err := c.waitForRateLimit(ctx, target.Host); err != nil {
			return nil, err
		}

		resp, err := c.doOnce(ctx, build)
		if err == nil {
			return resp, nil
		}

		var retryAfter *retryAfterError
		if errors.As(err, &retryAfter) {
			if c.timing.BackoffMaxElapsed == 0 || backoffCfg.NextBackOff() == backoff.Stop {
				return nil, retryAfter.err
			}
			// A Retry-After past the retry window would outlive the call's budget.
			if remaining := c.timing.BackoffMaxElapsed - backoffCfg.GetElapsedTime(); retryAfter.Duration > remaining {
				return nil, retryAfter.err
			}
			c.logger.Debug().Err(err).Str("host", target.Host).Int("attempt", attempt).Msg("rate limited")
			if !sleepWithContext(ctx, retryAfter.Duration) {
				return nil, ctx.Err()
			}
			continue
		}
		var retryable *retryableError
		if !errors.As(err, &retryable) {
			return nil, err
		}
		wait := backoffCfg.NextBackOff()
		if wait == backoff.Stop || c.timing.BackoffMaxElapsed == 0 {
			return nil, retryable.err
		}
		c.logger.Debug().Err(err).Str("host", target.Host).Int("attempt", attempt).Dur("wait", wait).Msg("retrying request")
		if !sleepWithContext(ctx, wait) {
			return nil, ctx.Err()
		}
	}
}

func (c *Client) doOnce(ctx context.Context, build RequestBuilder) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timing.Timeout)
	defer cancel()

	req, err := build(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &retryableError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := readWithLimit(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, &retryableError{err: err}
	}
	result := &Response{StatusCode: resp.StatusCode, Status: resp.Status, Body: body}

	if resp.StatusCode == http.StatusTooManyRequests {
		if wait, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
			return nil, &retryAfterError{Duration: wait, err: NewStatusError(result)}
		}
		return nil, &retryableError{err: NewStatusError(result)}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &retryableError{err: NewStatusError(result)}
	}

	return result, nil
}

func (c *Client) waitForRateLimit(ctx context.Context, host string) error {
	limiter := c.getLimiter(host)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (c *Client) getLimiter(host string) *rate.Limiter {
	if c.timing.RateInterval <= 0 || c.timing.RateBurst <= 0 {
		return nil
	}

	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()

	limiter, ok := c.limiters[host]
	if ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Every(c.timing.RateInterval), c.timing.RateBurst)
	c.limiters[host] = limiter
	return limiter
}

// StatusError carries an unexpected HTTP status and a trimmed body excerpt.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

// NewStatusError builds a StatusError from resp.
func NewStatusError(resp *Response) *StatusError {
	text := strings.TrimSpace(string(resp.Body))
	if len(text) > errorBodyLimit {
		text = text[:errorBodyLimit]
	}
	return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: text}
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status: %s (%s)", e.Status, e.Body)
	}
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

func readWithLimit(r io.Reader, maxBytes int64) ([]byte, error) {
	limited := io.LimitReader(r, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > maxBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxBytes)
	}
	return body, nil
}

func parseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		wait := time.Until(when)
		if wait <= 0 {
			return 0, false
		}
		return wait, true
	}
	return 0, false
}

func sleepWithContext(ctx context.Context, wait time.Duration) bool {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

type retryAfterError struct {
	Duration time.Duration
	err      error
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("rate limited; retry after %s", e.Duration)
}

func (e *retryAfterError) Unwrap() error {
	return e.err
}
