package catalog

import (
	"time"

	"github.com/nholik/stack-updater/internal/httpx"
)

const userAgent = "stack-updater"

type options struct {
	timing       httpx.Timing
	clientID     string
	clientSecret string
}

// Option customizes catalog and IAM clients.
type Option func(*options)

// WithTimeout bounds each individual HTTP attempt.
func WithTimeout(timeout time.Duration) Option {
	return func(o *options) {
		if timeout > 0 {
			o.timing.Timeout = timeout
		}
	}
}

// WithRetryWindow bounds the total time spent retrying one call. Zero disables retries.
func WithRetryWindow(window time.Duration) Option {
	return func(o *options) {
		if window >= 0 {
			o.timing.BackoffMaxElapsed = window
		}
	}
}

// WithRateLimit caps request rate per host. A zero interval disables limiting.
func WithRateLimit(interval time.Duration, burst int) Option {
	return func(o *options) {
		o.timing.RateInterval = interval
		o.timing.RateBurst = burst
	}
}

// WithBackoff overrides the exponential backoff bounds (primarily for testing).
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(o *options) {
		o.timing.BackoffInitial = initial
		o.timing.BackoffMax = maxInterval
	}
}

// WithClientCredentials sets the IAM client id/secret sent as basic auth
// during token exchange. Some IAM clients only issue refresh tokens this way.
func WithClientCredentials(id, secret string) Option {
	return func(o *options) {
		o.clientID = id
		o.clientSecret = secret
	}
}

func buildOptions(opts []Option) options {
	o := options{timing: httpx.DefaultTiming}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
