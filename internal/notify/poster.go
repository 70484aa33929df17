package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nholik/stack-updater/internal/httpx"
	"github.com/rs/zerolog"
)

var defaultTiming = httpx.Timing{
	Timeout:           10 * time.Second,
	RateInterval:      1 * time.Second,
	RateBurst:         1,
	BackoffMaxElapsed: 30 * time.Second,
	BackoffMax:        10 * time.Second,
	BackoffInitial:    1 * time.Second,
}

type poster struct {
	serviceName string
	target      *url.URL
	contentType string
	client      *httpx.Client
}

func newPoster(logger zerolog.Logger, serviceName, webhookURL, contentType string, timing httpx.Timing) (*poster, error) {
	target, err := url.Parse(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid %s webhook url: %w", serviceName, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid %s webhook url: must include scheme and host", serviceName)
	}
	return &poster{
		serviceName: serviceName,
		target:      target,
		contentType: contentType,
		client:      httpx.New(logger, "stack-updater", timing),
	}, nil
}

func (p *poster) post(ctx context.Context, payload []byte) error {
	resp, err := p.client.Do(ctx, p.target, func(ctx context.Context) (*retryablehttp.Request, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.target.String(), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", p.contentType)
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("%s request failed: %w", p.serviceName, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s request failed: %w", p.serviceName, httpx.NewStatusError(resp))
	}
	return nil
}
