package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/nholik/stack-updater/internal/httpx"
	"github.com/rs/zerolog"
)

const defaultWebhookTemplate = `{{ toJson . }}`

// WebhookNotifier sends run summaries to a generic webhook.
type WebhookNotifier struct {
	logger   zerolog.Logger
	template *template.Template
	poster   *poster
}

// NewWebhookNotifier creates a webhook notifier with the provided template.
// The template receives a Summary.
func NewWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string) (*WebhookNotifier, error) {
	return newWebhookNotifier(logger, webhookURL, tmpl, defaultTiming)
}

func newWebhookNotifier(logger zerolog.Logger, webhookURL string, tmpl string, timing httpx.Timing) (*WebhookNotifier, error) {
	if webhookURL == "" {
		return nil, nil
	}
	if tmpl == "" {
		tmpl = defaultWebhookTemplate
	}

	parsed, err := template.New("webhook").Funcs(template.FuncMap{
		"toJson": func(v any) (string, error) {
			encoded, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(encoded), nil
		},
	}).Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse webhook template: %w", err)
	}

	p, err := newPoster(logger, "webhook", webhookURL, "application/json", timing)
	if err != nil {
		return nil, err
	}

	return &WebhookNotifier{
		logger:   logger,
		template: parsed,
		poster:   p,
	}, nil
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, summary Summary) error {
	if n == nil || summary.Empty() {
		return nil
	}

	var buf bytes.Buffer
	if err := n.template.Execute(&buf, summary); err != nil {
		return fmt.Errorf("render webhook template: %w", err)
	}

	if err := n.poster.post(ctx, buf.Bytes()); err != nil {
		return err
	}

	n.logger.Debug().
		Str("stack", summary.Stack).
		Int("changes", len(summary.Changes)).
		Msg("webhook notification sent")

	return nil
}
