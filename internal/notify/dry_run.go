package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// DryRunNotifier logs the summary without sending notifications.
type DryRunNotifier struct {
	logger zerolog.Logger
	inner  Notifier
}

// NewDryRunNotifier returns a notifier that suppresses delivery and logs instead.
func NewDryRunNotifier(logger zerolog.Logger, inner Notifier) *DryRunNotifier {
	return &DryRunNotifier{logger: logger, inner: inner}
}

// Notify implements Notifier.
func (n *DryRunNotifier) Notify(_ context.Context, summary Summary) error {
	if summary.Empty() {
		return nil
	}
	n.logger.Info().
		Str("stack", summary.Stack).
		Int("changes", len(summary.Changes)).
		Int("failures", len(summary.Failures)).
		Msg("[DRY-RUN] Would notify")
	return nil
}
