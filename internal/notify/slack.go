package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nholik/stack-updater/internal/httpx"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	slackMaxBlocks = 50
	// slackReservedBlocks accounts for header block + context block in each message
	slackReservedBlocks = 2
	slackMaxItems       = slackMaxBlocks - slackReservedBlocks
)

// SlackNotifier posts run summaries to a Slack incoming webhook.
type SlackNotifier struct {
	logger zerolog.Logger
	timing httpx.Timing
	poster *poster
}

// SlackOption customizes SlackNotifier behavior.
type SlackOption func(*SlackNotifier)

// WithSlackTiming overrides timing parameters (primarily for testing).
func WithSlackTiming(rateInterval time.Duration, rateBurst int, backoffInitial, backoffMax, backoffMaxElapsed time.Duration) SlackOption {
	return func(s *SlackNotifier) {
		s.timing.RateInterval = rateInterval
		s.timing.RateBurst = rateBurst
		s.timing.BackoffInitial = backoffInitial
		s.timing.BackoffMax = backoffMax
		s.timing.BackoffMaxElapsed = backoffMaxElapsed
	}
}

// NewSlackNotifier creates a Slack notifier or a noop notifier when the webhook is empty.
func NewSlackNotifier(logger zerolog.Logger, webhookURL string, opts ...SlackOption) (Notifier, error) {
	if webhookURL == "" {
		return NewNoop(logger, "slack webhook not configured; notifications disabled"), nil
	}

	notifier := &SlackNotifier{
		logger: logger,
		timing: defaultTiming,
	}
	for _, opt := range opts {
		opt(notifier)
	}

	p, err := newPoster(logger, "slack", webhookURL, "application/json", notifier.timing)
	if err != nil {
		return nil, err
	}
	notifier.poster = p
	return notifier, nil
}

// Notify implements Notifier.
func (n *SlackNotifier) Notify(ctx context.Context, summary Summary) error {
	if summary.Empty() {
		return nil
	}

	messages := buildSlackMessages(summary)
	for _, message := range messages {
		payload, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal slack payload: %w", err)
		}
		if err := n.poster.post(ctx, payload); err != nil {
			return err
		}
	}

	n.logger.Debug().
		Str("stack", summary.Stack).
		Int("changes", len(summary.Changes)).
		Int("failures", len(summary.Failures)).
		Int("messages", len(messages)).
		Msg("slack notification sent")

	return nil
}

func buildSlackMessages(summary Summary) []slack.WebhookMessage {
	items := make([]slack.Block, 0, len(summary.Changes)+len(summary.Failures))
	for _, change := range summary.Changes {
		items = append(items, buildChangeBlock(change))
	}
	for _, failure := range summary.Failures {
		text := slack.NewTextBlockObject("mrkdwn", ":x: "+failure, false, false)
		items = append(items, slack.NewSectionBlock(text, nil, nil))
	}
	if len(items) == 0 {
		return nil
	}

	total := len(items)
	chunkTotal := (total + slackMaxItems - 1) / slackMaxItems
	messages := make([]slack.WebhookMessage, 0, chunkTotal)
	for i := 0; i < total; i += slackMaxItems {
		end := i + slackMaxItems
		if end > total {
			end = total
		}
		partIndex := (i / slackMaxItems) + 1
		messages = append(messages, buildSlackMessage(summary, items[i:end], partIndex, chunkTotal))
	}
	return messages
}

func buildSlackMessage(summary Summary, items []slack.Block, partIndex int, partTotal int) slack.WebhookMessage {
	text := fmt.Sprintf("Stack %s: %d update(s), %d failure(s)", summary.Stack, len(summary.Changes), len(summary.Failures))
	if summary.DryRun {
		text += " [dry run]"
	}
	if partTotal > 1 {
		text = fmt.Sprintf("%s (part %d/%d)", text, partIndex, partTotal)
	}
	header := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", text, false, false))

	contextElements := []slack.MixedElement{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Stack: *%s*", summary.Stack), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Unchanged: %d", summary.Unchanged), false, false),
	}
	if partTotal > 1 {
		contextElements = append(contextElements, slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("Batch: %d/%d", partIndex, partTotal), false, false))
	}
	contextBlock := slack.NewContextBlock("", contextElements...)

	blocks := append([]slack.Block{header, contextBlock}, items...)
	blockSet := slack.Blocks{BlockSet: blocks}
	return slack.WebhookMessage{
		Text:   text,
		Blocks: &blockSet,
	}
}

func buildChangeBlock(change Change) slack.Block {
	title := fmt.Sprintf("*%s*: `%s` → `%s`", change.Member, versionLabel(change.FromVersion), versionLabel(change.ToVersion))
	text := slack.NewTextBlockObject("mrkdwn", title, false, false)
	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*From:*\n`%s`", change.FromLocator), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*To:*\n`%s`", change.ToLocator), false, false),
	}
	return slack.NewSectionBlock(text, fields, nil)
}

func versionLabel(version string) string {
	if version == "" {
		return "unknown"
	}
	return version
}
