package notify

import (
	"context"
)

// MultiNotifier fans out notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that dispatches to all provided notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	filtered := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier == nil {
			continue
		}
		filtered = append(filtered, notifier)
	}
	return &MultiNotifier{notifiers: filtered}
}

// Len reports how many notifiers are attached.
func (m *MultiNotifier) Len() int {
	return len(m.notifiers)
}

// Notify implements Notifier. Every notifier is attempted; the first error is returned.
func (m *MultiNotifier) Notify(ctx context.Context, summary Summary) error {
	var firstErr error
	for _, notifier := range m.notifiers {
		if err := notifier.Notify(ctx, summary); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
