package notify

import (
	"context"
	"time"
)

// Change describes one member moved to a new version locator.
type Change struct {
	Member      string `json:"member"`
	FromLocator string `json:"from_locator"`
	ToLocator   string `json:"to_locator"`
	FromVersion string `json:"from_version,omitempty"`
	ToVersion   string `json:"to_version,omitempty"`
}

// Summary is the outcome of one synchronization run.
type Summary struct {
	Stack       string    `json:"stack"`
	DryRun      bool      `json:"dry_run"`
	Written     bool      `json:"written"`
	Changes     []Change  `json:"changes"`
	Failures    []string  `json:"failures"`
	Unchanged   int       `json:"unchanged"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Empty reports whether the run had nothing worth announcing.
func (s Summary) Empty() bool {
	return len(s.Changes) == 0 && len(s.Failures) == 0
}

// Notifier delivers run summaries to external systems.
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}
