// Package syncer runs a full update pass over a stack definition: every member
// is resolved against the catalog, and the file is rewritten once at the end
// when at least one locator moved.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/nholik/stack-updater/internal/catalog"
	"github.com/nholik/stack-updater/internal/metrics"
	"github.com/nholik/stack-updater/internal/notify"
	"github.com/nholik/stack-updater/internal/resolver"
	"github.com/nholik/stack-updater/internal/stack"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Result summarizes one pass. Outcomes are in member order regardless of
// how many members were resolved concurrently.
type Result struct {
	Outcomes  []resolver.Outcome
	Updated   bool
	Failures  []string
	Unchanged int
	Written   bool
}

// ExitCode is 0 when every member resolved and 1 otherwise.
func (r Result) ExitCode() int {
	if len(r.Failures) > 0 {
		return 1
	}
	return 0
}

// Synchronizer orchestrates a single run.
type Synchronizer struct {
	logger      zerolog.Logger
	store       stack.Store
	client      catalog.Client
	metrics     *metrics.Metrics
	notifier    notify.Notifier
	stackName   string
	dryRun      bool
	concurrency int
	now         func() time.Time
}

// Option customizes synchronizer behavior.
type Option func(*Synchronizer)

// WithDryRun disables the write-back.
func WithDryRun(dryRun bool) Option {
	return func(s *Synchronizer) {
		s.dryRun = dryRun
	}
}

// WithConcurrency sets how many members are resolved at once.
func WithConcurrency(n int) Option {
	return func(s *Synchronizer) {
		s.concurrency = n
	}
}

// WithMetrics records run metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Synchronizer) {
		s.metrics = m
	}
}

// WithNotifier sends the run summary to n.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Synchronizer) {
		s.notifier = n
	}
}

// WithStackName labels logs, metrics and notifications.
func WithStackName(name string) Option {
	return func(s *Synchronizer) {
		s.stackName = name
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		s.now = now
	}
}

// New constructs a Synchronizer reading and writing through store and
// querying client.
func New(logger zerolog.Logger, store stack.Store, client catalog.Client, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		logger:      logger,
		store:       store,
		client:      client,
		stackName:   "default",
		concurrency: 1,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.concurrency < 1 {
		s.concurrency = 1
	}
	s.logger = s.logger.With().Str("stack", s.stackName).Logger()
	return s
}

// Run loads the definition, resolves every member and writes the result back.
// A returned error is fatal to the run; per-member problems are reported
// through Result.Failures.
func (s *Synchronizer) Run(ctx context.Context) (Result, error) {
	started := s.now()

	def, err := s.store.Load(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load stack definition: %w", err)
	}

	s.logger.Info().
		Int("members", len(def.Members)).
		Int("concurrency", s.concurrency).
		Bool("dry_run", s.dryRun).
		Msg("starting update run")

	// The cache lives for exactly one pass.
	res := resolver.New(s.logger, catalog.NewCache(s.client))
	outcomes := s.resolveAll(ctx, res, def.Members)

	result := Result{Outcomes: outcomes}
	for _, outcome := range outcomes {
		switch outcome.Status {
		case resolver.StatusUpdated:
			result.Updated = true
		case resolver.StatusUnchanged:
			result.Unchanged++
		case resolver.StatusFailed:
			result.Failures = append(result.Failures, outcome.Failure())
		}
	}

	if err := ctx.Err(); err != nil {
		s.logger.Warn().Msg("run canceled; stack definition not written")
		s.logFailures(result)
		s.record(result, started)
		return result, fmt.Errorf("run canceled: %w", err)
	}

	switch {
	case !result.Updated:
		s.logger.Info().Msg("no member updates; stack definition unchanged")
	case s.dryRun:
		for _, outcome := range outcomes {
			if outcome.Status != resolver.StatusUpdated {
				continue
			}
			s.logger.Info().
				Str("member", outcome.Member).
				Str("from", outcome.PreviousLocator).
				Str("to", outcome.Locator).
				Msg("[DRY-RUN] Would update member")
		}
		s.logger.Info().Msg("[DRY-RUN] Skipping stack definition write")
	default:
		if err := s.store.Save(ctx, def); err != nil {
			s.record(result, started)
			return result, fmt.Errorf("write stack definition: %w", err)
		}
		result.Written = true
		s.logger.Info().Msg("stack definition written")
	}

	s.logFailures(result)
	s.record(result, started)
	s.notify(ctx, result)

	return result, nil
}

func (s *Synchronizer) resolveAll(ctx context.Context, res *resolver.Resolver, members []*stack.Member) []resolver.Outcome {
	outcomes := make([]resolver.Outcome, len(members))
	resolve := func(i int, member *stack.Member) {
		if ctx.Err() != nil {
			outcomes[i] = resolver.Failed(member.Index, member.Name, member.VersionLocator, resolver.ReasonCanceled, "", ctx.Err())
			return
		}
		outcomes[i] = res.Resolve(ctx, member)
	}

	if s.concurrency == 1 {
		for i, member := range members {
			resolve(i, member)
		}
		return outcomes
	}

	var group errgroup.Group
	group.SetLimit(s.concurrency)
	for i, member := range members {
		i, member := i, member
		group.Go(func() error {
			resolve(i, member)
			return nil
		})
	}
	_ = group.Wait()
	return outcomes
}

func (s *Synchronizer) logFailures(result Result) {
	if len(result.Failures) == 0 {
		return
	}
	for _, failure := range result.Failures {
		s.logger.Error().Msg(failure)
	}
	s.logger.Error().
		Int("failures", len(result.Failures)).
		Msg("some members could not be updated")
}

func (s *Synchronizer) record(result Result, started time.Time) {
	if s.metrics == nil {
		return
	}
	finished := s.now()
	counts := map[resolver.Status]int{}
	for _, outcome := range result.Outcomes {
		counts[outcome.Status]++
		if outcome.Status == resolver.StatusFailed {
			s.metrics.IncMemberFailures(s.stackName, outcome.Reason)
		}
	}
	for _, status := range []resolver.Status{resolver.StatusUnchanged, resolver.StatusUpdated, resolver.StatusFailed} {
		s.metrics.SetMembersTotal(s.stackName, status.String(), counts[status])
	}
	s.metrics.ObserveRunDuration(finished.Sub(started))
	s.metrics.SetLastRunTimestamp(finished)
	if len(result.Failures) == 0 {
		s.metrics.SetLastSuccessfulRunTimestamp(finished)
	}
}

func (s *Synchronizer) notify(ctx context.Context, result Result) {
	if s.notifier == nil {
		return
	}
	summary := notify.Summary{
		Stack:       s.stackName,
		DryRun:      s.dryRun,
		Written:     result.Written,
		Failures:    result.Failures,
		Unchanged:   result.Unchanged,
		GeneratedAt: s.now().UTC(),
	}
	for _, outcome := range result.Outcomes {
		if outcome.Status != resolver.StatusUpdated {
			continue
		}
		summary.Changes = append(summary.Changes, notify.Change{
			Member:      outcome.Member,
			FromLocator: outcome.PreviousLocator,
			ToLocator:   outcome.Locator,
			FromVersion: outcome.CurrentVersion,
			ToVersion:   outcome.LatestVersion,
		})
	}
	if err := s.notifier.Notify(ctx, summary); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send run notification")
	}
}
