// Package selector picks the update a stack member should move to.
//
// Candidates are ranked by when they entered their current lifecycle state,
// newest first, and the first one that is both updatable and consumable wins.
// Version strings are never compared: an offering's history is not assumed to
// be monotonically ordered by semver.
package selector

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nholik/stack-updater/internal/catalog"
)

// ErrMissingStateEntered is returned when a candidate has no usable
// state.current_entered timestamp.
var ErrMissingStateEntered = errors.New("candidate missing state.current_entered")

// InvalidCandidateError identifies the candidate that made a selection fail.
type InvalidCandidateError struct {
	VersionLocator string
	Err            error
}

func (e *InvalidCandidateError) Error() string {
	return fmt.Sprintf("candidate %q: %v", e.VersionLocator, e.Err)
}

func (e *InvalidCandidateError) Unwrap() error {
	return e.Err
}

type ranked struct {
	update  catalog.VersionUpdate
	entered time.Time
}

// SelectLatest returns the most recently promoted candidate with can_update
// set and a consumable state. ok is false when nothing qualifies, which is not
// an error. A candidate whose timestamp is missing or unparseable fails the
// whole selection rather than being guessed into the order.
func SelectLatest(candidates []catalog.VersionUpdate) (catalog.VersionUpdate, bool, error) {
	ordered, err := Rank(candidates)
	if err != nil {
		return catalog.VersionUpdate{}, false, err
	}
	for _, candidate := range ordered {
		if Eligible(candidate) {
			return candidate, true, nil
		}
	}
	return catalog.VersionUpdate{}, false, nil
}

// Rank returns a copy of candidates ordered by state.current_entered
// descending. Candidates entered at the same instant keep their input order.
func Rank(candidates []catalog.VersionUpdate) ([]catalog.VersionUpdate, error) {
	items := make([]ranked, 0, len(candidates))
	for _, candidate := range candidates {
		entered, err := enteredAt(candidate)
		if err != nil {
			return nil, &InvalidCandidateError{VersionLocator: candidate.VersionLocator, Err: err}
		}
		items = append(items, ranked{update: candidate, entered: entered})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].entered.After(items[j].entered)
	})

	out := make([]catalog.VersionUpdate, len(items))
	for i, item := range items {
		out[i] = item.update
	}
	return out, nil
}

// Eligible reports whether a candidate may be selected.
func Eligible(candidate catalog.VersionUpdate) bool {
	return candidate.CanUpdate && candidate.State != nil && candidate.State.Current == catalog.StateConsumable
}

func enteredAt(candidate catalog.VersionUpdate) (time.Time, error) {
	if candidate.State == nil || candidate.State.CurrentEntered == "" {
		return time.Time{}, ErrMissingStateEntered
	}
	entered, err := time.Parse(time.RFC3339Nano, candidate.State.CurrentEntered)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse state.current_entered: %w", err)
	}
	return entered, nil
}
