package selector

import (
	"errors"
	"testing"

	"github.com/nholik/stack-updater/internal/catalog"
)

func candidate(locator string, canUpdate bool, state, entered string) catalog.VersionUpdate {
	return catalog.VersionUpdate{
		VersionLocator: locator,
		Version:        locator,
		CanUpdate:      canUpdate,
		State:          &catalog.UpdateState{Current: state, CurrentEntered: entered},
	}
}

func TestSelectLatest(t *testing.T) {
	tests := []struct {
		name       string
		candidates []catalog.VersionUpdate
		want       string
		wantOK     bool
	}{
		{
			name:   "empty",
			wantOK: false,
		},
		{
			name: "newest eligible wins",
			candidates: []catalog.VersionUpdate{
				candidate("cat.old", true, "consumable", "2024-01-01T00:00:00Z"),
				candidate("cat.new", true, "consumable", "2024-03-01T00:00:00Z"),
				candidate("cat.mid", true, "consumable", "2024-02-01T00:00:00Z"),
			},
			want:   "cat.new",
			wantOK: true,
		},
		{
			name: "skips newer deprecated",
			candidates: []catalog.VersionUpdate{
				candidate("cat.dep", true, "deprecated", "2024-04-01T00:00:00Z"),
				candidate("cat.ok", true, "consumable", "2024-01-01T00:00:00Z"),
			},
			want:   "cat.ok",
			wantOK: true,
		},
		{
			name: "skips newer non-updatable",
			candidates: []catalog.VersionUpdate{
				candidate("cat.blocked", false, "consumable", "2024-04-01T00:00:00Z"),
				candidate("cat.ok", true, "consumable", "2024-01-01T00:00:00Z"),
			},
			want:   "cat.ok",
			wantOK: true,
		},
		{
			name: "skips working state",
			candidates: []catalog.VersionUpdate{
				candidate("cat.wip", true, "working", "2024-04-01T00:00:00Z"),
			},
			wantOK: false,
		},
		{
			name: "nothing eligible",
			candidates: []catalog.VersionUpdate{
				candidate("cat.a", false, "consumable", "2024-04-01T00:00:00Z"),
				candidate("cat.b", true, "deprecated", "2024-03-01T00:00:00Z"),
			},
			wantOK: false,
		},
		{
			name: "recency beats version string",
			candidates: []catalog.VersionUpdate{
				{VersionLocator: "cat.v2", Version: "2.0.0", CanUpdate: true, State: &catalog.UpdateState{Current: "consumable", CurrentEntered: "2024-01-01T00:00:00Z"}},
				{VersionLocator: "cat.v1", Version: "1.9.9", CanUpdate: true, State: &catalog.UpdateState{Current: "consumable", CurrentEntered: "2024-06-01T00:00:00Z"}},
			},
			want:   "cat.v1",
			wantOK: true,
		},
		{
			name: "timezone offsets compare as instants",
			candidates: []catalog.VersionUpdate{
				candidate("cat.utc", true, "consumable", "2024-01-01T10:00:00Z"),
				candidate("cat.offset", true, "consumable", "2024-01-01T12:00:00+01:00"),
			},
			want:   "cat.offset",
			wantOK: true,
		},
		{
			name: "ties keep input order",
			candidates: []catalog.VersionUpdate{
				candidate("cat.first", true, "consumable", "2024-01-01T00:00:00Z"),
				candidate("cat.second", true, "consumable", "2024-01-01T00:00:00Z"),
			},
			want:   "cat.first",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := SelectLatest(tt.candidates)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.VersionLocator != tt.want {
				t.Fatalf("selected %q, want %q", got.VersionLocator, tt.want)
			}
		})
	}
}

func TestSelectLatest_MissingTimestampFailsClosed(t *testing.T) {
	candidates := []catalog.VersionUpdate{
		candidate("cat.ok", true, "consumable", "2024-01-01T00:00:00Z"),
		{VersionLocator: "cat.nostate", CanUpdate: true},
	}

	_, ok, err := SelectLatest(candidates)
	if ok {
		t.Fatalf("expected no selection on malformed input")
	}
	if !errors.Is(err, ErrMissingStateEntered) {
		t.Fatalf("expected ErrMissingStateEntered, got %v", err)
	}
	var invalid *InvalidCandidateError
	if !errors.As(err, &invalid) || invalid.VersionLocator != "cat.nostate" {
		t.Fatalf("expected InvalidCandidateError for cat.nostate, got %v", err)
	}
}

func TestSelectLatest_UnparseableTimestamp(t *testing.T) {
	candidates := []catalog.VersionUpdate{
		candidate("cat.bad", true, "consumable", "last tuesday"),
	}

	if _, _, err := SelectLatest(candidates); err == nil {
		t.Fatalf("expected error for unparseable timestamp")
	}
}

func TestRank_DoesNotMutateInput(t *testing.T) {
	candidates := []catalog.VersionUpdate{
		candidate("cat.old", true, "consumable", "2024-01-01T00:00:00Z"),
		candidate("cat.new", true, "consumable", "2024-03-01T00:00:00Z"),
	}

	ranked, err := Rank(candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ranked[0].VersionLocator != "cat.new" {
		t.Fatalf("unexpected order: %+v", ranked)
	}
	if candidates[0].VersionLocator != "cat.old" {
		t.Fatalf("input slice was reordered")
	}
}

// Every eligible candidate must lose to or equal the selected one.
func TestSelectLatest_NeverBeatenByEligibleCandidate(t *testing.T) {
	states := []string{"consumable", "deprecated", "working"}
	days := []string{"01", "05", "09", "13", "17", "21", "25"}

	var candidates []catalog.VersionUpdate
	for i, day := range days {
		state := states[i%len(states)]
		candidates = append(candidates, candidate("cat."+day, i%2 == 0, state, "2024-02-"+day+"T00:00:00Z"))
	}

	got, ok, err := SelectLatest(candidates)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a selection")
	}
	if !Eligible(got) {
		t.Fatalf("selected ineligible candidate %+v", got)
	}
	for _, c := range candidates {
		if Eligible(c) && c.State.CurrentEntered > got.State.CurrentEntered {
			t.Fatalf("eligible %q entered after selected %q", c.VersionLocator, got.VersionLocator)
		}
	}
}
