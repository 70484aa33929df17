package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

type countingNotifier struct {
	calls int
	err   error
}

func (n *countingNotifier) Notify(context.Context, Summary) error {
	n.calls++
	return n.err
}

func TestDryRunNotifierSuppressesDelivery(t *testing.T) {
	inner := &countingNotifier{}
	dryRun := NewDryRunNotifier(zerolog.Nop(), inner)

	if err := dryRun.Notify(context.Background(), makeSummary(1, 1)); err != nil {
		t.Fatalf("Notify error: %v", err)
	}
	if inner.calls != 0 {
		t.Fatalf("expected no notifier calls, got %d", inner.calls)
	}
}

func TestMultiNotifierCallsAllAndReturnsFirstError(t *testing.T) {
	first := &countingNotifier{err: errors.New("first")}
	second := &countingNotifier{err: errors.New("second")}
	multi := NewMultiNotifier(first, nil, second)

	if multi.Len() != 2 {
		t.Fatalf("expected nil notifiers to be dropped, got %d", multi.Len())
	}
	err := multi.Notify(context.Background(), makeSummary(1, 0))
	if err == nil || err.Error() != "first" {
		t.Fatalf("expected first error, got %v", err)
	}
	if first.calls != 1 || second.calls != 1 {
		t.Fatalf("expected every notifier to be called, got %d/%d", first.calls, second.calls)
	}
}
