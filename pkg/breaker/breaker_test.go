package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing(context.Context) error    { return errBoom }
func succeeding(context.Context) error { return nil }

func TestOpensAfterThresholdAndFailsFast(t *testing.T) {
	b := New("fetch", Config{MaxFailures: 3, Cooldown: time.Hour}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, failing); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: expected wrapped op error, got %v", i, err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %v", b.State())
	}

	invoked := false
	err := b.Execute(ctx, func(context.Context) error { invoked = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if invoked {
		t.Fatalf("open breaker must not invoke the wrapped operation")
	}
}

func TestHalfOpenProbeSuccessCloses(t *testing.T) {
	b := New("fetch", Config{MaxFailures: 1, Cooldown: 10 * time.Millisecond}, nil)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	time.Sleep(15 * time.Millisecond)
	if err := b.Execute(ctx, succeeding); err != nil {
		t.Fatalf("probe should have been allowed through: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("successful probe must close, got %v", b.State())
	}
	if b.Failures() != 0 {
		t.Fatalf("close must zero the failure counter, got %d", b.Failures())
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b := New("fetch", Config{MaxFailures: 1, Cooldown: 10 * time.Millisecond}, nil)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	time.Sleep(15 * time.Millisecond)

	if err := b.Execute(ctx, failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe must run the operation, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("failed probe must reopen, got %v", b.State())
	}

	// Cooldown clock restarted: the immediate next call is rejected.
	if err := b.Execute(ctx, succeeding); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected fail-fast right after reopen, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("fetch", Config{MaxFailures: 3, Cooldown: time.Hour}, nil)
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, succeeding)
	_ = b.Execute(ctx, failing)
	_ = b.Execute(ctx, failing)
	if b.State() != StateClosed {
		t.Fatalf("non-consecutive failures must not open, got %v", b.State())
	}
}

func TestObserverSeesTransitions(t *testing.T) {
	var changes []StateChange
	b := New("fetch", Config{MaxFailures: 1, Cooldown: 5 * time.Millisecond}, func(c StateChange) {
		changes = append(changes, c)
	})
	ctx := context.Background()

	_ = b.Execute(ctx, failing)
	time.Sleep(10 * time.Millisecond)
	_ = b.Execute(ctx, succeeding)

	want := []State{StateOpen, StateHalfOpen, StateClosed}
	if len(changes) != len(want) {
		t.Fatalf("expected %d transitions, got %d (%v)", len(want), len(changes), changes)
	}
	for i, c := range changes {
		if c.To != want[i] {
			t.Fatalf("transition %d: expected %v, got %v", i, want[i], c.To)
		}
	}
}
