package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, MinDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Factor: 2}
}

func TestDoRetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("hiccup"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestDoNeverRetriesQuota(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(context.Context) error {
		calls++
		return Quota(errors.New("rate limited"))
	})
	if err == nil {
		t.Fatalf("expected quota error")
	}
	if calls != 1 {
		t.Fatalf("quota errors must not be retried, got %d attempts", calls)
	}
	if Classify(err) != ClassQuota {
		t.Fatalf("expected quota class, got %v", Classify(err))
	}
}

func TestDoNeverRetriesAuthOrValidation(t *testing.T) {
	for _, wrap := range []func(error) error{Auth, Validation} {
		calls := 0
		_ = Do(context.Background(), fastPolicy(5), func(context.Context) error {
			calls++
			return wrap(errors.New("nope"))
		})
		if calls != 1 {
			t.Fatalf("non-retryable class retried, got %d attempts", calls)
		}
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(4), func(context.Context) error {
		calls++
		return errors.New("always down")
	})
	if err == nil {
		t.Fatalf("expected final error")
	}
	if calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", calls)
	}
}

func TestDoStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, fastPolicy(10), func(context.Context) error {
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClassifyUnwrapsThroughWrapping(t *testing.T) {
	base := Auth(errors.New("bad key"))
	wrapped := errors.Join(errors.New("call failed"), base)
	if Classify(wrapped) != ClassAuth {
		t.Fatalf("expected auth class through wrapping")
	}
}
