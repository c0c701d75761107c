// Package retry provides bounded retry with exponential backoff and the
// process-wide error taxonomy. Quota, validation and auth failures are never
// retried; transient ones are, up to a configured attempt count.
package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Factor      float64
	Jitter      bool
}

// DefaultPolicy retries three times starting at 250ms.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, MinDelay: 250 * time.Millisecond, MaxDelay: 5 * time.Second, Factor: 2, Jitter: true}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.MinDelay <= 0 {
		p.MinDelay = 250 * time.Millisecond
	}
	if p.MaxDelay < p.MinDelay {
		p.MaxDelay = p.MinDelay
	}
	if p.Factor <= 1 {
		p.Factor = 2
	}
	return p
}

// Do runs fn until it succeeds, it fails non-retryably, attempts are
// exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.normalized()
	b := &backoff.Backoff{Min: p.MinDelay, Max: p.MaxDelay, Factor: p.Factor, Jitter: p.Jitter}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= p.MaxAttempts || !Retryable(err) {
			return err
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
