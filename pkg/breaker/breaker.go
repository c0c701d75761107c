// Package breaker implements a three-state circuit breaker around an
// arbitrary fallible operation. Closed passes calls through and counts
// failures; after the threshold the breaker opens and fails fast until the
// cooldown elapses, then exactly one half-open probe decides the next state.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of the breaker.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned on fail-fast rejections, without invoking the wrapped
// operation.
var ErrOpen = errors.New("circuit breaker open")

// Config tunes one breaker instance.
type Config struct {
	MaxFailures int           // consecutive failures before opening
	Cooldown    time.Duration // open duration before a half-open probe
}

// DefaultConfig opens after 5 failures with a 30s cooldown.
func DefaultConfig() Config {
	return Config{MaxFailures: 5, Cooldown: 30 * time.Second}
}

// StateChange is reported to the optional observer on every transition.
type StateChange struct {
	Name string
	From State
	To   State
}

// Breaker guards one operation. Instances are per-worker-per-operation and
// safe for concurrent use.
type Breaker struct {
	name    string
	cfg     Config
	observe func(StateChange)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker. observe may be nil.
func New(name string, cfg Config, observe func(StateChange)) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultConfig().MaxFailures
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Breaker{name: name, cfg: cfg, observe: observe, state: StateClosed}
}

// Execute runs fn under the breaker. When open it returns an error wrapping
// ErrOpen without calling fn. In half-open only a single probe is let
// through; concurrent calls fail fast until the probe settles.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn(ctx)
	b.settle(err)
	return err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.Cooldown {
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.transition(StateHalfOpen)
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return fmt.Errorf("%s: probe in flight: %w", b.name, ErrOpen)
		}
		b.probing = true
		return nil
	}
	return fmt.Errorf("%s: %w", b.name, ErrOpen)
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.probing = false
		if err != nil {
			// Probe failed: reopen and restart the cooldown clock.
			b.openedAt = time.Now()
			b.transition(StateOpen)
			return
		}
		b.failures = 0
		b.transition(StateClosed)
		return
	}

	if err == nil {
		b.failures = 0
		return
	}
	b.failures++
	if b.state == StateClosed && b.failures >= b.cfg.MaxFailures {
		b.openedAt = time.Now()
		b.transition(StateOpen)
	}
}

// transition must be called with the lock held.
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.observe != nil {
		b.observe(StateChange{Name: b.name, From: from, To: to})
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Name identifies the breaker in logs and metrics.
func (b *Breaker) Name() string { return b.name }
