// Package strategy maps strategy identifiers to their typed parameter
// structs and evaluator constructors. Parameters are decoded and validated
// once at worker start, never inside the analysis loop.
package strategy

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
)

var validate = validator.New()

// Factory builds a configured evaluator from raw JSON parameters.
type Factory func(params json.RawMessage) (repository.Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("sma-cross", func(raw json.RawMessage) (repository.Strategy, error) {
		p := &SMACrossParams{}
		if err := decodeParams(raw, p); err != nil {
			return nil, err
		}
		if p.Fast >= p.Slow {
			return nil, fmt.Errorf("sma-cross: fast period %d must be below slow period %d", p.Fast, p.Slow)
		}
		return &smaCross{params: *p}, nil
	})
	r.Register("momentum", func(raw json.RawMessage) (repository.Strategy, error) {
		p := &MomentumParams{}
		if err := decodeParams(raw, p); err != nil {
			return nil, err
		}
		return &momentum{params: *p}, nil
	})
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Build constructs a configured evaluator for name.
func (r *Registry) Build(name string, params json.RawMessage) (repository.Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
	return f(params)
}

// Names lists registered strategies, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func decodeParams(raw json.RawMessage, dst interface{}) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
	}
	if err := defaults.Set(dst); err != nil {
		return fmt.Errorf("apply param defaults: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validate params: %w", err)
	}
	return nil
}
