// Package strategy holds the pricing policies. A strategy is a pure
// function from market state to a trading decision; all engine logic is
// strategy-agnostic.
package strategy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/quantfold/turbinebot/internal/domain"
)

// Strategy defines the contract for pricing policies.
type Strategy interface {
	Name() string
	Decide(ctx context.Context, state domain.MarketState) (domain.Decision, error)
}

// Registry manages a named collection of strategies that can be looked up
// at runtime. It is safe for concurrent use.
type Registry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register adds a strategy to the registry under its own name. A strategy
// with the same name is replaced.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get retrieves a strategy by name. It returns an error when the name is
// not registered.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return s, nil
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
