package strategy

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/alanyoungcy/studiobot/internal/domain"
)

// Params carries every knob a policy factory may need.
type Params struct {
	Limits domain.RiskLimits
	Maker  MakerConfig
	Taker  TakerConfig
	Rand   *rand.Rand
}

// Factory builds a Policy from Params.
type Factory func(Params) (Policy, error)

// Registry maps policy names to factories. It is safe for concurrent use.
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry returns a Registry with the maker and taker policies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MakerName, func(p Params) (Policy, error) {
		return NewMaker(p.Maker, p.Limits, p.Rand)
	})
	r.Register(TakerName, func(p Params) (Policy, error) {
		return NewTaker(p.Taker, p.Limits)
	})
	return r
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Build constructs the policy registered under name.
func (r *Registry) Build(name string, p Params) (Policy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return f(p)
}

// List returns the names of all registered policies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
