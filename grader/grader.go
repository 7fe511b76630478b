// Package grader holds the grading functions applied to agent output and the
// registry that resolves them by name. Graders are deliberately simple
// comparisons; the interesting machinery lives in the runner and the
// statistics engine.
package grader

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gauntlet-eval/gauntlet/types"
)

// Grader scores an agent's result against a case's expectation.
type Grader interface {
	Grade(c *types.Case, result *types.AgentResult) (types.GradeResult, error)
}

// Factory builds a grader from its per-case configuration.
type Factory func(cfg map[string]any) (Grader, error)

// Registry maps grader names to factories, resolved at configuration time.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty grader registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether a grader name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Resolve builds a grader from a registered factory.
func (r *Registry) Resolve(name string, cfg map[string]any) (Grader, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown grader %q, available: %v", name, r.Names())
	}
	return f(cfg)
}

// Names returns the registered grader names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry preloaded with the built-in graders.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("exact", newExact)
	r.Register("contains", newContains)
	r.Register("regex", newRegex)
	r.Register("tool-check", newToolCheck)
	return r
}
