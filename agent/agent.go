// Package agent defines the interface to the subject under evaluation and a
// name-to-factory registry for resolving agent references at configuration
// time.
package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gauntlet-eval/gauntlet/types"
)

// Agent is the external subject under test. Invoke is called once per case;
// the caller wraps it in its own deadline and treats any error as a failed
// invocation, so implementations are free to block or fail.
type Agent interface {
	Invoke(ctx context.Context, input string) (*types.AgentResult, error)
}

// Func adapts a plain function to the Agent interface.
type Func func(ctx context.Context, input string) (*types.AgentResult, error)

// Invoke implements Agent.
func (f Func) Invoke(ctx context.Context, input string) (*types.AgentResult, error) {
	return f(ctx, input)
}

// Factory builds an agent from its configuration. Factories are registered by
// name and resolved when a run is configured, never at call time.
type Factory func(cfg map[string]any) (Agent, error)

// Registry maps agent names to factories. It is constructed explicitly and
// passed into entry points; there is no process-wide default.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under the given name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve builds an agent from a registered factory.
func (r *Registry) Resolve(name string, cfg map[string]any) (Agent, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent %q, available: %v", name, r.Names())
	}
	return f(cfg)
}

// Names returns the registered agent names, sorted.
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

// DefaultRegistry returns a registry preloaded with the built-in agents.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("echo", func(cfg map[string]any) (Agent, error) {
		return Echo(), nil
	})
	r.Register("http", NewHTTPAgent)
	return r
}

// Echo returns an agent that replies with its own input. Useful for smoke
// tests and for exercising a deployment without a real subject.
func Echo() Agent {
	return Func(func(ctx context.Context, input string) (*types.AgentResult, error) {
		return &types.AgentResult{Output: input}, nil
	})
}
