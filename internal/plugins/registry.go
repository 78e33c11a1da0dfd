// Package plugins provides the default closed-enumeration PluginRegistry
// (spec.md §9) and a couple of illustrative builtin plugins. Real plugin
// discovery is explicitly out of scope (spec.md §1); production callers
// register whatever plugins they compile in via Registry.Register.
package plugins

import (
	"sync"

	"github.com/runbookhq/runbookengine/internal/runner"
)

// Registry is the default runner.PluginRegistry: a fixed map populated at
// startup, never mutated during a run.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]runner.Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: map[string]runner.Plugin{}}
}

// Register adds a plugin under name. Call during process startup, before
// any Engine run begins; Lookup is read-only thereafter.
func (r *Registry) Register(name string, p runner.Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[name] = p
}

func (r *Registry) Lookup(name string) (runner.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}
