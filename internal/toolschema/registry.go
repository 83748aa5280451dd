// Package toolschema keeps canonical tool definitions and renders them into
// each provider's function-declaration shape.
package toolschema

import (
	"fmt"
	"sync"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// Registry is an ordered set of tool definitions. Registration order is the
// order tools are presented to the model.
type Registry struct {
	mu    sync.RWMutex
	defs  []schema.ToolDefinition
	index map[string]int
}

func NewRegistry(defs ...schema.ToolDefinition) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(defs))}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends def. Names must be unique across the registry.
func (r *Registry) Register(def schema.ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.index[def.Name]; exists {
		return fmt.Errorf("tool %s already registered", def.Name)
	}
	r.index[def.Name] = len(r.defs)
	r.defs = append(r.defs, def)
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (schema.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	if !ok {
		return schema.ToolDefinition{}, false
	}
	return r.defs[i], true
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Definitions returns a copy of all definitions in registration order.
func (r *Registry) Definitions() []schema.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.ToolDefinition, len(r.defs))
	copy(out, r.defs)
	return out
}

// Filter returns the definitions whose names are in allow, keeping
// registration order. A nil allow-list keeps everything; an empty non-nil
// list keeps nothing.
func (r *Registry) Filter(allow []string) []schema.ToolDefinition {
	return Filter(r.Definitions(), allow)
}

// Filter applies an allow-list to defs. See Registry.Filter.
func Filter(defs []schema.ToolDefinition, allow []string) []schema.ToolDefinition {
	if allow == nil {
		out := make([]schema.ToolDefinition, len(defs))
		copy(out, defs)
		return out
	}
	set := make(map[string]struct{}, len(allow))
	for _, name := range allow {
		set[name] = struct{}{}
	}
	out := make([]schema.ToolDefinition, 0, len(allow))
	for _, d := range defs {
		if _, ok := set[d.Name]; ok {
			out = append(out, d)
		}
	}
	return out
}
