package tools

import (
	"context"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// Set is an ordered, named group of tools: one handler family.
type Set struct {
	name  string
	order []string
	tools map[string]Tool
}

func NewSet(name string, ts ...Tool) *Set {
	s := &Set{name: name, tools: make(map[string]Tool, len(ts))}
	for _, t := range ts {
		s.Add(t)
	}
	return s
}

func (s *Set) Name() string { return s.name }

// Add registers t, replacing any tool with the same name in place.
func (s *Set) Add(t Tool) {
	name := t.Definition().Name
	if _, exists := s.tools[name]; !exists {
		s.order = append(s.order, name)
	}
	s.tools[name] = t
}

// Has reports whether the set handles name. It is the family predicate used
// by the dispatcher.
func (s *Set) Has(name string) bool {
	_, ok := s.tools[name]
	return ok
}

// Get returns the tool with the given name, or nil.
func (s *Set) Get(name string) Tool { return s.tools[name] }

// Names returns tool names in registration order.
func (s *Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Tools returns the tools in registration order.
func (s *Set) Tools() []Tool {
	out := make([]Tool, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name])
	}
	return out
}

// Definitions returns the canonical definitions in registration order.
func (s *Set) Definitions() []schema.ToolDefinition {
	out := make([]schema.ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].Definition())
	}
	return out
}

// Execute runs the named tool.
func (s *Set) Execute(ctx context.Context, name string, args Args) (Output, error) {
	t, ok := s.tools[name]
	if !ok {
		return Output{}, NewError(KindToolNotFound, false, "unknown tool: %s", name)
	}
	if args == nil {
		args = Args{}
	}
	return t.Execute(ctx, args)
}

// Func adapts a function into a Tool.
type Func struct {
	Def schema.ToolDefinition
	Fn  func(ctx context.Context, args Args) (Output, error)
}

func (f Func) Definition() schema.ToolDefinition { return f.Def }

func (f Func) Execute(ctx context.Context, args Args) (Output, error) { return f.Fn(ctx, args) }

// def is shorthand for building a ToolDefinition.
func def(name, description string, required []string, props ...schema.Property) schema.ToolDefinition {
	return schema.ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  schema.Parameters{Properties: props, Required: required},
	}
}
