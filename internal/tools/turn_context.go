package tools

import (
	"context"
	"slices"
)

// Scope carries call-scoped dispatch options through the context tree. The
// dispatcher sets it once per call; stateful handlers read it in Execute.
type Scope struct {
	// AgentSessionID is the owning agent conversation. Terminal sessions
	// created during the call belong to it.
	AgentSessionID string
	// Workspace overrides the handler's configured workspace root.
	Workspace string
	// AllowUserSessions lets the call operate on user-created terminals.
	AllowUserSessions bool
	// Depth counts nested invoke_agent / run_workflow calls.
	Depth int
	// AllowTools is the effective tool allow-list; nil allows every tool.
	// Nested calls can only narrow it.
	AllowTools []string
}

// Allows reports whether the scope's allow-list admits name.
func (s Scope) Allows(name string) bool {
	return s.AllowTools == nil || slices.Contains(s.AllowTools, name)
}

// NarrowAllow returns the names of child that parent also admits, keeping
// child's order. A nil list admits everything, so nil is returned only when
// both are nil.
func NarrowAllow(parent, child []string) []string {
	switch {
	case parent == nil:
		return child
	case child == nil:
		return slices.Clone(parent)
	}
	out := make([]string, 0, len(child))
	for _, name := range child {
		if slices.Contains(parent, name) {
			out = append(out, name)
		}
	}
	return out
}

type scopeKey struct{}

// WithScope returns a child context that carries s.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom extracts the Scope from ctx.
// Returns a zero-value Scope if none was set.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}
