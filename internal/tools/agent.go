package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// AgentRequest is one sub-agent invocation.
type AgentRequest struct {
	Task  string
	Label string
	// Tools restricts the sub-agent's tool set; nil inherits the default.
	Tools []string
	// AllowTools is the invoking agent's effective allow-list; the
	// sub-agent can only narrow it. nil allows every tool.
	AllowTools []string
	// ParentSessionID is the invoking agent conversation.
	ParentSessionID string
	Depth           int
}

// AgentInvoker runs a sub-agent to completion and returns its final answer.
// Implemented by agent.SubagentRunner.
type AgentInvoker interface {
	Invoke(ctx context.Context, req AgentRequest) (string, error)
}

// InvokeAgentTool delegates a self-contained task to a sub-agent.
type InvokeAgentTool struct {
	invoker AgentInvoker
}

func NewInvokeAgentTool(invoker AgentInvoker) *InvokeAgentTool {
	return &InvokeAgentTool{invoker: invoker}
}

func (t *InvokeAgentTool) Definition() schema.ToolDefinition {
	return def(ToolInvokeAgent,
		"Delegate a self-contained task to a sub-agent and wait for its answer. "+
			"Use this for research or multi-step work that does not need the current conversation.",
		[]string{"task"},
		schema.Param("task", schema.TypeString, "The task for the sub-agent, with all context it needs"),
		schema.Param("label", schema.TypeString, "Short label for display"),
		schema.ArrayParam("tools", schema.TypeString, "Tool names the sub-agent may use (default: all but invoke_agent)"),
	)
}

func (t *InvokeAgentTool) Execute(ctx context.Context, args Args) (Output, error) {
	if t.invoker == nil {
		return Output{}, NewError(KindUnavailable, false, "sub-agents are not configured")
	}
	task, err := args.RequireString("task")
	if err != nil {
		return Output{}, err
	}
	scope := ScopeFrom(ctx)
	if scope.Depth >= maxNestingDepth {
		return Output{}, NewError(KindPermissionDenied, false, "sub-agent nesting deeper than %d", maxNestingDepth)
	}

	answer, err := t.invoker.Invoke(ctx, AgentRequest{
		Task:            task,
		Label:           args.String("label"),
		Tools:           args.Strings("tools"),
		AllowTools:      scope.AllowTools,
		ParentSessionID: scope.AgentSessionID,
		Depth:           scope.Depth + 1,
	})
	if err != nil {
		var te *Error
		if errors.As(err, &te) {
			return Output{}, err
		}
		return Output{}, Failed(fmt.Errorf("sub-agent: %w", err))
	}
	return Text(answer), nil
}
