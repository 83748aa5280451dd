package agent

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/crystaldolphin/tidewire/internal/shared/llmutils"
	"github.com/crystaldolphin/tidewire/internal/tools"
)

// SubagentRunner runs delegated tasks to completion. It implements
// tools.AgentInvoker for invoke_agent.
type SubagentRunner struct {
	runner  *Runner
	prompts *PromptBuilder
	closer  SessionCloser
	// defaults is the tool set used when a request names none.
	defaults []string
}

// NewSubagentRunner builds a runner. defaults is the default tool allow-list;
// nil means every tool except invoke_agent.
func NewSubagentRunner(runner *Runner, prompts *PromptBuilder, closer SessionCloser, defaults []string) *SubagentRunner {
	return &SubagentRunner{runner: runner, prompts: prompts, closer: closer, defaults: defaults}
}

func (sr *SubagentRunner) Invoke(ctx context.Context, req tools.AgentRequest) (string, error) {
	id := "subagent:" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	label := llmutils.Truncate(llmutils.StringOrDefault(req.Label, req.Task), 30)
	slog.Info("Subagent starting", "id", id, "label", label, "parent", req.ParentSessionID, "depth", req.Depth)

	defer func() {
		if sr.closer != nil {
			sr.closer.CloseByOwner(id)
		}
	}()

	res, err := sr.runner.Run(ctx, RunRequest{
		SessionID:    id,
		SystemPrompt: sr.prompts.SubagentPrompt(),
		Message:      req.Task,
		Tools:        sr.toolsFor(req.Tools, tools.NarrowAllow(sr.runner.settings.AllowTools, req.AllowTools)),
		Depth:        req.Depth,
	})
	if err != nil {
		slog.Error("Subagent failed", "id", id, "err", err)
		return "", fmt.Errorf("subagent %s: %w", label, err)
	}
	slog.Info("Subagent completed", "id", id, "iterations", res.Iterations)
	return llmutils.StringOrDefault(res.Content, "Task completed but no final response was generated."), nil
}

// toolsFor resolves the sub-agent's allow-list. The result never widens
// parent, the invoking agent's effective allow-list (nil allows all).
func (sr *SubagentRunner) toolsFor(requested, parent []string) []string {
	if len(requested) > 0 {
		return tools.NarrowAllow(parent, requested)
	}
	if sr.defaults != nil {
		return tools.NarrowAllow(parent, sr.defaults)
	}
	names := []string{}
	for _, def := range sr.runner.tools.Definitions(parent) {
		if def.Name != tools.ToolInvokeAgent {
			names = append(names, def.Name)
		}
	}
	return slices.Clip(names)
}
