package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// bootstrapFiles lists workspace files loaded into the system prompt.
var bootstrapFiles = []string{"AGENTS.md", "USER.md", "TOOLS.md"}

// PromptBuilder assembles system prompts.
type PromptBuilder struct {
	workspace string
	extra     string
	now       func() time.Time
}

// NewPromptBuilder creates a builder for workspace. extra is appended to
// every main-agent prompt.
func NewPromptBuilder(workspace, extra string) *PromptBuilder {
	return &PromptBuilder{workspace: workspace, extra: extra, now: time.Now}
}

// BuildSystemPrompt assembles identity + bootstrap files + configured text.
func (pb *PromptBuilder) BuildSystemPrompt(sessionKey string) string {
	parts := []string{pb.identity()}
	if bootstrap := pb.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	if pb.extra != "" {
		parts = append(parts, pb.extra)
	}
	if sessionKey != "" {
		parts = append(parts, "## Current Session\n"+sessionKey)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func (pb *PromptBuilder) identity() string {
	return fmt.Sprintf(`# tidewire

You are tidewire, a helpful assistant running on the user's computer.

## Current Time
%s

## Runtime
%s

## Workspace
Your workspace is at: %s

Reply directly with text for normal conversation. Before calling tools, briefly tell the user what you are about to do.
Terminal sessions persist between calls: create one with create_terminal, send commands with execute_command, then collect output with read_output.
Close terminal sessions you no longer need.
Use save_memory for facts worth keeping across conversations and search_memory or search_messages to recall them.`,
		pb.clock(), runtimeString(), pb.workspace)
}

// SubagentPrompt is the system prompt for a delegated task.
func (pb *PromptBuilder) SubagentPrompt() string {
	return strings.Join([]string{
		"# Subagent",
		"",
		"## Current Time",
		pb.clock(),
		"",
		"You are a subagent invoked by the main agent to complete a specific task.",
		"",
		"## Rules",
		"1. Stay focused - complete only the assigned task, nothing else",
		"2. Your final response is returned to the main agent, not shown to the user",
		"3. Be concise but informative in your findings",
		"4. Close any terminal sessions you open",
		"",
		"## Workspace",
		"Your workspace is at: " + pb.workspace,
		"OS: " + runtimeString(),
		"",
		"When you have completed the task, provide a clear summary of your findings or actions.",
	}, "\n")
}

func (pb *PromptBuilder) clock() string {
	now := pb.now()
	tz, _ := now.Zone()
	if tz == "" {
		tz = "UTC"
	}
	return now.Format("2006-01-02 15:04 (Monday)") + " (" + tz + ")"
}

func runtimeString() string {
	goos := runtime.GOOS
	if goos == "darwin" {
		goos = "macOS"
	}
	return fmt.Sprintf("%s %s, Go %s", goos, runtime.GOARCH, runtime.Version())
}

// loadBootstrapFiles reads the bootstrap markdown files present in the workspace.
func (pb *PromptBuilder) loadBootstrapFiles() string {
	if pb.workspace == "" {
		return ""
	}
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(pb.workspace, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, strings.TrimSpace(string(data))))
	}
	return strings.Join(parts, "\n\n")
}
