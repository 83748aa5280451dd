package terminal

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/tools"
)

const (
	ToolCreateTerminal   = "create_terminal"
	ToolExecuteCommand   = "execute_command"
	ToolReadOutput       = "read_output"
	ToolListTerminals    = "list_terminals"
	ToolGetTerminalState = "get_terminal_state"
	ToolCloseTerminal    = "close_terminal"
	ToolResizeTerminal   = "resize_terminal"

	defaultReadWait = 500 * time.Millisecond
	maxReadWait     = 30 * time.Second
)

// Tools returns the terminal family backed by m.
func Tools(m *Manager) *tools.Set {
	return tools.NewSet("terminal",
		tools.Func{Def: createDef, Fn: m.createTool},
		tools.Func{Def: executeDef, Fn: m.executeTool},
		tools.Func{Def: readDef, Fn: m.readTool},
		tools.Func{Def: listDef, Fn: m.listTool},
		tools.Func{Def: stateDef, Fn: m.stateTool},
		tools.Func{Def: closeDef, Fn: m.closeTool},
		tools.Func{Def: resizeDef, Fn: m.resizeTool},
	)
}

var (
	sessionIDParam = schema.Param("session_id", schema.TypeString, "Terminal session id returned by create_terminal")

	createDef = schema.ToolDefinition{
		Name:        ToolCreateTerminal,
		Description: "Open a persistent shell session. Commands run in it keep their working directory and environment.",
		Parameters: schema.Parameters{Properties: []schema.Property{
			schema.Param("cwd", schema.TypeString, "Working directory (default: the workspace)"),
		}},
	}
	executeDef = schema.ToolDefinition{
		Name:        ToolExecuteCommand,
		Description: "Run a command in a terminal session. Use read_output to collect what it prints.",
		Parameters: schema.Parameters{
			Properties: []schema.Property{
				sessionIDParam,
				schema.Param("command", schema.TypeString, "Shell command line"),
			},
			Required: []string{"session_id", "command"},
		},
	}
	readDef = schema.ToolDefinition{
		Name:        ToolReadOutput,
		Description: "Read output a terminal session produced since the last read.",
		Parameters: schema.Parameters{
			Properties: []schema.Property{
				sessionIDParam,
				schema.Param("wait_ms", schema.TypeInteger, "How long to wait for output when none is buffered (default 500)"),
			},
			Required: []string{"session_id"},
		},
	}
	listDef = schema.ToolDefinition{
		Name:        ToolListTerminals,
		Description: "List open terminal sessions with status, origin, command count and last activity.",
	}
	stateDef = schema.ToolDefinition{
		Name:        ToolGetTerminalState,
		Description: "Show a terminal session's command history, unread output and workspace.",
		Parameters: schema.Parameters{
			Properties: []schema.Property{sessionIDParam},
			Required:   []string{"session_id"},
		},
	}
	closeDef = schema.ToolDefinition{
		Name:        ToolCloseTerminal,
		Description: "Close a terminal session.",
		Parameters: schema.Parameters{
			Properties: []schema.Property{sessionIDParam},
			Required:   []string{"session_id"},
		},
	}
	resizeDef = schema.ToolDefinition{
		Name:        ToolResizeTerminal,
		Description: "Set a terminal session's window size. Commands started afterwards see it as COLUMNS and LINES.",
		Parameters: schema.Parameters{
			Properties: []schema.Property{
				sessionIDParam,
				schema.Param("cols", schema.TypeInteger, "Columns"),
				schema.Param("rows", schema.TypeInteger, "Rows"),
			},
			Required: []string{"session_id", "cols", "rows"},
		},
	}
)

func sessionMeta(id string) map[string]any { return map[string]any{schema.MetaSessionID: id} }

func (m *Manager) createTool(ctx context.Context, args tools.Args) (tools.Output, error) {
	scope := tools.ScopeFrom(ctx)
	dir := args.String("cwd")
	root := scope.Workspace
	if root == "" {
		root = m.workspace
	}
	if dir != "" && !filepath.IsAbs(dir) && root != "" {
		dir = filepath.Join(root, dir)
	}
	if dir == "" {
		dir = root
	}
	info, err := m.Create(ctx, CreateOptions{Origin: OriginAgent, Owner: scope.AgentSessionID, Dir: dir})
	if err != nil {
		return tools.Output{}, err
	}
	return tools.Output{
		Text:     "Created terminal session " + info.ID + " in " + info.Dir,
		Metadata: sessionMeta(info.ID),
	}, nil
}

func (m *Manager) executeTool(ctx context.Context, args tools.Args) (tools.Output, error) {
	id, err := args.RequireString("session_id")
	if err != nil {
		return tools.Output{}, err
	}
	command, err := args.RequireString("command")
	if err != nil {
		return tools.Output{}, err
	}
	if err := m.Execute(ctx, id, command, tools.ScopeFrom(ctx).AllowUserSessions); err != nil {
		return tools.Output{}, err
	}
	return tools.Output{Text: "Command sent to " + id, Metadata: sessionMeta(id)}, nil
}

func (m *Manager) readTool(ctx context.Context, args tools.Args) (tools.Output, error) {
	id, err := args.RequireString("session_id")
	if err != nil {
		return tools.Output{}, err
	}
	wait := time.Duration(args.Int("wait_ms", int(defaultReadWait/time.Millisecond))) * time.Millisecond
	wait = min(max(wait, 0), maxReadWait)

	out, err := m.Read(ctx, id, wait, tools.ScopeFrom(ctx).AllowUserSessions)
	if err != nil {
		return tools.Output{}, err
	}
	return tools.Output{Text: out, Metadata: sessionMeta(id)}, nil
}

func (m *Manager) listTool(ctx context.Context, _ tools.Args) (tools.Output, error) {
	allowUser := tools.ScopeFrom(ctx).AllowUserSessions
	infos := make([]Info, 0)
	for _, info := range m.List() {
		if info.Origin == OriginUser && !allowUser {
			continue
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return tools.Text("No open terminal sessions."), nil
	}
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return tools.Output{}, tools.Failed(err)
	}
	return tools.Output{Text: string(data), Metadata: map[string]any{"count": len(infos)}}, nil
}

func (m *Manager) stateTool(ctx context.Context, args tools.Args) (tools.Output, error) {
	id, err := args.RequireString("session_id")
	if err != nil {
		return tools.Output{}, err
	}
	st, err := m.Inspect(id, tools.ScopeFrom(ctx).AllowUserSessions)
	if err != nil {
		return tools.Output{}, err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return tools.Output{}, tools.Failed(err)
	}
	return tools.Output{Text: string(data), Metadata: sessionMeta(id)}, nil
}

func (m *Manager) closeTool(ctx context.Context, args tools.Args) (tools.Output, error) {
	id, err := args.RequireString("session_id")
	if err != nil {
		return tools.Output{}, err
	}
	if err := m.Close(id, tools.ScopeFrom(ctx).AllowUserSessions); err != nil {
		return tools.Output{}, err
	}
	return tools.Output{Text: "Closed terminal session " + id, Metadata: sessionMeta(id)}, nil
}

func (m *Manager) resizeTool(ctx context.Context, args tools.Args) (tools.Output, error) {
	id, err := args.RequireString("session_id")
	if err != nil {
		return tools.Output{}, err
	}
	cols, rows := args.Int("cols", 0), args.Int("rows", 0)
	if err := m.Resize(ctx, id, cols, rows, tools.ScopeFrom(ctx).AllowUserSessions); err != nil {
		return tools.Output{}, err
	}
	return tools.Output{Text: fmt.Sprintf("Resized terminal session %s to %dx%d", id, cols, rows), Metadata: sessionMeta(id)}, nil
}
