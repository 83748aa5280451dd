// Package dispatch routes model-issued tool calls to handler families and
// folds every outcome, including failures and panics, into a ToolResult.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/terminal"
	"github.com/crystaldolphin/tidewire/internal/tools"
	"github.com/crystaldolphin/tidewire/internal/toolschema"
)

// FamilyOrder is the order in which handler families are consulted.
var FamilyOrder = []string{"workflow", "backup", "system", "memory", "bookmark", "os"}

const coreFamily = "core"

// Handler executes a named tool.
type Handler interface {
	Execute(ctx context.Context, name string, args tools.Args) (tools.Output, error)
}

// Family is one entry of the dispatch table.
type Family struct {
	Name    string
	Match   func(name string) bool
	Handler Handler
	// Definitions lists the tools the family exposes to models.
	Definitions []schema.ToolDefinition
}

// FamilyFromSet builds a table entry that matches exactly the set's tools.
func FamilyFromSet(s *tools.Set) Family {
	return Family{Name: s.Name(), Match: s.Has, Handler: s, Definitions: s.Definitions()}
}

// Options are call-scoped dispatch settings.
type Options struct {
	// AgentSessionID owns terminal sessions created during the call.
	AgentSessionID string
	Workspace      string
	// AllowTools restricts callable tools; nil allows every tool. It can only
	// narrow an allow-list already carried by ctx.
	AllowTools []string
	// AllowUserSessions permits operating on user-created terminal sessions.
	AllowUserSessions bool
	// Parallelism bounds ExecuteBatch; 0 means 8.
	Parallelism int
	// Timeout bounds each handler call; 0 means no limit.
	Timeout time.Duration
}

// Config builds a Dispatcher.
type Config struct {
	// Families are consulted in slice order; the first match wins.
	Families []Family
	// Core is the fallback table consulted when no family matches.
	Core    []tools.Tool
	Emitter *Emitter
}

type Dispatcher struct {
	families []Family
	core     map[string]tools.Tool
	schemas  *toolschema.Registry
	emitter  *Emitter
}

// New builds a dispatcher. Tool names must be unique across families and
// the core table.
func New(cfg Config) (*Dispatcher, error) {
	d := &Dispatcher{
		families: slices.Clone(cfg.Families),
		core:     make(map[string]tools.Tool, len(cfg.Core)),
		emitter:  cfg.Emitter,
	}
	var defs []schema.ToolDefinition
	for _, f := range d.families {
		if f.Match == nil || f.Handler == nil {
			return nil, fmt.Errorf("family %q needs a matcher and a handler", f.Name)
		}
		defs = append(defs, f.Definitions...)
	}
	for _, t := range cfg.Core {
		def := t.Definition()
		d.core[def.Name] = t
		defs = append(defs, def)
	}
	reg, err := toolschema.NewRegistry(defs...)
	if err != nil {
		return nil, fmt.Errorf("dispatch table: %w", err)
	}
	d.schemas = reg
	return d, nil
}

// FamilyNames returns the table order followed by the core table.
func (d *Dispatcher) FamilyNames() []string {
	out := make([]string, 0, len(d.families)+1)
	for _, f := range d.families {
		out = append(out, f.Name)
	}
	return append(out, coreFamily)
}

// Schemas returns the registry of every dispatchable tool.
func (d *Dispatcher) Schemas() *toolschema.Registry { return d.schemas }

// Definitions returns the dispatchable tools in the allow-list (nil = all).
func (d *Dispatcher) Definitions(allow []string) []schema.ToolDefinition {
	return d.schemas.Filter(allow)
}

// route finds the handler for name.
func (d *Dispatcher) route(name string) (string, Handler) {
	for _, f := range d.families {
		if f.Match(name) {
			return f.Name, f.Handler
		}
	}
	if t, ok := d.core[name]; ok {
		return coreFamily, coreHandler{t}
	}
	return "", nil
}

type coreHandler struct{ t tools.Tool }

func (h coreHandler) Execute(ctx context.Context, _ string, args tools.Args) (tools.Output, error) {
	return h.t.Execute(ctx, args)
}

// Execute runs one call. It never returns an error and never panics; every
// outcome is reported in the result, with DurationMs measured from entry.
func (d *Dispatcher) Execute(ctx context.Context, call schema.ToolCall, opts Options) (res schema.ToolResult) {
	start := time.Now()
	res = schema.ToolResult{ToolCallID: call.ID, ToolName: call.Name}
	family := ""
	var out tools.Output

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Tool panicked", "name", call.Name, "panic", r, "stack", string(debug.Stack()))
			res = fail(res, &tools.Error{Kind: tools.KindExecutionFailed, Message: fmt.Sprint(r)})
		}
		res.DurationMs = max(time.Since(start).Milliseconds(), 0)
		d.emit(ctx, call, family, res, out, opts)
	}()

	family, handler := d.route(call.Name)
	if handler == nil {
		slog.Warn("Unknown tool", "name", call.Name)
		return fail(res, tools.NewError(tools.KindToolNotFound, false, "unknown tool: %s", call.Name))
	}
	hctx := withScope(ctx, opts)
	if !tools.ScopeFrom(hctx).Allows(call.Name) {
		return fail(res, tools.NewError(tools.KindPermissionDenied, false, "tool %s is not allowed in this context", call.Name))
	}

	args := tools.Args(call.Arguments)
	if args == nil {
		args = tools.Args{}
	}
	if data, err := json.Marshal(call.Arguments); err == nil {
		slog.Info("Tool call", "name", call.Name, "family", family, "args", truncate(string(data), 200))
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, opts.Timeout)
		defer cancel()
	}
	out, err := handler.Execute(hctx, call.Name, args)
	if err != nil {
		res = fail(res, err)
		if id := args.String("session_id"); id != "" {
			res.Metadata[schema.MetaSessionID] = id
		}
		return res
	}
	res.Success = true
	res.Output = out.Text
	if len(out.Metadata) > 0 {
		res.Metadata = maps.Clone(out.Metadata)
	}
	return res
}

func withScope(ctx context.Context, opts Options) context.Context {
	scope := tools.ScopeFrom(ctx)
	if opts.AgentSessionID != "" {
		scope.AgentSessionID = opts.AgentSessionID
	}
	if opts.Workspace != "" {
		scope.Workspace = opts.Workspace
	}
	scope.AllowUserSessions = scope.AllowUserSessions || opts.AllowUserSessions
	scope.AllowTools = tools.NarrowAllow(scope.AllowTools, opts.AllowTools)
	return tools.WithScope(ctx, scope)
}

func fail(res schema.ToolResult, err error) schema.ToolResult {
	kind, retryable := tools.Classify(err)
	res.Success = false
	res.Output = ""
	res.Error = err.Error()
	if res.Error == "" {
		res.Error = string(kind)
	}
	res.Metadata = map[string]any{
		schema.MetaErrorKind: string(kind),
		schema.MetaRetryable: retryable,
	}
	return res
}

// ExecuteBatch runs the calls of one assistant turn concurrently. Calls that
// target the same terminal session run one after another in call order.
// Results are returned in call order.
func (d *Dispatcher) ExecuteBatch(ctx context.Context, calls []schema.ToolCall, opts Options) []schema.ToolResult {
	results := make([]schema.ToolResult, len(calls))
	var order []string
	groups := make(map[string][]int)
	for i, c := range calls {
		key := sessionKey(c)
		if key == "" {
			key = "#" + strconv.Itoa(i)
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	limit := opts.Parallelism
	if limit <= 0 {
		limit = 8
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for _, key := range order {
		idxs := groups[key]
		g.Go(func() error {
			for _, i := range idxs {
				results[i] = d.Execute(ctx, calls[i], opts)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func sessionKey(c schema.ToolCall) string {
	id, _ := c.Arguments["session_id"].(string)
	return id
}

// RunStep executes a workflow step through the dispatch table under the
// invoking call's scope, allow-list included.
func (d *Dispatcher) RunStep(ctx context.Context, tool string, args map[string]any) schema.ToolResult {
	scope := tools.ScopeFrom(ctx)
	call := schema.ToolCall{ID: "step_" + uuid.NewString()[:8], Name: tool, Arguments: args}
	return d.Execute(ctx, call, Options{
		AgentSessionID:    scope.AgentSessionID,
		Workspace:         scope.Workspace,
		AllowTools:        scope.AllowTools,
		AllowUserSessions: scope.AllowUserSessions,
	})
}

func (d *Dispatcher) emit(ctx context.Context, call schema.ToolCall, family string, res schema.ToolResult, out tools.Output, opts Options) {
	if d.emitter == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Dispatch event dropped", "name", call.Name, "panic", r)
		}
	}()
	ev := Event{
		CallID:         call.ID,
		Tool:           call.Name,
		Family:         family,
		Success:        res.Success,
		ErrorKind:      res.ErrorKind(),
		DurationMs:     res.DurationMs,
		AgentSessionID: tools.ScopeFrom(withScope(ctx, opts)).AgentSessionID,
		Files:          out.Files,
		At:             time.Now(),
	}
	if id, _ := res.Metadata[schema.MetaSessionID].(string); id != "" {
		ev.TerminalID = id
	}
	if res.Success && call.Name == terminal.ToolExecuteCommand {
		if cmd, _ := call.Arguments["command"].(string); cmd != "" {
			ev.CreatedFiles = tools.DetectCreatedFiles(cmd)
		}
	}
	d.emitter.Emit(ev)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
