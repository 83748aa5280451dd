package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/tidewire/internal/cron"
	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/store"
)

const (
	ToolListWorkflows    = "list_workflows"
	ToolGetWorkflow      = "get_workflow"
	ToolCreateWorkflow   = "create_workflow"
	ToolDeleteWorkflow   = "delete_workflow"
	ToolRunWorkflow      = "run_workflow"
	ToolScheduleWorkflow = "schedule_workflow"

	maxNestingDepth = 3
)

// StepRunner executes one workflow step and reports its outcome.
type StepRunner interface {
	RunStep(ctx context.Context, tool string, args map[string]any) schema.ToolResult
}

// StepRunnerFunc adapts a function into a StepRunner.
type StepRunnerFunc func(ctx context.Context, tool string, args map[string]any) schema.ToolResult

func (f StepRunnerFunc) RunStep(ctx context.Context, tool string, args map[string]any) schema.ToolResult {
	return f(ctx, tool, args)
}

// Workflows manages stored multi-step tool sequences and their schedules.
type Workflows struct {
	store *store.Collection[store.Workflow]
	cron  *cron.Service

	mu     sync.RWMutex
	runner StepRunner
}

func NewWorkflows(c *store.Collection[store.Workflow], cronSvc *cron.Service) *Workflows {
	return &Workflows{store: c, cron: cronSvc}
}

// BindRunner sets the step runner. It is bound after construction because
// the runner is normally the dispatcher that routes to this family.
func (w *Workflows) BindRunner(r StepRunner) {
	w.mu.Lock()
	w.runner = r
	w.mu.Unlock()
}

// RestoreSchedules registers every persisted schedule with the cron service.
func (w *Workflows) RestoreSchedules() int {
	n := 0
	for _, wf := range w.store.List() {
		if wf.Schedule == "" {
			continue
		}
		if err := w.schedule(wf); err != nil {
			slog.Warn("Workflow schedule not restored", "id", wf.ID, "schedule", wf.Schedule, "err", err)
			continue
		}
		n++
	}
	return n
}

// StepReport is the outcome of one executed step.
type StepReport struct {
	Tool       string `json:"tool"`
	Success    bool   `json:"success"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Run executes the workflow's steps in order and stops at the first failed
// step. The run status is persisted.
func (w *Workflows) Run(ctx context.Context, idOrName string) ([]StepReport, error) {
	wf, ok := w.find(idOrName)
	if !ok {
		return nil, NotFound("workflow not found: %s", idOrName)
	}
	w.mu.RLock()
	runner := w.runner
	w.mu.RUnlock()
	if runner == nil {
		return nil, NewError(KindUnavailable, false, "workflow runner not configured")
	}

	scope := ScopeFrom(ctx)
	if scope.Depth >= maxNestingDepth {
		return nil, NewError(KindPermissionDenied, false, "workflow nesting deeper than %d", maxNestingDepth)
	}
	scope.Depth++
	ctx = WithScope(ctx, scope)

	slog.Info("Workflow run", "id", wf.ID, "name", wf.Name, "steps", len(wf.Steps))
	reports := make([]StepReport, 0, len(wf.Steps))
	status := "ok"
	for i, step := range wf.Steps {
		if err := ctx.Err(); err != nil {
			status = "cancelled"
			break
		}
		res := runner.RunStep(ctx, step.Tool, step.Arguments)
		reports = append(reports, StepReport{
			Tool:       step.Tool,
			Success:    res.Success,
			Output:     res.Output,
			Error:      res.Error,
			DurationMs: res.DurationMs,
		})
		if !res.Success {
			status = fmt.Sprintf("failed at step %d (%s)", i+1, step.Tool)
			break
		}
	}

	now := time.Now()
	wf.LastRunAt = &now
	wf.LastStatus = status
	if err := w.store.Put(wf); err != nil {
		slog.Warn("Workflow status not saved", "id", wf.ID, "err", err)
	}
	return reports, nil
}

func (w *Workflows) find(idOrName string) (store.Workflow, bool) {
	if wf, ok := w.store.Get(idOrName); ok {
		return wf, true
	}
	for _, wf := range w.store.List() {
		if strings.EqualFold(wf.Name, idOrName) {
			return wf, true
		}
	}
	return store.Workflow{}, false
}

func (w *Workflows) schedule(wf store.Workflow) error {
	if w.cron == nil {
		return fmt.Errorf("scheduler not available")
	}
	id := wf.ID
	return w.cron.Schedule(cronID(id), wf.Schedule, wf.Timezone, func() {
		ctx := WithScope(context.Background(), Scope{AgentSessionID: "workflow:" + id})
		if _, err := w.Run(ctx, id); err != nil {
			slog.Warn("Scheduled workflow failed", "id", id, "err", err)
		}
	})
}

func cronID(workflowID string) string { return "workflow:" + workflowID }

// Set returns the workflow handler family.
func (w *Workflows) Set() *Set {
	return NewSet("workflow",
		Func{
			Def: def(ToolListWorkflows, "List saved workflows.", nil),
			Fn:  w.list,
		},
		Func{
			Def: def(ToolGetWorkflow, "Show a workflow's steps and schedule.", []string{"id"},
				schema.Param("id", schema.TypeString, "Workflow id or name"),
			),
			Fn: w.get,
		},
		Func{
			Def: def(ToolCreateWorkflow, "Save a named sequence of tool calls that can be run later or on a schedule.",
				[]string{"name", "steps"},
				schema.Param("name", schema.TypeString, "Workflow name"),
				schema.Param("description", schema.TypeString, "What the workflow does"),
				schema.ArrayParam("steps", schema.TypeObject, `Ordered steps, each {"tool": name, "arguments": {...}}`),
				schema.Param("schedule", schema.TypeString, "Optional 5-field cron expression"),
				schema.Param("timezone", schema.TypeString, "IANA timezone for the schedule"),
			),
			Fn: w.create,
		},
		Func{
			Def: def(ToolDeleteWorkflow, "Delete a workflow and its schedule.", []string{"id"},
				schema.Param("id", schema.TypeString, "Workflow id or name"),
			),
			Fn: w.delete,
		},
		Func{
			Def: def(ToolRunWorkflow, "Run a workflow now.", []string{"id"},
				schema.Param("id", schema.TypeString, "Workflow id or name"),
			),
			Fn: w.run,
		},
		Func{
			Def: def(ToolScheduleWorkflow, "Set or clear a workflow's cron schedule.", []string{"id"},
				schema.Param("id", schema.TypeString, "Workflow id or name"),
				schema.Param("schedule", schema.TypeString, "5-field cron expression; empty clears the schedule"),
				schema.Param("timezone", schema.TypeString, "IANA timezone for the schedule"),
			),
			Fn: w.setSchedule,
		},
	)
}

func (w *Workflows) list(_ context.Context, _ Args) (Output, error) {
	all := w.store.List()
	if len(all) == 0 {
		return Text("No workflows saved."), nil
	}
	lines := make([]string, 0, len(all))
	for _, wf := range all {
		line := fmt.Sprintf("%s  %s (%d steps)", wf.ID, wf.Name, len(wf.Steps))
		if wf.Schedule != "" {
			line += "  schedule: " + wf.Schedule
		}
		if wf.LastStatus != "" {
			line += "  last: " + wf.LastStatus
		}
		lines = append(lines, line)
	}
	return Text(strings.Join(lines, "\n")), nil
}

func (w *Workflows) get(_ context.Context, args Args) (Output, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return Output{}, err
	}
	wf, ok := w.find(id)
	if !ok {
		return Output{}, NotFound("workflow not found: %s", id)
	}
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return Output{}, Failed(err)
	}
	out := Output{Text: string(data)}
	if next, ok := w.nextRun(wf.ID); ok {
		out.Metadata = map[string]any{"nextRun": next.Format(time.RFC3339)}
	}
	return out, nil
}

func (w *Workflows) nextRun(id string) (time.Time, bool) {
	if w.cron == nil {
		return time.Time{}, false
	}
	return w.cron.Next(cronID(id))
}

func (w *Workflows) create(ctx context.Context, args Args) (Output, error) {
	name, err := args.RequireString("name")
	if err != nil {
		return Output{}, err
	}
	raw, err := args.Objects("steps")
	if err != nil {
		return Output{}, err
	}
	if len(raw) == 0 {
		return Output{}, InvalidArgs("steps must contain at least one step")
	}
	scope := ScopeFrom(ctx)
	steps := make([]store.WorkflowStep, 0, len(raw))
	for i, obj := range raw {
		tool, _ := obj["tool"].(string)
		if tool == "" {
			return Output{}, InvalidArgs("steps[%d].tool is required", i)
		}
		if tool == ToolRunWorkflow {
			return Output{}, InvalidArgs("steps[%d]: workflows cannot run other workflows", i)
		}
		if !scope.Allows(tool) {
			return Output{}, NewError(KindPermissionDenied, false, "steps[%d]: tool %s is not allowed in this context", i, tool)
		}
		stepArgs, _ := obj["arguments"].(map[string]any)
		steps = append(steps, store.WorkflowStep{Tool: tool, Arguments: stepArgs})
	}

	schedule := strings.TrimSpace(args.String("schedule"))
	tz := args.String("timezone")
	if schedule != "" {
		if _, err := cron.Parse(schedule, tz); err != nil {
			return Output{}, InvalidArgs("%v", err)
		}
	}

	now := time.Now()
	wf := store.Workflow{
		ID:          store.NewID(),
		Name:        name,
		Description: args.String("description"),
		Steps:       steps,
		Schedule:    schedule,
		Timezone:    tz,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.store.Put(wf); err != nil {
		return Output{}, Failed(err)
	}
	if schedule != "" {
		if err := w.schedule(wf); err != nil {
			return Output{}, Failed(fmt.Errorf("workflow saved but not scheduled: %w", err))
		}
	}
	return Output{
		Text:     fmt.Sprintf("Created workflow '%s' (id: %s, %d steps)", wf.Name, wf.ID, len(steps)),
		Metadata: map[string]any{"workflowId": wf.ID},
	}, nil
}

func (w *Workflows) delete(_ context.Context, args Args) (Output, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return Output{}, err
	}
	wf, ok := w.find(id)
	if !ok {
		return Output{}, NotFound("workflow not found: %s", id)
	}
	if w.cron != nil {
		w.cron.Remove(cronID(wf.ID))
	}
	if _, err := w.store.Delete(wf.ID); err != nil {
		return Output{}, Failed(err)
	}
	return Textf("Deleted workflow %s", wf.ID), nil
}

func (w *Workflows) run(ctx context.Context, args Args) (Output, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return Output{}, err
	}
	reports, err := w.Run(ctx, id)
	if err != nil {
		return Output{}, err
	}

	var sb strings.Builder
	failed := false
	for i, r := range reports {
		mark := "ok"
		detail := r.Output
		if !r.Success {
			mark, detail, failed = "FAILED", r.Error, true
		}
		fmt.Fprintf(&sb, "%d. %s [%s, %dms]\n", i+1, r.Tool, mark, r.DurationMs)
		if detail != "" {
			sb.WriteString("   " + truncate(detail, 500) + "\n")
		}
	}
	if failed {
		return Output{}, NewError(KindExecutionFailed, false, "workflow stopped on a failed step:\n%s", sb.String())
	}
	return Text(strings.TrimRight(sb.String(), "\n")), nil
}

func (w *Workflows) setSchedule(_ context.Context, args Args) (Output, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return Output{}, err
	}
	wf, ok := w.find(id)
	if !ok {
		return Output{}, NotFound("workflow not found: %s", id)
	}
	schedule := strings.TrimSpace(args.String("schedule"))
	tz := args.String("timezone")

	if schedule == "" {
		if w.cron != nil {
			w.cron.Remove(cronID(wf.ID))
		}
		wf.Schedule, wf.Timezone = "", ""
		wf.UpdatedAt = time.Now()
		if err := w.store.Put(wf); err != nil {
			return Output{}, Failed(err)
		}
		return Textf("Cleared schedule of workflow %s", wf.ID), nil
	}

	next, err := cron.NextRun(schedule, tz, time.Now())
	if err != nil {
		return Output{}, InvalidArgs("%v", err)
	}
	wf.Schedule, wf.Timezone = schedule, tz
	wf.UpdatedAt = time.Now()
	if err := w.store.Put(wf); err != nil {
		return Output{}, Failed(err)
	}
	if err := w.schedule(wf); err != nil {
		return Output{}, Failed(err)
	}
	return Textf("Workflow %s scheduled '%s', next run %s", wf.ID, schedule, next.Format(time.RFC3339)), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
