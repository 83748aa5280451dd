package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/tidewire/internal/cron"
	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/store"
)

func newWorkflows(t *testing.T) (*Workflows, *store.Collection[store.Workflow], *cron.Service) {
	t.Helper()
	coll, err := store.OpenCollection(filepath.Join(t.TempDir(), "workflows.json"), func(w store.Workflow) string { return w.ID })
	require.NoError(t, err)
	svc := cron.NewService()
	return NewWorkflows(coll, svc), coll, svc
}

func createWorkflow(t *testing.T, set *Set, args Args) string {
	t.Helper()
	out, err := set.Execute(context.Background(), ToolCreateWorkflow, args)
	require.NoError(t, err)
	return out.Metadata["workflowId"].(string)
}

func TestWorkflow_RunStopsAtFailure(t *testing.T) {
	wf, coll, _ := newWorkflows(t)
	var ran []string
	wf.BindRunner(StepRunnerFunc(func(ctx context.Context, tool string, _ map[string]any) schema.ToolResult {
		ran = append(ran, tool)
		assert.Equal(t, 1, ScopeFrom(ctx).Depth)
		return schema.ToolResult{ToolName: tool, Success: tool != "bad", Error: "broken"}
	}))
	set := wf.Set()

	id := createWorkflow(t, set, Args{
		"name":  "chain",
		"steps": `[{"tool":"one"},{"tool":"bad"},{"tool":"never"}]`,
	})

	_, err := set.Execute(context.Background(), ToolRunWorkflow, Args{"id": id})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FAILED")
	assert.Equal(t, []string{"one", "bad"}, ran)

	stored, _ := coll.Get(id)
	assert.Equal(t, "failed at step 2 (bad)", stored.LastStatus)
}

func TestWorkflow_Schedule(t *testing.T) {
	wf, coll, svc := newWorkflows(t)
	set := wf.Set()
	id := createWorkflow(t, set, Args{"name": "nightly", "steps": []any{map[string]any{"tool": "get_current_time"}}})

	_, err := set.Execute(context.Background(), ToolScheduleWorkflow, Args{"id": id, "schedule": "not a cron"})
	kind, _ := Classify(err)
	assert.Equal(t, KindInvalidArguments, kind)

	out, err := set.Execute(context.Background(), ToolScheduleWorkflow, Args{"id": "nightly", "schedule": "0 2 * * *", "timezone": "UTC"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "next run")
	assert.Contains(t, svc.IDs(), "workflow:"+id)

	out, err = set.Execute(context.Background(), ToolGetWorkflow, Args{"id": id})
	require.NoError(t, err)
	assert.Contains(t, out.Metadata, "nextRun")

	// A fresh instance restores the persisted schedule.
	restored := NewWorkflows(coll, cron.NewService())
	assert.Equal(t, 1, restored.RestoreSchedules())

	_, err = set.Execute(context.Background(), ToolScheduleWorkflow, Args{"id": id, "schedule": ""})
	require.NoError(t, err)
	assert.NotContains(t, svc.IDs(), "workflow:"+id)

	_, err = set.Execute(context.Background(), ToolDeleteWorkflow, Args{"id": id})
	require.NoError(t, err)
	assert.Empty(t, coll.List())
}

func TestWorkflow_RunWithoutRunner(t *testing.T) {
	wf, _, _ := newWorkflows(t)
	set := wf.Set()
	id := createWorkflow(t, set, Args{"name": "x", "steps": []any{map[string]any{"tool": "a"}}})

	_, err := set.Execute(context.Background(), ToolRunWorkflow, Args{"id": id})
	kind, _ := Classify(err)
	assert.Equal(t, KindUnavailable, kind)

	_, err = set.Execute(context.Background(), ToolRunWorkflow, Args{"id": "missing"})
	kind, _ = Classify(err)
	assert.Equal(t, KindNotFound, kind)
}
