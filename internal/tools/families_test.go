package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/store"
)

func openStores(t *testing.T) *store.Stores {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestMemoryFamily(t *testing.T) {
	stores := openStores(t)
	set := MemorySet(stores.Memories)
	search := SearchMemoryTool(stores.Memories)
	ctx := context.Background()

	out, err := set.Execute(ctx, "save_memory", Args{"content": "Prefers dark roast coffee", "tags": []any{"food"}})
	require.NoError(t, err)
	id, _ := out.Metadata["memoryId"].(string)
	require.NotEmpty(t, id)

	out, err = set.Execute(ctx, "save_memory", Args{"content": "prefers dark roast coffee"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Already remembered")

	_, err = set.Execute(ctx, "save_memory", Args{"content": "Lives in Lisbon"})
	require.NoError(t, err)

	out, err = search.Execute(ctx, Args{"query": "COFFEE roast"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "dark roast")
	assert.NotContains(t, out.Text, "Lisbon")

	out, err = set.Execute(ctx, "list_memories", Args{"tag": "food"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, id)
	assert.NotContains(t, out.Text, "Lisbon")

	_, err = set.Execute(ctx, "delete_memory", Args{"id": id})
	require.NoError(t, err)
	_, err = set.Execute(ctx, "delete_memory", Args{"id": id})
	kind, retryable := Classify(err)
	assert.Equal(t, KindNotFound, kind)
	assert.False(t, retryable)
}

func TestBookmarkFamily(t *testing.T) {
	stores := openStores(t)
	set := BookmarkSet(stores.Bookmarks)
	ctx := context.Background()

	_, err := set.Execute(ctx, "add_bookmark", Args{"url": "ftp://example.com"})
	kind, _ := Classify(err)
	assert.Equal(t, KindInvalidArguments, kind)

	out, err := set.Execute(ctx, "add_bookmark", Args{"url": "https://go.dev/doc", "title": "Go docs", "tags": "go,docs"})
	require.NoError(t, err)
	id := out.Metadata["bookmarkId"].(string)

	out, err = set.Execute(ctx, "list_bookmarks", Args{"tag": "docs"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "https://go.dev/doc")

	out, err = set.Execute(ctx, "list_bookmarks", Args{"query": "python"})
	require.NoError(t, err)
	assert.Equal(t, "No bookmarks.", out.Text)

	_, err = set.Execute(ctx, "delete_bookmark", Args{"id": id})
	require.NoError(t, err)
	assert.Empty(t, stores.Bookmarks.List())
}

func TestBackupFamily(t *testing.T) {
	stores := openStores(t)
	ws := workspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("original"), 0o644))
	set := BackupSet(stores.Backups, ws, true)
	ctx := context.Background()

	out, err := set.Execute(ctx, "create_backup", Args{"label": "before edit"})
	require.NoError(t, err)
	id := out.Metadata["backupId"].(string)

	require.NoError(t, os.WriteFile(filepath.Join(ws, "a.txt"), []byte("changed"), 0o644))

	out, err = set.Execute(ctx, "list_backups", nil)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "before edit")

	out, err = set.Execute(ctx, "restore_backup", Args{"id": id})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Restored 1 files")
	data, _ := os.ReadFile(filepath.Join(ws, "a.txt"))
	assert.Equal(t, "original", string(data))

	_, err = set.Execute(ctx, "restore_backup", Args{"id": "nope"})
	kind, _ := Classify(err)
	assert.Equal(t, KindNotFound, kind)

	_, err = set.Execute(ctx, "delete_backup", Args{"id": id})
	require.NoError(t, err)
}

func TestSystemFamily(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	set := SystemSet("1.2.3", func() time.Time { return fixed })

	out, err := set.Execute(context.Background(), "get_current_time", Args{"timezone": "UTC"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.Metadata["iso"])

	_, err = set.Execute(context.Background(), "get_current_time", Args{"timezone": "Mars/Olympus"})
	kind, _ := Classify(err)
	assert.Equal(t, KindInvalidArguments, kind)

	out, err = set.Execute(context.Background(), "get_system_info", nil)
	require.NoError(t, err)
	assert.Contains(t, out.Text, "tidewire: 1.2.3")
}

type fakeDesktop struct {
	opened   []string
	notified []string
	err      error
}

func (d *fakeDesktop) Open(_ context.Context, target string) error {
	d.opened = append(d.opened, target)
	return d.err
}

func (d *fakeDesktop) Notify(_ context.Context, title, body string) error {
	d.notified = append(d.notified, title+": "+body)
	return d.err
}

func TestOSFamily(t *testing.T) {
	ws := workspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "report.pdf"), []byte("%PDF"), 0o644))
	desk := &fakeDesktop{}
	set := OSSet(desk, ws, true)
	ctx := context.Background()

	_, err := set.Execute(ctx, "open_url", Args{"url": "https://example.com"})
	require.NoError(t, err)
	_, err = set.Execute(ctx, "open_path", Args{"path": "report.pdf"})
	require.NoError(t, err)
	_, err = set.Execute(ctx, "show_notification", Args{"message": "done"})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com", filepath.Join(ws, "report.pdf")}, desk.opened)
	assert.Equal(t, []string{"tidewire: done"}, desk.notified)

	_, err = set.Execute(ctx, "open_path", Args{"path": "missing.pdf"})
	kind, _ := Classify(err)
	assert.Equal(t, KindNotFound, kind)

	desk.err = &exec.Error{Name: "xdg-open", Err: exec.ErrNotFound}
	_, err = set.Execute(ctx, "open_url", Args{"url": "https://example.com"})
	kind, retryable := Classify(err)
	assert.Equal(t, KindUnavailable, kind)
	assert.False(t, retryable)
}

type fakeInvoker struct{ got AgentRequest }

func (f *fakeInvoker) Invoke(_ context.Context, req AgentRequest) (string, error) {
	f.got = req
	switch req.Task {
	case "fail":
		return "", errors.New("model unavailable")
	case "wrapped":
		return "", fmt.Errorf("subagent x: %w", NewError(KindUnavailable, false, "no provider configured"))
	}
	return "answer: " + req.Task, nil
}

func TestInvokeAgentTool(t *testing.T) {
	inv := &fakeInvoker{}
	tool := NewInvokeAgentTool(inv)
	ctx := WithScope(context.Background(), Scope{AgentSessionID: "parent", Depth: 1, AllowTools: []string{"read_file", "grep"}})

	out, err := tool.Execute(ctx, Args{"task": "summarize", "tools": []any{"read_file"}})
	require.NoError(t, err)
	assert.Equal(t, "answer: summarize", out.Text)
	assert.Equal(t, "parent", inv.got.ParentSessionID)
	assert.Equal(t, 2, inv.got.Depth)
	assert.Equal(t, []string{"read_file"}, inv.got.Tools)
	assert.Equal(t, []string{"read_file", "grep"}, inv.got.AllowTools)

	_, err = tool.Execute(ctx, Args{"task": "fail"})
	kind, retryable := Classify(err)
	assert.Equal(t, KindExecutionFailed, kind)
	assert.True(t, retryable)

	// A typed error wrapped by the invoker keeps its classification.
	_, err = tool.Execute(ctx, Args{"task": "wrapped"})
	kind, retryable = Classify(err)
	assert.Equal(t, KindUnavailable, kind)
	assert.False(t, retryable)
	assert.Contains(t, err.Error(), "no provider configured")

	deep := WithScope(context.Background(), Scope{Depth: maxNestingDepth})
	_, err = tool.Execute(deep, Args{"task": "x"})
	kind, _ = Classify(err)
	assert.Equal(t, KindPermissionDenied, kind)
}

type fakeSearcher struct{ hits []schema.MessageHit }

func (f fakeSearcher) SearchMessages(_ context.Context, query string, limit int) ([]schema.MessageHit, error) {
	var out []schema.MessageHit
	for _, h := range f.hits {
		if strings.Contains(strings.ToLower(h.Content), strings.ToLower(query)) && len(out) < limit {
			out = append(out, h)
		}
	}
	return out, nil
}

func TestSearchMessagesTool(t *testing.T) {
	tool := NewSearchMessagesTool(fakeSearcher{hits: []schema.MessageHit{
		{SessionKey: "cli:1", Role: "user", Content: "What is the deploy command?"},
		{SessionKey: "cli:2", Role: "assistant", Content: "Use make release."},
	}})

	out, err := tool.Execute(context.Background(), Args{"query": "deploy"})
	require.NoError(t, err)
	assert.Equal(t, "[cli:1] user: What is the deploy command?", out.Text)

	out, err = tool.Execute(context.Background(), Args{"query": "kubernetes"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "No messages match")

	_, err = NewSearchMessagesTool(nil).Execute(context.Background(), Args{"query": "x"})
	kind, _ := Classify(err)
	assert.Equal(t, KindUnavailable, kind)
}

func TestSet_UnknownTool(t *testing.T) {
	_, err := SystemSet("", nil).Execute(context.Background(), "rm_everything", nil)
	kind, retryable := Classify(err)
	assert.Equal(t, KindToolNotFound, kind)
	assert.False(t, retryable)
}
