package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func workspace(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

func TestFilesystem_WriteReadEdit(t *testing.T) {
	ws := workspace(t)
	ctx := context.Background()

	out, err := NewWriteFileTool(ws, true).Execute(ctx, Args{"path": "notes/a.txt", "content": "hello world\n"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(ws, "notes", "a.txt")}, out.Files)

	out, err = NewReadFileTool(ws, true).Execute(ctx, Args{"path": "notes/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", out.Text)

	_, err = NewEditFileTool(ws, true).Execute(ctx, Args{"path": "notes/a.txt", "old_text": "world", "new_text": "there"})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(ws, "notes", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello there\n", string(data))

	_, err = NewWriteFileTool(ws, true).Execute(ctx, Args{"path": "notes/a.txt", "content": "more\n", "append": true})
	require.NoError(t, err)
	data, _ = os.ReadFile(filepath.Join(ws, "notes", "a.txt"))
	assert.Equal(t, "hello there\nmore\n", string(data))
}

func TestFilesystem_EditFailures(t *testing.T) {
	ws := workspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "f.txt"), []byte("a\nb\na\n"), 0o644))
	edit := NewEditFileTool(ws, true)

	_, err := edit.Execute(context.Background(), Args{"path": "f.txt", "old_text": "a", "new_text": "c"})
	kind, _ := Classify(err)
	assert.Equal(t, KindInvalidArguments, kind)
	assert.Contains(t, err.Error(), "2 times")

	_, err = edit.Execute(context.Background(), Args{"path": "f.txt", "old_text": "zzz", "new_text": "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestFilesystem_WorkspaceConfinement(t *testing.T) {
	ws := workspace(t)
	read := NewReadFileTool(ws, true)

	_, err := read.Execute(context.Background(), Args{"path": "../outside.txt"})
	kind, retryable := Classify(err)
	assert.Equal(t, KindPermissionDenied, kind)
	assert.False(t, retryable)

	// A sibling directory that shares the workspace prefix is outside too.
	sibling := ws + "-sibling"
	require.NoError(t, os.MkdirAll(sibling, 0o755))
	t.Cleanup(func() { os.RemoveAll(sibling) })
	require.NoError(t, os.WriteFile(filepath.Join(sibling, "x.txt"), []byte("x"), 0o644))
	_, err = read.Execute(context.Background(), Args{"path": filepath.Join(sibling, "x.txt")})
	kind, _ = Classify(err)
	assert.Equal(t, KindPermissionDenied, kind)

	_, err = read.Execute(context.Background(), Args{"path": "missing.txt"})
	kind, _ = Classify(err)
	assert.Equal(t, KindNotFound, kind)
}

func TestFilesystem_ScopeWorkspaceOverrides(t *testing.T) {
	configured, scoped := workspace(t), workspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(scoped, "s.txt"), []byte("scoped"), 0o644))

	ctx := WithScope(context.Background(), Scope{Workspace: scoped})
	out, err := NewReadFileTool(configured, true).Execute(ctx, Args{"path": "s.txt"})
	require.NoError(t, err)
	assert.Equal(t, "scoped", out.Text)
}

func TestFilesystem_ListAndSearch(t *testing.T) {
	ws := workspace(t)
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "src", ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "src", "main.go"), []byte("package main\nfunc main() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "src", "util.go"), []byte("package main\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "src", ".git", "x.go"), []byte("func main"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "README.md"), []byte("# hi"), 0o644))

	out, err := NewListDirectoryTool(ws, true).Execute(context.Background(), Args{"path": "."})
	require.NoError(t, err)
	assert.Equal(t, "[F] README.md\n[D] src", out.Text)

	out, err = NewSearchFilesTool(ws, true).Execute(context.Background(), Args{"pattern": "*.go"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, filepath.Join("src", "main.go"))
	assert.Contains(t, out.Text, filepath.Join("src", "util.go"))
	assert.NotContains(t, out.Text, ".git")

	out, err = NewSearchFilesTool(ws, true).Execute(context.Background(), Args{"pattern": "*.go", "contains": "func main"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "2: func main() {}")
	assert.NotContains(t, out.Text, "util.go")

	_, err = NewSearchFilesTool(ws, true).Execute(context.Background(), Args{"pattern": "[", "path": "."})
	kind, _ := Classify(err)
	assert.Equal(t, KindInvalidArguments, kind)
}
