package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	require.NoError(t, err)

	s := m.GetOrCreate("cli:direct")
	s.AddUser("list the files")
	s.Append(
		schema.NewAssistantTurn(nil, []schema.ToolCall{{
			ID: "call_1", Name: "list_directory", Arguments: map[string]any{"path": "."}, ReasoningToken: "sig",
		}}),
		schema.NewToolTurn(schema.ToolResult{ToolCallID: "call_1", ToolName: "list_directory", Success: true, Output: "[F] a.txt"}),
		schema.NewAssistantTurn(schema.StrPtr("One file: a.txt"), nil),
	)
	s.Metadata["model"] = "gpt-4o"
	require.NoError(t, m.Save(s))

	m.Invalidate("cli:direct")
	got := m.GetOrCreate("cli:direct")
	require.Equal(t, 4, got.Len())
	turns := got.History.Turns
	assert.Equal(t, schema.RoleUser, turns[0].Role)
	assert.Nil(t, turns[1].Content)
	require.Len(t, turns[1].ToolCalls, 1)
	assert.Equal(t, "call_1", turns[1].ToolCalls[0].ID)
	assert.Equal(t, "sig", turns[1].ToolCalls[0].ReasoningToken)
	assert.Equal(t, ".", turns[1].ToolCalls[0].Arguments["path"])
	assert.Equal(t, "call_1", turns[2].ToolCallID)
	assert.Equal(t, "list_directory", turns[2].ToolName)
	assert.Equal(t, "One file: a.txt", turns[3].Text())
	assert.Equal(t, "gpt-4o", got.Metadata["model"])

	data, err := os.ReadFile(filepath.Join(dir, "cli_direct.jsonl"))
	require.NoError(t, err)
	first := strings.SplitN(string(data), "\n", 2)[0]
	assert.Contains(t, first, `"_type":"metadata"`)
}

func TestGetOrCreateReturnsCachedSession(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	a := m.GetOrCreate("k")
	b := m.GetOrCreate("k")
	assert.Same(t, a, b)
	assert.Equal(t, 0, a.Len())
}

func TestSnapshotSkipsLeadingToolTurns(t *testing.T) {
	s := newSession("k")
	s.AddUser("hi")
	s.Append(
		schema.NewAssistantTurn(nil, []schema.ToolCall{{ID: "1", Name: "get_current_time"}}),
		schema.NewToolTurn(schema.ToolResult{ToolCallID: "1", Success: true, Output: "noon"}),
		schema.NewAssistantTurn(schema.StrPtr("It is noon."), nil),
	)
	h := s.Snapshot(2)
	require.Equal(t, 1, h.Len())
	assert.Equal(t, "It is noon.", h.Turns[0].Text())
	full := s.Snapshot(0)
	assert.Equal(t, 4, full.Len())
}

func TestListSessionsAndDelete(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	for _, key := range []string{"a:1", "b:2"} {
		s := m.GetOrCreate(key)
		s.AddUser("hello " + key)
		require.NoError(t, m.Save(s))
	}
	list := m.ListSessions()
	require.Len(t, list, 2)
	keys := []string{list[0].Key, list[1].Key}
	assert.ElementsMatch(t, []string{"a:1", "b:2"}, keys)

	ok, err := m.Delete("a:1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = m.Delete("a:1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, m.ListSessions(), 1)
}

func TestSearchMessages(t *testing.T) {
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)

	s := m.GetOrCreate("chat:one")
	s.AddUser("Where is the Deploy script?")
	s.Append(
		schema.NewToolTurn(schema.ToolResult{ToolCallID: "x", Success: true, Output: "deploy.sh"}),
		schema.NewAssistantTurn(schema.StrPtr("The deploy script is in bin/."), nil),
	)
	require.NoError(t, m.Save(s))

	other := m.GetOrCreate("chat:two")
	other.AddUser("unrelated")
	require.NoError(t, m.Save(other))

	hits, err := m.SearchMessages(context.Background(), "DEPLOY", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "chat:one", h.SessionKey)
		assert.NotEqual(t, string(schema.RoleTool), h.Role)
		assert.False(t, h.Timestamp.IsZero())
	}

	hits, err = m.SearchMessages(context.Background(), "deploy", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = m.SearchMessages(context.Background(), "  ", 1)
	assert.Error(t, err)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	dir := t.TempDir()
	content := `{"_type":"metadata","key":"x","created_at":"2026-01-02T03:04:05Z","updated_at":"2026-01-02T03:04:05Z","metadata":{}}
not json
{"role":"user","content":"still here","timestamp":"2026-01-02T03:04:05Z"}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.jsonl"), []byte(content), 0o644))
	m, err := NewManager(dir)
	require.NoError(t, err)
	s := m.GetOrCreate("x")
	require.Equal(t, 1, s.Len())
	assert.Equal(t, "still here", s.History.Turns[0].Text())
	assert.Equal(t, 2026, s.CreatedAt.Year())
}
