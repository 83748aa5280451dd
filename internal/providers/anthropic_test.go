package providers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

func TestAnthropic_RequestShape(t *testing.T) {
	srv, got := fakeProvider(t, http.StatusOK, `{
		"content":[
			{"type":"thinking","thinking":"hmm"},
			{"type":"text","text":"Reading."},
			{"type":"tool_use","id":"toolu_1","name":"read_file","input":{"path":"a.txt"}}
		],
		"stop_reason":"tool_use",
		"usage":{"input_tokens":3,"output_tokens":4}
	}`)

	history := []schema.ConversationTurn{
		schema.NewUserTurn("start"),
		schema.NewAssistantTurn(nil, []schema.ToolCall{
			{ID: "t1", Name: "read_file", Arguments: map[string]any{"path": "x"}},
			{ID: "t2", Name: "read_file", Arguments: map[string]any{"path": "y"}},
		}),
		schema.NewToolTurn(schema.ToolResult{ToolCallID: "t1", Success: true, Output: "X"}),
		schema.NewToolTurn(schema.ToolResult{ToolCallID: "t2", Success: false, Error: "missing"}),
	}
	turn, err := chat(t, ChatRequest{
		Profile:      testProfile(t, WireAnthropic, srv.URL),
		APIKey:       "ak",
		History:      history,
		SystemPrompt: "sys",
		Tools:        []schema.ToolDefinition{{Name: "read_file", Description: "Read"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "/messages", got.Path)
	assert.Equal(t, "ak", got.Header.Get("x-api-key"))
	assert.Equal(t, anthropicVersion, got.Header.Get("anthropic-version"))
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.Equal(t, "sys", got.Body["system"])
	assert.Equal(t, float64(defaultMaxTokens), got.Body["max_tokens"])
	assert.Equal(t, false, got.Body["stream"])

	msgs := got.Body["messages"].([]any)
	// user, assistant, merged tool results. No trailing user turn since the
	// history is non-empty and there is no new message.
	require.Len(t, msgs, 3)
	results := msgs[2].(map[string]any)["content"].([]any)
	require.Len(t, results, 2)
	assert.Equal(t, "t1", results[0].(map[string]any)["tool_use_id"])
	assert.Equal(t, "Error: missing", results[1].(map[string]any)["content"])

	tools := got.Body["tools"].([]any)
	assert.Contains(t, tools[0].(map[string]any), "input_schema")

	assert.Equal(t, "Reading.", turn.Text())
	require.NotNil(t, turn.Reasoning)
	assert.Equal(t, "hmm", *turn.Reasoning)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "toolu_1", turn.ToolCalls[0].ID)
	assert.Equal(t, "tool_calls", turn.FinishReason)
	assert.True(t, turn.Complete)
}

func TestAnthropic_ImagesAndSystemTurns(t *testing.T) {
	srv, got := fakeProvider(t, http.StatusOK, `{"content":[{"type":"text","text":"ok"}],"stop_reason":"max_tokens"}`)

	turn, err := chat(t, ChatRequest{
		Profile:     testProfile(t, WireAnthropic, srv.URL),
		History:     []schema.ConversationTurn{schema.NewSystemTurn("history system")},
		UserMessage: "what is this",
		Images:      []schema.Image{{Data: "QUJD", MediaType: "image/jpeg"}},
	})
	require.NoError(t, err)
	assert.False(t, turn.Complete)

	assert.Equal(t, "history system", got.Body["system"])
	msgs := got.Body["messages"].([]any)
	require.Len(t, msgs, 1)
	blocks := msgs[0].(map[string]any)["content"].([]any)
	require.Len(t, blocks, 2)
	img := blocks[0].(map[string]any)
	assert.Equal(t, "image", img["type"])
	src := img["source"].(map[string]any)
	assert.Equal(t, "base64", src["type"])
	assert.Equal(t, "image/jpeg", src["media_type"])
}
