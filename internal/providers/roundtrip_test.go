package providers

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// toolHistory builds user, then n rounds of (assistant with two calls, two
// tool answers), then a final assistant text turn.
func toolHistory(n int) []schema.ConversationTurn {
	h := schema.NewHistory(schema.NewUserTurn("start"))
	for i := range n {
		calls := []schema.ToolCall{
			{ID: fmt.Sprintf("c%d-a", i), Name: "read_file", Arguments: map[string]any{"path": fmt.Sprintf("f%d", i)}},
			{ID: fmt.Sprintf("c%d-b", i), Name: "list_directory", Arguments: map[string]any{"path": "."}},
		}
		h.Add(schema.NewAssistantTurn(nil, calls))
		for _, c := range calls {
			h.AddToolResult(schema.ToolResult{ToolCallID: c.ID, ToolName: c.Name, Success: true, Output: "out " + c.ID})
		}
	}
	h.Add(schema.NewAssistantTurn(schema.StrPtr("done"), nil))
	return h.Turns
}

func roles(turns []schema.ConversationTurn) []schema.Role {
	out := make([]schema.Role, len(turns))
	for i, t := range turns {
		out[i] = t.Role
	}
	return out
}

// assertSamePairing checks that both histories pair calls and answers the
// same way, by call name and position within each batch.
func assertSamePairing(t *testing.T, want, got []schema.ConversationTurn) {
	t.Helper()
	require.Equal(t, roles(want), roles(got))
	require.NoError(t, schema.ValidatePairing(schema.NewHistory(got...)))

	for i := range want {
		require.Len(t, got[i].ToolCalls, len(want[i].ToolCalls), "turn %d", i)
		for j := range want[i].ToolCalls {
			assert.Equal(t, want[i].ToolCalls[j].Name, got[i].ToolCalls[j].Name)
			assert.Equal(t, want[i].ToolCalls[j].Arguments, got[i].ToolCalls[j].Arguments)
		}
		if want[i].Role == schema.RoleTool {
			assert.Equal(t, want[i].Text(), got[i].Text())
		}
	}
}

func reencode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestRoundTrip_OpenAI(t *testing.T) {
	want := toolHistory(3)
	native := buildOpenAIMessages(ChatRequest{History: want})

	var got []schema.ConversationTurn
	for _, msg := range native {
		switch msg["role"] {
		case "user":
			got = append(got, schema.NewUserTurn(msg["content"].(string)))
		case "assistant":
			raw := reencode(t, map[string]any{"choices": []any{map[string]any{"message": msg}}})
			turn, err := parseOpenAIResponse("openai", raw)
			require.NoError(t, err)
			got = append(got, turn)
		case "tool":
			got = append(got, schema.NewToolTurn(schema.ToolResult{
				ToolCallID: msg["tool_call_id"].(string),
				Success:    true,
				Output:     msg["content"].(string),
			}))
		}
	}
	assertSamePairing(t, want, got)

	// OpenAI keeps ids on the wire.
	assert.Equal(t, want[1].ToolCalls[0].ID, got[1].ToolCalls[0].ID)
}

func TestRoundTrip_Anthropic(t *testing.T) {
	want := toolHistory(3)
	_, native := buildAnthropicMessages(ChatRequest{History: want})

	var got []schema.ConversationTurn
	for _, msg := range native {
		blocks := msg["content"].([]any)
		if msg["role"] == "assistant" {
			raw := reencode(t, map[string]any{"content": blocks, "stop_reason": "tool_use"})
			turn, err := parseAnthropicResponse("anthropic", raw)
			require.NoError(t, err)
			got = append(got, turn)
			continue
		}
		for _, b := range blocks {
			block := b.(map[string]any)
			switch block["type"] {
			case "text":
				got = append(got, schema.NewUserTurn(block["text"].(string)))
			case "tool_result":
				got = append(got, schema.NewToolTurn(schema.ToolResult{
					ToolCallID: block["tool_use_id"].(string),
					Success:    true,
					Output:     block["content"].(string),
				}))
			}
		}
	}
	assertSamePairing(t, want, got)
}

func TestRoundTrip_Google(t *testing.T) {
	want := toolHistory(3)
	native := buildGeminiContents(ChatRequest{History: want}, "gemini-2.5-flash")

	var got []schema.ConversationTurn
	var lastCalls []schema.ToolCall
	for _, content := range native {
		if content.Role == "model" {
			raw := reencode(t, map[string]any{"candidates": []any{map[string]any{"content": content}}})
			turn, err := parseGeminiResponse("gemini", raw)
			require.NoError(t, err)
			got = append(got, turn)
			lastCalls = turn.ToolCalls
			continue
		}
		// Responses pair with the preceding batch by position.
		responses := 0
		for _, part := range content.Parts {
			switch {
			case part.FunctionResponse != nil:
				call := lastCalls[responses]
				require.Equal(t, call.Name, part.FunctionResponse.Name)
				got = append(got, schema.NewToolTurn(schema.ToolResult{
					ToolCallID: call.ID,
					Success:    true,
					Output:     part.FunctionResponse.Response["content"].(string),
				}))
				responses++
			default:
				got = append(got, schema.NewUserTurn(part.Text))
			}
		}
	}
	assertSamePairing(t, want, got)
}
