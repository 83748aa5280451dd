package providers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/toolschema"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter speaks the Anthropic Messages API.
type AnthropicAdapter struct {
	transport transport
	finalizer Finalizer
}

func (a *AnthropicAdapter) Chat(ctx context.Context, req ChatRequest) (schema.ConversationTurn, error) {
	model := req.model()
	system, messages := buildAnthropicMessages(req)
	body := map[string]any{
		"model":      model,
		"messages":   messages,
		"max_tokens": req.maxTokens(),
		"stream":     false,
	}
	if system != "" {
		body["system"] = system
	}
	if len(req.Tools) > 0 {
		body["tools"] = toolschema.Anthropic(req.Tools)
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	slog.Debug("LLM request", "provider", req.Profile.ID(), "model", model, "turns", len(req.History))
	raw, err := a.transport.do(ctx, http.MethodPost, req.Profile, req.APIKey,
		req.Profile.BaseEndpoint()+"/messages", body,
		map[string]string{"anthropic-version": anthropicVersion})
	if err != nil {
		return schema.ConversationTurn{}, err
	}

	turn, err := parseAnthropicResponse(req.Profile.ID(), raw)
	if err != nil {
		return schema.ConversationTurn{}, err
	}
	a.finalizer.Finalize(model, &turn)
	return turn, nil
}

// ---------------------------------------------------------------------------
// Request serialization
// ---------------------------------------------------------------------------

// buildAnthropicMessages returns the system prompt and the message array.
// System turns in history are folded into the system prompt, and
// consecutive user-side entries (tool results, user text) share one message
// so roles keep alternating.
func buildAnthropicMessages(req ChatRequest) (string, []map[string]any) {
	systems := []string{}
	if req.SystemPrompt != "" {
		systems = append(systems, req.SystemPrompt)
	}

	var out []map[string]any
	appendUser := func(blocks ...any) {
		if n := len(out); n > 0 && out[n-1]["role"] == "user" {
			out[n-1]["content"] = append(out[n-1]["content"].([]any), blocks...)
			return
		}
		out = append(out, map[string]any{"role": "user", "content": blocks})
	}

	turns := req.History
	if req.appendsUserTurn() {
		turns = append(turns[:len(turns):len(turns)], schema.NewUserTurn(req.UserMessage, req.Images...))
	}

	for _, turn := range turns {
		switch turn.Role {
		case schema.RoleSystem:
			if turn.Text() != "" {
				systems = append(systems, turn.Text())
			}

		case schema.RoleUser:
			appendUser(anthropicUserBlocks(turn)...)

		case schema.RoleTool:
			appendUser(map[string]any{
				"type":        "tool_result",
				"tool_use_id": turn.ToolCallID,
				"content":     turn.Text(),
			})

		case schema.RoleAssistant:
			var blocks []any
			if turn.Text() != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": turn.Text()})
			}
			for _, tc := range turn.ToolCalls {
				input := tc.Arguments
				if input == nil {
					input = map[string]any{}
				}
				blocks = append(blocks, map[string]any{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(blocks) == 0 {
				blocks = []any{map[string]any{"type": "text", "text": ""}}
			}
			out = append(out, map[string]any{"role": "assistant", "content": blocks})
		}
	}
	return strings.Join(systems, "\n\n"), out
}

func anthropicUserBlocks(turn schema.ConversationTurn) []any {
	blocks := make([]any, 0, len(turn.Images)+1)
	for _, img := range turn.Images {
		blocks = append(blocks, map[string]any{
			"type": "image",
			"source": map[string]any{
				"type":       "base64",
				"media_type": img.MediaType,
				"data":       img.Data,
			},
		})
	}
	if turn.Text() != "" || len(blocks) == 0 {
		blocks = append(blocks, map[string]any{"type": "text", "text": turn.Text()})
	}
	return blocks
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

type anthropicResponse struct {
	Content []struct {
		Type     string         `json:"type"`
		Text     string         `json:"text"`     // text
		Thinking string         `json:"thinking"` // thinking
		ID       string         `json:"id"`       // tool_use
		Name     string         `json:"name"`     // tool_use
		Input    map[string]any `json:"input"`    // tool_use
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func parseAnthropicResponse(provider string, raw []byte) (schema.ConversationTurn, error) {
	var body anthropicResponse
	if err := decodeBody(provider, raw, &body); err != nil {
		return schema.ConversationTurn{}, err
	}
	if body.Content == nil && body.StopReason == "" {
		return schema.ConversationTurn{}, &schema.ProviderProtocolError{Provider: provider, Reason: "no content in response"}
	}

	var text, thinking strings.Builder
	var calls []schema.ToolCall
	for _, block := range body.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			thinking.WriteString(block.Thinking)
		case "tool_use":
			args := block.Input
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, schema.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}

	turn := schema.NewAssistantTurn(schema.StrPtr(text.String()), calls)
	turn.Reasoning = schema.StrPtr(thinking.String())
	switch body.StopReason {
	case "tool_use":
		turn.FinishReason = "tool_calls"
	case "", "end_turn":
		turn.FinishReason = "stop"
	default:
		turn.FinishReason = body.StopReason
	}
	turn.Complete = body.StopReason != "max_tokens"
	turn.Usage = schema.Usage{InputTokens: body.Usage.InputTokens, OutputTokens: body.Usage.OutputTokens}
	return turn, nil
}
