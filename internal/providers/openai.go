package providers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/toolschema"
)

// OpenAIAdapter speaks the OpenAI chat-completions format, which most
// gateways and local servers also accept.
type OpenAIAdapter struct {
	transport transport
	finalizer Finalizer
}

func (a *OpenAIAdapter) Chat(ctx context.Context, req ChatRequest) (schema.ConversationTurn, error) {
	model := req.model()
	body := map[string]any{
		"model":      model,
		"messages":   buildOpenAIMessages(req),
		"stream":     false,
		"max_tokens": req.maxTokens(),
	}
	if len(req.Tools) > 0 {
		body["tools"] = toolschema.OpenAI(req.Tools)
		body["tool_choice"] = "auto"
	}
	if req.Temperature != nil {
		body["temperature"] = *req.Temperature
	}

	slog.Debug("LLM request", "provider", req.Profile.ID(), "model", model, "turns", len(req.History))
	raw, err := a.transport.do(ctx, http.MethodPost, req.Profile, req.APIKey,
		req.Profile.BaseEndpoint()+"/chat/completions", body, nil)
	if err != nil {
		return schema.ConversationTurn{}, err
	}

	turn, err := parseOpenAIResponse(req.Profile.ID(), raw)
	if err != nil {
		return schema.ConversationTurn{}, err
	}
	a.finalizer.Finalize(model, &turn)
	return turn, nil
}

// ---------------------------------------------------------------------------
// Request serialization
// ---------------------------------------------------------------------------

func buildOpenAIMessages(req ChatRequest) []map[string]any {
	out := make([]map[string]any, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		out = append(out, map[string]any{"role": "system", "content": req.SystemPrompt})
	}
	for _, turn := range req.History {
		out = append(out, openAIMessage(turn))
	}
	if req.appendsUserTurn() {
		out = append(out, openAIMessage(schema.NewUserTurn(req.UserMessage, req.Images...)))
	}
	return out
}

// openAIMessage converts one canonical turn. Reasoning fields are dropped.
func openAIMessage(turn schema.ConversationTurn) map[string]any {
	switch turn.Role {
	case schema.RoleAssistant:
		msg := map[string]any{"role": "assistant", "content": nil}
		if turn.Content != nil {
			msg["content"] = *turn.Content
		}
		if len(turn.ToolCalls) > 0 {
			calls := make([]map[string]any, len(turn.ToolCalls))
			for i, tc := range turn.ToolCalls {
				calls[i] = map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": encodeArguments(tc.Arguments),
					},
				}
			}
			msg["tool_calls"] = calls
		}
		return msg

	case schema.RoleTool:
		return map[string]any{
			"role":         "tool",
			"tool_call_id": turn.ToolCallID,
			"content":      turn.Text(),
		}

	case schema.RoleUser:
		if len(turn.Images) == 0 {
			return map[string]any{"role": "user", "content": turn.Text()}
		}
		parts := make([]any, 0, len(turn.Images)+1)
		if turn.Text() != "" {
			parts = append(parts, map[string]any{"type": "text", "text": turn.Text()})
		}
		for _, img := range turn.Images {
			parts = append(parts, map[string]any{
				"type":      "image_url",
				"image_url": map[string]any{"url": "data:" + img.MediaType + ";base64," + img.Data},
			})
		}
		return map[string]any{"role": "user", "content": parts}
	}
	return map[string]any{"role": string(turn.Role), "content": turn.Text()}
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content          *string `json:"content"`
			ReasoningContent *string `json:"reasoning_content"`
			ToolCalls        []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func parseOpenAIResponse(provider string, raw []byte) (schema.ConversationTurn, error) {
	var body openAIResponse
	if err := decodeBody(provider, raw, &body); err != nil {
		return schema.ConversationTurn{}, err
	}
	if len(body.Choices) == 0 {
		return schema.ConversationTurn{}, &schema.ProviderProtocolError{Provider: provider, Reason: "no choices in response"}
	}

	choice := body.Choices[0]
	msg := choice.Message

	var calls []schema.ToolCall
	for _, tc := range msg.ToolCalls {
		args, err := parseArguments(tc.Function.Arguments)
		if err != nil {
			slog.Warn("Failed to parse tool arguments", "tool", tc.Function.Name, "err", err)
		}
		calls = append(calls, schema.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	turn := schema.NewAssistantTurn(nonEmpty(msg.Content), calls)
	turn.Reasoning = nonEmpty(msg.ReasoningContent)
	turn.FinishReason = choice.FinishReason
	if turn.FinishReason == "" {
		turn.FinishReason = "stop"
	}
	turn.Complete = choice.FinishReason != "length"
	turn.Usage = schema.Usage{InputTokens: body.Usage.PromptTokens, OutputTokens: body.Usage.CompletionTokens}
	return turn, nil
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
