package providers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/toolschema"
)

// GoogleAdapter speaks the Gemini generateContent API.
type GoogleAdapter struct {
	transport transport
	finalizer Finalizer
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user, model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	Thought          bool                    `json:"thought,omitempty"`
	InlineData       *geminiInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
	ThoughtSignature string                  `json:"thoughtSignature,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	Tools             []any                  `json:"tools,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (a *GoogleAdapter) Chat(ctx context.Context, req ChatRequest) (schema.ConversationTurn, error) {
	model := strings.TrimPrefix(req.model(), "models/")
	body := geminiRequest{
		Contents: buildGeminiContents(req, model),
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.maxTokens(),
		},
		Tools: toolschema.Google(req.Tools),
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	endpoint := req.Profile.BaseEndpoint() + "/models/" + url.PathEscape(model) + ":generateContent"
	slog.Debug("LLM request", "provider", req.Profile.ID(), "model", model, "turns", len(req.History))
	raw, err := a.transport.do(ctx, http.MethodPost, req.Profile, req.APIKey, endpoint, body, nil)
	if err != nil {
		return schema.ConversationTurn{}, err
	}

	turn, err := parseGeminiResponse(req.Profile.ID(), raw)
	if err != nil {
		return schema.ConversationTurn{}, err
	}
	a.finalizer.Finalize(model, &turn)
	return turn, nil
}

// ---------------------------------------------------------------------------
// Request serialization
// ---------------------------------------------------------------------------

// buildGeminiContents converts history. Gemini has no call ids, so tool
// results are matched to calls by name, and consecutive results share one
// content so the response count equals the call count of the batch.
func buildGeminiContents(req ChatRequest, model string) []geminiContent {
	callNames := map[string]string{}
	var out []geminiContent
	appendUserParts := func(parts ...geminiPart) {
		if n := len(out); n > 0 && out[n-1].Role == "user" {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, geminiContent{Role: "user", Parts: parts})
	}

	turns := req.History
	if req.appendsUserTurn() {
		turns = append(turns[:len(turns):len(turns)], schema.NewUserTurn(req.UserMessage, req.Images...))
	}

	for _, turn := range turns {
		switch turn.Role {
		case schema.RoleUser:
			var parts []geminiPart
			for _, img := range turn.Images {
				parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: img.MediaType, Data: img.Data}})
			}
			if turn.Text() != "" || len(parts) == 0 {
				parts = append(parts, geminiPart{Text: turn.Text()})
			}
			appendUserParts(parts...)

		case schema.RoleTool:
			name := turn.ToolName
			if name == "" {
				name = callNames[turn.ToolCallID]
			}
			appendUserParts(geminiPart{FunctionResponse: &geminiFunctionResponse{
				Name:     name,
				Response: map[string]any{"content": turn.Text()},
			}})

		case schema.RoleAssistant:
			for _, tc := range turn.ToolCalls {
				callNames[tc.ID] = tc.Name
			}
			out = append(out, geminiContent{Role: "model", Parts: geminiModelParts(turn, model)})
		}
	}
	return out
}

// geminiModelParts rebuilds an assistant turn, echoing the thought signature
// on the first function call.
func geminiModelParts(turn schema.ConversationTurn, model string) []geminiPart {
	var parts []geminiPart
	if turn.Reasoning != nil && *turn.Reasoning != "" {
		parts = append(parts, geminiPart{Text: *turn.Reasoning, Thought: true})
	}
	if turn.Text() != "" {
		part := geminiPart{Text: turn.Text()}
		if !turn.HasToolCalls() {
			part.ThoughtSignature = turn.ReasoningToken
		}
		parts = append(parts, part)
	}
	for i, tc := range turn.ToolCalls {
		args := tc.Arguments
		if args == nil {
			args = map[string]any{}
		}
		part := geminiPart{FunctionCall: &geminiFunctionCall{Name: tc.Name, Args: args}}
		if i == 0 {
			part.ThoughtSignature = firstCallSignature(turn, model)
		} else {
			part.ThoughtSignature = tc.ReasoningToken
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		parts = []geminiPart{{Text: ""}}
	}
	return parts
}

func firstCallSignature(turn schema.ConversationTurn, model string) string {
	if sig := turn.ToolCalls[0].ReasoningToken; sig != "" {
		return sig
	}
	if turn.ReasoningToken != "" {
		return turn.ReasoningToken
	}
	if RequiresReasoningToken(model) {
		return BypassReasoningToken
	}
	return ""
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

func parseGeminiResponse(provider string, raw []byte) (schema.ConversationTurn, error) {
	var body geminiResponse
	if err := decodeBody(provider, raw, &body); err != nil {
		return schema.ConversationTurn{}, err
	}
	if len(body.Candidates) == 0 {
		reason := "no candidates in response"
		if body.PromptFeedback != nil && body.PromptFeedback.BlockReason != "" {
			reason += " (blocked: " + body.PromptFeedback.BlockReason + ")"
		}
		return schema.ConversationTurn{}, &schema.ProviderProtocolError{Provider: provider, Reason: reason}
	}

	cand := body.Candidates[0]
	var text, thought strings.Builder
	var calls []schema.ToolCall
	var textSignature string
	for _, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, schema.ToolCall{
				ID:             newCallID(),
				Name:           part.FunctionCall.Name,
				Arguments:      args,
				ReasoningToken: part.ThoughtSignature,
			})
		case part.Thought:
			thought.WriteString(part.Text)
		default:
			text.WriteString(part.Text)
			if part.ThoughtSignature != "" {
				textSignature = part.ThoughtSignature
			}
		}
	}

	turn := schema.NewAssistantTurn(schema.StrPtr(text.String()), calls)
	turn.Reasoning = schema.StrPtr(thought.String())
	turn.ReasoningToken = textSignature
	turn.FinishReason = strings.ToLower(cand.FinishReason)
	if len(calls) > 0 {
		turn.FinishReason = "tool_calls"
	}
	turn.Complete = cand.FinishReason != "MAX_TOKENS"
	turn.Usage = schema.Usage{
		InputTokens:  body.UsageMetadata.PromptTokenCount,
		OutputTokens: body.UsageMetadata.CandidatesTokenCount,
	}
	return turn, nil
}
