// Package schema holds the provider-independent conversation model shared by
// adapters, the dispatcher and the orchestration loop.
package schema

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Image is an inline attachment on a user turn. Data is base64 encoded.
type Image struct {
	Filename  string `json:"filename,omitempty"`
	Data      string `json:"data"`
	MediaType string `json:"mediaType"`
}

// Usage is the token accounting reported by a provider for one response.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// ConversationTurn is one entry in the conversation history.
//
// Content is nil for assistant turns that only carry tool calls.
// ToolCalls is set on assistant turns; ToolCallID and ToolName on tool turns.
// Reasoning and ReasoningToken are only meaningful to providers that define
// them; other adapters drop them on the way out.
type ConversationTurn struct {
	Role           Role       `json:"role"`
	Content        *string    `json:"content"`
	ToolCalls      []ToolCall `json:"toolCalls,omitempty"`
	ToolCallID     string     `json:"toolCallId,omitempty"`
	ToolName       string     `json:"toolName,omitempty"`
	Reasoning      *string    `json:"reasoning,omitempty"`
	ReasoningToken string     `json:"reasoningToken,omitempty"`
	Images         []Image    `json:"images,omitempty"`

	// Set by adapters on the assistant turn they return.
	Complete     bool   `json:"complete,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Usage        Usage  `json:"usage,omitempty"`
}

// HasToolCalls reports whether the turn requests at least one tool call.
func (t ConversationTurn) HasToolCalls() bool { return len(t.ToolCalls) > 0 }

// Text returns the turn content or "" when it is nil.
func (t ConversationTurn) Text() string {
	if t.Content == nil {
		return ""
	}
	return *t.Content
}

func NewSystemTurn(content string) ConversationTurn {
	return ConversationTurn{Role: RoleSystem, Content: &content}
}

func NewUserTurn(content string, images ...Image) ConversationTurn {
	return ConversationTurn{Role: RoleUser, Content: &content, Images: images}
}

// NewAssistantTurn builds an assistant turn. content may be nil.
func NewAssistantTurn(content *string, toolCalls []ToolCall) ConversationTurn {
	return ConversationTurn{Role: RoleAssistant, Content: content, ToolCalls: toolCalls, Complete: true}
}

// NewToolTurn converts a dispatch result into the tool turn answering it.
// Failed results are rendered with an "Error:" prefix so the model sees them.
func NewToolTurn(result ToolResult) ConversationTurn {
	content := result.Output
	if !result.Success {
		content = "Error: " + result.Error
		if result.Output != "" {
			content += "\n" + result.Output
		}
	}
	return ConversationTurn{
		Role:       RoleTool,
		Content:    &content,
		ToolCallID: result.ToolCallID,
		ToolName:   result.ToolName,
	}
}

// StrPtr returns a pointer to s, or nil when s is empty.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
