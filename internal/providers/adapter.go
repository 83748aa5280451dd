// Package providers talks to LLM endpoints. Each wire format has one adapter
// that serializes canonical history, performs one request and parses the
// reply back into a schema.ConversationTurn.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

const defaultMaxTokens = 4096

// ChatRequest carries everything one adapter call needs.
type ChatRequest struct {
	Profile      ProviderProfile
	APIKey       string
	Model        string // empty uses the profile default
	UserMessage  string
	History      []schema.ConversationTurn
	SystemPrompt string
	Tools        []schema.ToolDefinition
	Images       []schema.Image
	MaxTokens    int
	Temperature  *float64
}

func (r ChatRequest) model() string {
	if r.Model != "" {
		return r.Model
	}
	return r.Profile.DefaultModel()
}

func (r ChatRequest) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return defaultMaxTokens
}

// appendsUserTurn reports whether a fresh user turn follows the history.
func (r ChatRequest) appendsUserTurn() bool {
	return r.UserMessage != "" || len(r.History) == 0
}

// Adapter performs one non-streaming chat exchange. Non-2xx responses are
// returned as *schema.ProviderTransportError and unparseable bodies as
// *schema.ProviderProtocolError. Adapters never retry.
type Adapter interface {
	Chat(ctx context.Context, req ChatRequest) (schema.ConversationTurn, error)
}

// NewHTTPClient returns the client shared by all adapters.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// NewAdapter builds the adapter for one wire format.
func NewAdapter(wire WireFormat, client *http.Client) (Adapter, error) {
	t := transport{client: client}
	switch wire {
	case WireOpenAI:
		return &OpenAIAdapter{transport: t, finalizer: FinalizerFor(wire)}, nil
	case WireAnthropic:
		return &AnthropicAdapter{transport: t, finalizer: FinalizerFor(wire)}, nil
	case WireGoogle:
		return &GoogleAdapter{transport: t, finalizer: FinalizerFor(wire)}, nil
	}
	return nil, fmt.Errorf("no adapter for wire format %q", wire)
}

// Router picks the adapter matching the request profile's wire format. The
// adapter table is fixed at construction.
type Router struct {
	adapters map[WireFormat]Adapter
}

// NewRouter returns a router with the three built-in adapters.
func NewRouter(client *http.Client) *Router {
	r := &Router{adapters: make(map[WireFormat]Adapter, 3)}
	for _, wire := range []WireFormat{WireOpenAI, WireAnthropic, WireGoogle} {
		a, _ := NewAdapter(wire, client)
		r.adapters[wire] = a
	}
	return r
}

func (r *Router) Chat(ctx context.Context, req ChatRequest) (schema.ConversationTurn, error) {
	a, ok := r.adapters[req.Profile.Wire()]
	if !ok {
		return schema.ConversationTurn{}, fmt.Errorf("provider %s: no adapter for wire format %q",
			req.Profile.ID(), req.Profile.Wire())
	}
	return a.Chat(ctx, req)
}
