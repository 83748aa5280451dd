package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/crystaldolphin/tidewire/internal/dispatch"
	"github.com/crystaldolphin/tidewire/internal/providers"
	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/shared/llmutils"
	"github.com/crystaldolphin/tidewire/internal/tools"
)

// ErrMaxIterations is returned when the model keeps calling tools past the
// iteration limit.
var ErrMaxIterations = errors.New("reached the maximum number of tool iterations")

// Chatter performs one adapter exchange. *providers.Router implements it.
type Chatter interface {
	Chat(ctx context.Context, req providers.ChatRequest) (schema.ConversationTurn, error)
}

// ToolDispatcher runs tool calls. *dispatch.Dispatcher implements it.
type ToolDispatcher interface {
	Definitions(allow []string) []schema.ToolDefinition
	ExecuteBatch(ctx context.Context, calls []schema.ToolCall, opts dispatch.Options) []schema.ToolResult
}

// Settings are the per-runner model and tool limits.
type Settings struct {
	Profile     providers.ProviderProfile
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature *float64
	MaxIter     int
	// MaxRetries bounds retries of retryable provider failures per call.
	MaxRetries   int
	RetryBackoff time.Duration

	Workspace         string
	AllowTools        []string
	AllowUserSessions bool
	Parallelism       int
	// CallTimeout bounds each tool call; 0 means no limit.
	CallTimeout time.Duration
}

// RunRequest is one user message to answer.
type RunRequest struct {
	SessionID    string
	SystemPrompt string
	History      []schema.ConversationTurn
	Message      string
	Images       []schema.Image
	// Tools overrides Settings.AllowTools when non-nil.
	Tools      []string
	Depth      int
	OnProgress func(string)
}

// RunResult is the outcome of a run. Turns holds every turn the run added,
// starting with the user turn, and is valid even when Run returns an error.
type RunResult struct {
	Content    string
	Turns      []schema.ConversationTurn
	ToolsUsed  []string
	Iterations int
	Usage      schema.Usage
	// Truncated is set when the final answer hit the output limit.
	Truncated bool
}

// Runner executes the model ↔ tool iteration loop.
type Runner struct {
	chat     Chatter
	tools    ToolDispatcher
	settings Settings
}

func NewRunner(chat Chatter, tools ToolDispatcher, settings Settings) *Runner {
	if settings.MaxIter <= 0 {
		settings.MaxIter = 20
	}
	if settings.RetryBackoff <= 0 {
		settings.RetryBackoff = time.Second
	}
	return &Runner{chat: chat, tools: tools, settings: settings}
}

func (r *Runner) Settings() Settings { return r.settings }

// Run alternates adapter calls and tool dispatch until the model answers
// without tool calls. Provider failures abort the run; tool failures are
// reported to the model as tool turns.
func (r *Runner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	allow := r.settings.AllowTools
	if req.Tools != nil {
		allow = req.Tools
	}
	scope := tools.ScopeFrom(ctx)
	allow = tools.NarrowAllow(scope.AllowTools, allow)
	scope.AllowTools = allow
	scope.AgentSessionID = req.SessionID
	scope.Depth = req.Depth
	if r.settings.Workspace != "" {
		scope.Workspace = r.settings.Workspace
	}
	scope.AllowUserSessions = scope.AllowUserSessions || r.settings.AllowUserSessions
	ctx = tools.WithScope(ctx, scope)

	opts := dispatch.Options{
		AgentSessionID:    req.SessionID,
		Workspace:         scope.Workspace,
		AllowTools:        allow,
		AllowUserSessions: scope.AllowUserSessions,
		Parallelism:       r.settings.Parallelism,
		Timeout:           r.settings.CallTimeout,
	}
	defs := r.tools.Definitions(allow)
	if err := schema.ValidatePairing(schema.History{Turns: req.History}); err != nil {
		slog.Warn("Prior history is not well paired", "session", req.SessionID, "err", err)
	}

	user := schema.NewUserTurn(req.Message, req.Images...)
	history := append(slices.Clone(req.History), user)
	res := RunResult{Turns: []schema.ConversationTurn{user}}

	for res.Iterations < r.settings.MaxIter {
		res.Iterations++
		turn, err := r.chatWithRetry(ctx, providers.ChatRequest{
			Profile:      r.settings.Profile,
			APIKey:       r.settings.APIKey,
			Model:        r.settings.Model,
			History:      history,
			SystemPrompt: req.SystemPrompt,
			Tools:        defs,
			MaxTokens:    r.settings.MaxTokens,
			Temperature:  r.settings.Temperature,
		})
		if err != nil {
			return res, err
		}
		if err := schema.ValidateToolCallIDs(turn); err != nil {
			return res, &schema.ProviderProtocolError{Provider: r.settings.Profile.ID(), Reason: "invalid tool calls", Err: err}
		}
		res.Usage.InputTokens += turn.Usage.InputTokens
		res.Usage.OutputTokens += turn.Usage.OutputTokens
		history = append(history, turn)
		res.Turns = append(res.Turns, turn)

		if !turn.HasToolCalls() {
			res.Content = llmutils.StripThink(turn.Text())
			res.Truncated = !turn.Complete
			return res, nil
		}

		if req.OnProgress != nil {
			if clean := llmutils.StripThink(turn.Text()); clean != "" {
				req.OnProgress(clean)
			}
			req.OnProgress(llmutils.ToolHint(turn.ToolCalls))
		}

		for _, tc := range turn.ToolCalls {
			res.ToolsUsed = append(res.ToolsUsed, tc.Name)
		}
		for _, result := range r.tools.ExecuteBatch(ctx, turn.ToolCalls, opts) {
			tr := schema.NewToolTurn(result)
			history = append(history, tr)
			res.Turns = append(res.Turns, tr)
		}
	}

	slog.Warn("Agent hit iteration limit", "session", req.SessionID, "limit", r.settings.MaxIter)
	return res, ErrMaxIterations
}

// chatWithRetry retries retryable transport failures with exponential backoff.
func (r *Runner) chatWithRetry(ctx context.Context, req providers.ChatRequest) (schema.ConversationTurn, error) {
	backoff := r.settings.RetryBackoff
	for attempt := 0; ; attempt++ {
		turn, err := r.chat.Chat(ctx, req)
		if err == nil {
			return turn, nil
		}
		var te *schema.ProviderTransportError
		if attempt >= r.settings.MaxRetries || !errors.As(err, &te) || !te.Retryable() {
			return schema.ConversationTurn{}, fmt.Errorf("chat: %w", err)
		}
		slog.Warn("Provider call failed, retrying", "provider", te.Provider, "status", te.StatusCode, "attempt", attempt+1, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return schema.ConversationTurn{}, ctx.Err()
		}
		backoff *= 2
	}
}
