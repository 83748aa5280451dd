package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/crystaldolphin/tidewire/internal/session"
	"github.com/crystaldolphin/tidewire/internal/shared/llmutils"
)

// SessionCloser releases resources owned by a conversation, such as its
// terminal sessions. *terminal.Manager implements it.
type SessionCloser interface {
	CloseByOwner(owner string) []string
}

// AgentLoop answers user messages within persisted conversations.
type AgentLoop struct {
	runner   *Runner
	sessions *session.Manager
	prompts  *PromptBuilder
	closer   SessionCloser
	window   int

	locks sync.Map // session key -> *sync.Mutex
}

func NewAgentLoop(runner *Runner, sessions *session.Manager, prompts *PromptBuilder, closer SessionCloser, window int) *AgentLoop {
	return &AgentLoop{runner: runner, sessions: sessions, prompts: prompts, closer: closer, window: window}
}

// ProcessDirect answers content in the conversation sessionKey and returns
// the final text. Turns are persisted only when the run succeeds, so a
// failed provider call leaves the stored history untouched. Messages for the
// same sessionKey are processed one at a time.
func (loop *AgentLoop) ProcessDirect(ctx context.Context, content, sessionKey string, onProgress func(string)) (string, error) {
	slog.Info("Processing message", "session", sessionKey, "content", llmutils.Truncate(content, 80))

	mu := loop.sessionLock(sessionKey)
	mu.Lock()
	defer mu.Unlock()

	if resp, ok := loop.handleSlashCommand(content, sessionKey); ok {
		return resp, nil
	}

	sess := loop.sessions.GetOrCreate(sessionKey)
	res, err := loop.runner.Run(ctx, RunRequest{
		SessionID:    sessionKey,
		SystemPrompt: loop.prompts.BuildSystemPrompt(sessionKey),
		History:      sess.Snapshot(loop.window).Turns,
		Message:      content,
		OnProgress:   onProgress,
	})
	if err != nil && !errors.Is(err, ErrMaxIterations) {
		slog.Error("Agent run failed", "session", sessionKey, "err", err)
		return "", err
	}

	final := res.Content
	if errors.Is(err, ErrMaxIterations) {
		final = "I've reached the maximum number of tool iterations without a final answer."
	}
	if res.Truncated {
		final += "\n\n[response truncated at the output limit]"
	}
	final = llmutils.StringOrDefault(final, "I've completed processing but have no response to give.")

	sess.Append(res.Turns...)
	if err := loop.sessions.Save(sess); err != nil {
		slog.Warn("Session save failed", "session", sessionKey, "err", err)
	}
	slog.Info("Response", "session", sessionKey, "length", len(final), "iterations", res.Iterations, "tools", len(res.ToolsUsed))
	return final, nil
}

func (loop *AgentLoop) sessionLock(key string) *sync.Mutex {
	mu, _ := loop.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// EndSession releases everything the conversation owns.
func (loop *AgentLoop) EndSession(sessionKey string) {
	if loop.closer == nil {
		return
	}
	if closed := loop.closer.CloseByOwner(sessionKey); len(closed) > 0 {
		slog.Info("Closed terminal sessions", "session", sessionKey, "count", len(closed))
	}
}

// handleSlashCommand handles /new and /help.
func (loop *AgentLoop) handleSlashCommand(content, sessionKey string) (string, bool) {
	switch strings.TrimSpace(strings.ToLower(content)) {
	case "/new":
		sess := loop.sessions.GetOrCreate(sessionKey)
		sess.Clear()
		if err := loop.sessions.Save(sess); err != nil {
			slog.Warn("Session save failed", "session", sessionKey, "err", err)
		}
		loop.sessions.Invalidate(sessionKey)
		loop.EndSession(sessionKey)
		return "New session started.", true
	case "/help":
		return "tidewire commands:\n/new - Start a new conversation\n/help - Show available commands", true
	}
	return "", false
}
