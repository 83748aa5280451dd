package agent

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystaldolphin/tidewire/internal/dispatch"
	"github.com/crystaldolphin/tidewire/internal/providers"
	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/session"
	"github.com/crystaldolphin/tidewire/internal/tools"
)

// scriptedChat replays canned turns and records every request.
type scriptedChat struct {
	mu       sync.Mutex
	replies  []any // schema.ConversationTurn or error
	requests []providers.ChatRequest
}

func (c *scriptedChat) Chat(_ context.Context, req providers.ChatRequest) (schema.ConversationTurn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if len(c.replies) == 0 {
		return schema.ConversationTurn{}, errors.New("script exhausted")
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	if err, ok := next.(error); ok {
		return schema.ConversationTurn{}, err
	}
	return next.(schema.ConversationTurn), nil
}

func answer(text string) schema.ConversationTurn {
	return schema.NewAssistantTurn(schema.StrPtr(text), nil)
}

func callTurn(calls ...schema.ToolCall) schema.ConversationTurn {
	return schema.NewAssistantTurn(nil, calls)
}

type closerSpy struct {
	mu     sync.Mutex
	owners []string
}

func (c *closerSpy) CloseByOwner(owner string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.owners = append(c.owners, owner)
	return nil
}

func newDispatcher(t *testing.T, ts ...tools.Tool) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.New(dispatch.Config{Core: ts})
	require.NoError(t, err)
	return d
}

func echoTool(seen *[]tools.Scope) tools.Tool {
	return tools.Func{
		Def: schema.ToolDefinition{Name: "echo", Description: "echo", Parameters: schema.Parameters{
			Properties: []schema.Property{schema.Param("text", schema.TypeString, "text")},
		}},
		Fn: func(ctx context.Context, args tools.Args) (tools.Output, error) {
			if seen != nil {
				*seen = append(*seen, tools.ScopeFrom(ctx))
			}
			return tools.Text("echo: " + args.String("text")), nil
		},
	}
}

func TestRunnerToolLoop(t *testing.T) {
	chat := &scriptedChat{replies: []any{
		callTurn(schema.ToolCall{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "hi"}, ReasoningToken: "sig-1"}),
		answer("<think>done</think>All good."),
	}}
	var scopes []tools.Scope
	r := NewRunner(chat, newDispatcher(t, echoTool(&scopes)), Settings{Model: "m", Workspace: "/ws"})

	var progress []string
	res, err := r.Run(context.Background(), RunRequest{
		SessionID:  "cli:1",
		Message:    "say hi",
		OnProgress: func(s string) { progress = append(progress, s) },
	})
	require.NoError(t, err)
	assert.Equal(t, "All good.", res.Content)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, []string{"echo"}, res.ToolsUsed)
	assert.Equal(t, []string{`echo("hi")`}, progress)

	require.Len(t, res.Turns, 4)
	assert.Equal(t, schema.RoleUser, res.Turns[0].Role)
	assert.Equal(t, "sig-1", res.Turns[1].ToolCalls[0].ReasoningToken)
	assert.Equal(t, "c1", res.Turns[2].ToolCallID)
	assert.Equal(t, "echo: hi", res.Turns[2].Text())

	// The second request replays the whole exchange.
	require.Len(t, chat.requests, 2)
	assert.Len(t, chat.requests[1].History, 3)
	assert.Empty(t, chat.requests[1].UserMessage)
	require.Len(t, scopes, 1)
	assert.Equal(t, "cli:1", scopes[0].AgentSessionID)
	assert.Equal(t, "/ws", scopes[0].Workspace)
}

func TestRunnerFailedToolIsReportedToModel(t *testing.T) {
	chat := &scriptedChat{replies: []any{
		callTurn(schema.ToolCall{ID: "c1", Name: "missing_tool"}),
		answer("Sorry."),
	}}
	r := NewRunner(chat, newDispatcher(t, echoTool(nil)), Settings{})
	res, err := r.Run(context.Background(), RunRequest{Message: "x"})
	require.NoError(t, err)
	assert.Contains(t, res.Turns[2].Text(), "Error: unknown tool: missing_tool")
}

func TestRunnerRetriesRetryableTransportErrors(t *testing.T) {
	chat := &scriptedChat{replies: []any{
		&schema.ProviderTransportError{Provider: "p", StatusCode: http.StatusTooManyRequests},
		&schema.ProviderTransportError{Provider: "p", StatusCode: http.StatusBadGateway},
		answer("ok"),
	}}
	r := NewRunner(chat, newDispatcher(t), Settings{MaxRetries: 2, RetryBackoff: time.Millisecond})
	res, err := r.Run(context.Background(), RunRequest{Message: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Len(t, chat.requests, 3)
}

func TestRunnerDoesNotRetryTerminalErrors(t *testing.T) {
	chat := &scriptedChat{replies: []any{
		&schema.ProviderTransportError{Provider: "p", StatusCode: http.StatusUnauthorized},
		answer("never"),
	}}
	r := NewRunner(chat, newDispatcher(t), Settings{MaxRetries: 3, RetryBackoff: time.Millisecond})
	_, err := r.Run(context.Background(), RunRequest{Message: "x"})
	var te *schema.ProviderTransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Len(t, chat.requests, 1)
}

func TestRunnerIterationLimit(t *testing.T) {
	call := callTurn(schema.ToolCall{ID: "c", Name: "echo"})
	chat := &scriptedChat{replies: []any{call, call, call}}
	r := NewRunner(chat, newDispatcher(t, echoTool(nil)), Settings{MaxIter: 2})
	res, err := r.Run(context.Background(), RunRequest{Message: "loop"})
	assert.ErrorIs(t, err, ErrMaxIterations)
	assert.Equal(t, 2, res.Iterations)
}

func TestRunnerRejectsDuplicateCallIDs(t *testing.T) {
	chat := &scriptedChat{replies: []any{
		callTurn(schema.ToolCall{ID: "dup", Name: "echo"}, schema.ToolCall{ID: "dup", Name: "echo"}),
	}}
	r := NewRunner(chat, newDispatcher(t, echoTool(nil)), Settings{})
	_, err := r.Run(context.Background(), RunRequest{Message: "x"})
	var pe *schema.ProviderProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "duplicate tool call id")
}

func TestRunnerAllowList(t *testing.T) {
	chat := &scriptedChat{replies: []any{
		callTurn(schema.ToolCall{ID: "c1", Name: "echo"}),
		answer("done"),
	}}
	r := NewRunner(chat, newDispatcher(t, echoTool(nil)), Settings{AllowTools: []string{}})
	res, err := r.Run(context.Background(), RunRequest{Message: "x"})
	require.NoError(t, err)
	assert.Empty(t, chat.requests[0].Tools)
	assert.Contains(t, res.Turns[2].Text(), "not allowed")
}

func TestAgentLoopPersistsOnlySuccessfulRuns(t *testing.T) {
	sessions, err := session.NewManager(t.TempDir())
	require.NoError(t, err)
	chat := &scriptedChat{replies: []any{
		answer("first answer"),
		&schema.ProviderTransportError{Provider: "p", StatusCode: http.StatusBadRequest},
	}}
	closer := &closerSpy{}
	loop := NewAgentLoop(NewRunner(chat, newDispatcher(t), Settings{}), sessions, NewPromptBuilder(t.TempDir(), ""), closer, 50)

	out, err := loop.ProcessDirect(context.Background(), "hello", "cli:direct", nil)
	require.NoError(t, err)
	assert.Equal(t, "first answer", out)
	assert.Equal(t, 2, sessions.GetOrCreate("cli:direct").Len())

	_, err = loop.ProcessDirect(context.Background(), "again", "cli:direct", nil)
	require.Error(t, err)
	assert.Equal(t, 2, sessions.GetOrCreate("cli:direct").Len())
	// History was replayed on the second call.
	assert.Len(t, chat.requests[1].History, 3)

	out, err = loop.ProcessDirect(context.Background(), "/new", "cli:direct", nil)
	require.NoError(t, err)
	assert.Equal(t, "New session started.", out)
	assert.Equal(t, 0, sessions.GetOrCreate("cli:direct").Len())
	assert.Equal(t, []string{"cli:direct"}, closer.owners)
}

// slowChat answers every request after a pause and records how many
// requests were in flight at once.
type slowChat struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	seen     []int // history length of each request
}

func (c *slowChat) Chat(_ context.Context, req providers.ChatRequest) (schema.ConversationTurn, error) {
	c.mu.Lock()
	c.inFlight++
	c.peak = max(c.peak, c.inFlight)
	c.seen = append(c.seen, len(req.History))
	c.mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return answer("ok"), nil
}

func TestAgentLoopSerializesSameSession(t *testing.T) {
	sessions, err := session.NewManager(t.TempDir())
	require.NoError(t, err)
	chat := &slowChat{}
	loop := NewAgentLoop(NewRunner(chat, newDispatcher(t), Settings{}), sessions, NewPromptBuilder(t.TempDir(), ""), nil, 50)

	var wg sync.WaitGroup
	for _, msg := range []string{"one", "two"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := loop.ProcessDirect(context.Background(), msg, "http:shared", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, chat.peak)
	// The second run saw the first exchange.
	assert.ElementsMatch(t, []int{1, 3}, chat.seen)

	turns := sessions.GetOrCreate("http:shared").Snapshot(50).Turns
	require.Len(t, turns, 4)
	roles := []schema.Role{turns[0].Role, turns[1].Role, turns[2].Role, turns[3].Role}
	assert.Equal(t, []schema.Role{schema.RoleUser, schema.RoleAssistant, schema.RoleUser, schema.RoleAssistant}, roles)
}

func TestAgentLoopRunsDistinctSessionsConcurrently(t *testing.T) {
	sessions, err := session.NewManager(t.TempDir())
	require.NoError(t, err)
	chat := &slowChat{}
	loop := NewAgentLoop(NewRunner(chat, newDispatcher(t), Settings{}), sessions, NewPromptBuilder(t.TempDir(), ""), nil, 50)

	var wg sync.WaitGroup
	for _, key := range []string{"http:a", "http:b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := loop.ProcessDirect(context.Background(), "hi", key, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, sessions.GetOrCreate("http:a").Len())
	assert.Equal(t, 2, sessions.GetOrCreate("http:b").Len())
}

func TestSubagentRunner(t *testing.T) {
	chat := &scriptedChat{replies: []any{answer("found it")}}
	d := newDispatcher(t, echoTool(nil), tools.NewInvokeAgentTool(nil))
	closer := &closerSpy{}
	sub := NewSubagentRunner(NewRunner(chat, d, Settings{}), NewPromptBuilder("/ws", ""), closer, nil)

	got, err := sub.Invoke(context.Background(), tools.AgentRequest{Task: "look", Depth: 1})
	require.NoError(t, err)
	assert.Equal(t, "found it", got)

	require.Len(t, chat.requests, 1)
	var names []string
	for _, def := range chat.requests[0].Tools {
		names = append(names, def.Name)
	}
	assert.Equal(t, []string{"echo"}, names)
	assert.Contains(t, chat.requests[0].SystemPrompt, "Subagent")
	require.Len(t, closer.owners, 1)
	assert.Contains(t, closer.owners[0], "subagent:")
}

type lateInvoker struct{ sub *SubagentRunner }

func (l *lateInvoker) Invoke(ctx context.Context, req tools.AgentRequest) (string, error) {
	return l.sub.Invoke(ctx, req)
}

func TestNestedSubagentsNeverWidenInvokerAllowList(t *testing.T) {
	var secretRan bool
	secret := tools.Func{
		Def: schema.ToolDefinition{Name: "secret"},
		Fn: func(context.Context, tools.Args) (tools.Output, error) {
			secretRan = true
			return tools.Text("leaked"), nil
		},
	}
	chat := &scriptedChat{replies: []any{
		callTurn(schema.ToolCall{ID: "t1", Name: tools.ToolInvokeAgent, Arguments: map[string]any{
			"task": "delegate", "tools": []any{tools.ToolInvokeAgent},
		}}),
		callTurn(schema.ToolCall{ID: "s1", Name: tools.ToolInvokeAgent, Arguments: map[string]any{
			"task": "use secret", "tools": []any{"secret"},
		}}),
		callTurn(schema.ToolCall{ID: "s2", Name: "secret"}),
		answer("inner done"),
		answer("middle done"),
		answer("top done"),
	}}
	inv := &lateInvoker{}
	r := NewRunner(chat, newDispatcher(t, echoTool(nil), secret, tools.NewInvokeAgentTool(inv)), Settings{})
	inv.sub = NewSubagentRunner(r, NewPromptBuilder("", ""), nil, nil)

	res, err := r.Run(context.Background(), RunRequest{
		SessionID: "cli:top",
		Message:   "go",
		Tools:     []string{tools.ToolInvokeAgent, "echo"},
	})
	require.NoError(t, err)
	assert.Equal(t, "top done", res.Content)
	assert.False(t, secretRan)

	require.Len(t, chat.requests, 6)
	require.Len(t, chat.requests[1].Tools, 1)
	assert.Equal(t, tools.ToolInvokeAgent, chat.requests[1].Tools[0].Name)
	assert.Empty(t, chat.requests[2].Tools)
	// The innermost agent saw its secret call refused.
	last := chat.requests[3].History[len(chat.requests[3].History)-1]
	assert.Equal(t, "s2", last.ToolCallID)
	assert.Contains(t, last.Text(), "not allowed")
}

func TestSubagentDefaultsNarrowedByInvoker(t *testing.T) {
	r := NewRunner(&scriptedChat{}, newDispatcher(t, echoTool(nil), tools.NewInvokeAgentTool(nil)), Settings{})
	sub := NewSubagentRunner(r, NewPromptBuilder("", ""), nil, nil)

	assert.Equal(t, []string{"echo"}, sub.toolsFor(nil, nil))
	assert.Empty(t, sub.toolsFor(nil, []string{tools.ToolInvokeAgent}))
	assert.Equal(t, []string{"echo"}, sub.toolsFor([]string{"echo", "write_file"}, []string{"echo"}))
}
