package terminal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crystaldolphin/tidewire/internal/cron"
	"github.com/crystaldolphin/tidewire/internal/tools"
)

const reaperJobID = "terminal:reaper"

// Options configures a Manager.
type Options struct {
	Host     Host
	Registry *OriginRegistry
	// Workspace is the default working directory for new sessions.
	Workspace string
	// Guard screens commands before they are written to a session.
	Guard Guard
}

// Manager owns the live sessions. Operations on one session are serialized;
// operations on different sessions run concurrently.
type Manager struct {
	host      Host
	registry  *OriginRegistry
	workspace string
	guard     Guard

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(opts Options) *Manager {
	if opts.Host == nil {
		opts.Host = NewShellHost("", nil)
	}
	if opts.Registry == nil {
		opts.Registry = NewOriginRegistry()
	}
	return &Manager{
		host:      opts.Host,
		registry:  opts.Registry,
		workspace: opts.Workspace,
		guard:     opts.Guard,
		sessions:  make(map[string]*Session),
	}
}

func (m *Manager) Registry() *OriginRegistry { return m.registry }

// Workspace returns the default working directory for new sessions.
func (m *Manager) Workspace() string { return m.workspace }

// CreateOptions describes a new session.
type CreateOptions struct {
	Origin Origin
	Owner  string
	Dir    string
}

// Create starts a session and registers its origin.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (Info, error) {
	if opts.Origin == "" {
		opts.Origin = OriginAgent
	}
	dir := opts.Dir
	if dir == "" {
		dir = m.workspace
	}
	if dir == "" {
		dir, _ = os.Getwd()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		return Info{}, tools.InvalidArgs("working directory does not exist: %s", dir)
	}

	id := "term_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := m.host.Create(ctx, id, dir); err != nil {
		return Info{}, tools.Failed(fmt.Errorf("start session: %w", err))
	}
	s := newSession(id, opts.Origin, opts.Owner, dir)
	if err := m.registry.Register(OriginEntry{
		SessionID: id,
		Origin:    opts.Origin,
		Owner:     opts.Owner,
		Workspace: dir,
		CreatedAt: s.CreatedAt,
	}); err != nil {
		_ = m.host.Close(id)
		return Info{}, tools.Failed(err)
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	slog.Info("Terminal session created", "id", id, "origin", opts.Origin, "owner", opts.Owner, "dir", dir)
	return s.Info(), nil
}

// lookup resolves id and checks that the caller may use it.
func (m *Manager) lookup(id string, allowUser bool) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, tools.NewError(tools.KindSessionNotFound, false, "terminal session not found: %s", id)
	}
	if s.Origin == OriginUser && !allowUser {
		return nil, tools.NewError(tools.KindPermissionDenied, false, "terminal session %s was opened by the user and is not available to the agent", id)
	}
	return s, nil
}

// withSession runs fn holding the session's operation lock. The context
// passed to fn is cancelled when the session closes.
func (m *Manager) withSession(ctx context.Context, id string, allowUser bool, fn func(ctx context.Context, s *Session) error) error {
	s, err := m.lookup(id, allowUser)
	if err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return m.opError(s, err)
	}
	defer s.release()

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.closed:
			cancel()
		case <-opCtx.Done():
		}
	}()

	if err := fn(opCtx, s); err != nil {
		return m.opError(s, err)
	}
	return nil
}

func (m *Manager) opError(s *Session, err error) error {
	var te *tools.Error
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, errExited) {
		slog.Info("Terminal shell exited, closing session", "id", s.ID)
		if cerr := m.close(s); cerr != nil {
			slog.Warn("Terminal close after exit", "id", s.ID, "err", cerr)
		}
		return tools.NewError(tools.KindSessionClosed, false, "terminal session %s was closed (shell exited)", s.ID)
	}
	if s.IsClosed() || errors.Is(err, errClosed) {
		return tools.NewError(tools.KindSessionClosed, false, "terminal session %s was closed", s.ID)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &tools.Error{Kind: tools.KindExecutionFailed, Retryable: true, Err: err}
	}
	return tools.Failed(err)
}

// Execute writes command to the session. Output is collected with Read.
func (m *Manager) Execute(ctx context.Context, id, command string, allowUser bool) error {
	return m.withSession(ctx, id, allowUser, func(ctx context.Context, s *Session) error {
		if reason := m.guard.Check(command, s.Dir); reason != "" {
			return tools.NewError(tools.KindPermissionDenied, false, "command blocked by safety guard (%s)", reason)
		}
		if err := m.host.Write(ctx, id, command+"\n"); err != nil {
			return err
		}
		s.recordCommand(command)
		return nil
	})
}

// Read returns output accumulated since the last read, waiting up to wait
// for the first output.
func (m *Manager) Read(ctx context.Context, id string, wait time.Duration, allowUser bool) (string, error) {
	var out string
	err := m.withSession(ctx, id, allowUser, func(ctx context.Context, s *Session) error {
		var err error
		out, err = m.host.Read(ctx, id, wait)
		s.touch()
		return err
	})
	return out, err
}

// Resize changes the session's window size.
func (m *Manager) Resize(ctx context.Context, id string, cols, rows int, allowUser bool) error {
	if cols <= 0 || rows <= 0 {
		return tools.InvalidArgs("invalid size %dx%d", cols, rows)
	}
	return m.withSession(ctx, id, allowUser, func(ctx context.Context, s *Session) error {
		return m.host.Resize(ctx, id, cols, rows)
	})
}

// SessionState is a full dump of one session.
type SessionState struct {
	Info
	History       []CommandRecord `json:"history"`
	PendingOutput string          `json:"pendingOutput"`
	Workspace     string          `json:"workspace"`
}

// Inspect returns the session's state without consuming its output.
func (m *Manager) Inspect(id string, allowUser bool) (SessionState, error) {
	s, err := m.lookup(id, allowUser)
	if err != nil {
		return SessionState{}, err
	}
	pending, err := m.host.Pending(id)
	if err != nil && !s.IsClosed() {
		return SessionState{}, tools.Failed(err)
	}
	ws := s.Dir
	if e, ok := m.registry.Lookup(id); ok {
		ws = e.Workspace
	}
	return SessionState{Info: s.Info(), History: s.History(), PendingOutput: pending, Workspace: ws}, nil
}

// List returns every open session, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		if !s.IsClosed() {
			out = append(out, s.Info())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Close tears down the session and removes its registry entry. Operations
// waiting on or running against the session fail with session_closed.
func (m *Manager) Close(id string, allowUser bool) error {
	s, err := m.lookup(id, allowUser)
	if err != nil {
		return err
	}
	return m.close(s)
}

func (m *Manager) close(s *Session) error {
	if !s.markClosed() {
		return nil
	}
	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	m.registry.Remove(s.ID)

	if err := m.host.Close(s.ID); err != nil && !errors.Is(err, errNoProcess) {
		slog.Warn("Terminal host close failed", "id", s.ID, "err", err)
		return tools.Failed(err)
	}
	slog.Info("Terminal session closed", "id", s.ID)
	return nil
}

// CloseByOwner closes every session created by owner and returns the closed
// ids. Each session is closed individually.
func (m *Manager) CloseByOwner(owner string) []string {
	var closed []string
	for _, e := range m.registry.ListByOwner(owner) {
		m.mu.RLock()
		s, ok := m.sessions[e.SessionID]
		m.mu.RUnlock()
		if !ok {
			m.registry.Remove(e.SessionID)
			continue
		}
		if err := m.close(s); err != nil {
			slog.Warn("Terminal owner cleanup", "owner", owner, "id", s.ID, "err", err)
		}
		closed = append(closed, s.ID)
	}
	return closed
}

// ReapIdle closes sessions with no activity for longer than maxIdle.
func (m *Manager) ReapIdle(maxIdle time.Duration) []string {
	cutoff := time.Now().Add(-maxIdle)
	m.mu.RLock()
	var idle []*Session
	for _, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	m.mu.RUnlock()

	ids := make([]string, 0, len(idle))
	for _, s := range idle {
		if err := m.close(s); err != nil {
			slog.Warn("Terminal reaper close failed", "id", s.ID, "err", err)
		}
		ids = append(ids, s.ID)
	}
	if len(ids) > 0 {
		slog.Info("Terminal reaper closed idle sessions", "count", len(ids))
	}
	return ids
}

// ScheduleReaper registers the idle reaper with svc.
func (m *Manager) ScheduleReaper(svc *cron.Service, every, maxIdle time.Duration) error {
	if maxIdle <= 0 {
		return nil
	}
	return svc.Every(reaperJobID, every, func() { m.ReapIdle(maxIdle) })
}

// Shutdown closes every session and tears the registry down.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()
	for _, s := range all {
		_ = m.close(s)
	}
	if left := m.registry.Teardown(); len(left) > 0 {
		slog.Debug("Terminal registry teardown", "stale", len(left))
	}
}
