// Package terminal provides persistent command sessions and the tool family
// that drives them.
package terminal

import (
	"context"
	"sync"
	"time"
)

// State is a session's lifecycle state. Transitions only move forward:
// created → active → closed.
type State string

const (
	StateCreated State = "created"
	StateActive  State = "active"
	StateClosed  State = "closed"
)

// Origin records who created a session.
type Origin string

const (
	OriginUser  Origin = "user"
	OriginAgent Origin = "agent"
)

// CommandRecord is one command written to a session.
type CommandRecord struct {
	Command string    `json:"command"`
	At      time.Time `json:"at"`
}

// Session is one persistent command session.
type Session struct {
	ID        string
	Origin    Origin
	Owner     string
	Dir       string
	CreatedAt time.Time

	// lock is the per-session operation semaphore.
	lock   chan struct{}
	closed chan struct{}
	once   sync.Once

	mu           sync.Mutex
	state        State
	history      []CommandRecord
	lastActivity time.Time
}

func newSession(id string, origin Origin, owner, dir string) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		Origin:       origin,
		Owner:        owner,
		Dir:          dir,
		CreatedAt:    now,
		lock:         make(chan struct{}, 1),
		closed:       make(chan struct{}),
		state:        StateCreated,
		lastActivity: now,
	}
}

// acquire takes the operation lock. It fails if ctx ends or the session is
// closed while waiting.
func (s *Session) acquire(ctx context.Context) error {
	select {
	case <-s.closed:
		return errClosed
	default:
	}
	select {
	case s.lock <- struct{}{}:
	case <-s.closed:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	if s.IsClosed() {
		s.release()
		return errClosed
	}
	return nil
}

func (s *Session) release() { <-s.lock }

// markClosed moves the session to closed and wakes every waiter. It reports
// whether this call performed the transition.
func (s *Session) markClosed() bool {
	first := false
	s.once.Do(func() {
		first = true
		s.mu.Lock()
		s.state = StateClosed
		s.lastActivity = time.Now()
		s.mu.Unlock()
		close(s.closed)
	})
	return first
}

func (s *Session) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) recordCommand(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.history = append(s.history, CommandRecord{Command: cmd, At: now})
	s.lastActivity = now
	if s.state == StateCreated {
		s.state = StateActive
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// Info is a point-in-time view of a session.
type Info struct {
	ID           string    `json:"id"`
	State        State     `json:"status"`
	Origin       Origin    `json:"origin"`
	Owner        string    `json:"owner,omitempty"`
	Dir          string    `json:"cwd,omitempty"`
	CommandCount int       `json:"commandCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:           s.ID,
		State:        s.state,
		Origin:       s.Origin,
		Owner:        s.Owner,
		Dir:          s.Dir,
		CommandCount: len(s.history),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
}

// History returns a copy of the command history.
func (s *Session) History() []CommandRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CommandRecord, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
