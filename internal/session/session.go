package session

import (
	"sync"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// Session holds one conversation's turns and metadata.
type Session struct {
	Key       string
	History   schema.History
	CreatedAt time.Time
	UpdatedAt time.Time
	Metadata  map[string]any

	mu sync.Mutex
}

func newSession(key string) *Session {
	now := time.Now()
	return &Session{
		Key:       key,
		History:   schema.NewHistory(),
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  map[string]any{},
	}
}

// Append adds turns to the session in order.
func (s *Session) Append(turns ...schema.ConversationTurn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range turns {
		s.History.Add(t)
	}
	s.UpdatedAt = time.Now()
}

func (s *Session) AddUser(content string) {
	s.Append(schema.NewUserTurn(content))
}

// Snapshot returns the last maxTurns turns, or all of them when maxTurns <= 0.
// The window never starts on a tool turn, whose call would be cut off.
func (s *Session) Snapshot(maxTurns int) schema.History {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.History.Turns
	if maxTurns > 0 && len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
		for len(turns) > 0 && turns[0].Role == schema.RoleTool {
			turns = turns[1:]
		}
	}
	return schema.NewHistory(turns...)
}

// Len returns the number of turns in the session.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.History.Len()
}

// Clear drops every turn.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.History = schema.NewHistory()
	s.UpdatedAt = time.Now()
}
