package terminal

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// OriginEntry records who created a session and where it runs.
type OriginEntry struct {
	SessionID string    `json:"sessionId"`
	Origin    Origin    `json:"origin"`
	Owner     string    `json:"owner,omitempty"`
	Workspace string    `json:"workspace,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// OriginRegistry maps session ids to their origin metadata. It is shared by
// the session manager (writer) and observers (readers).
type OriginRegistry struct {
	mu      sync.RWMutex
	entries map[string]OriginEntry
}

func NewOriginRegistry() *OriginRegistry {
	return &OriginRegistry{entries: make(map[string]OriginEntry)}
}

// Register adds e. Ids are unique.
func (r *OriginRegistry) Register(e OriginEntry) error {
	if e.SessionID == "" {
		return fmt.Errorf("origin registry: empty session id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[e.SessionID]; exists {
		return fmt.Errorf("origin registry: session %s already registered", e.SessionID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	r.entries[e.SessionID] = e
	return nil
}

// Remove deletes id and reports whether it was present.
func (r *OriginRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

func (r *OriginRegistry) Lookup(id string) (OriginEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e, ok
}

// ListByOwner returns the entries created by owner, oldest first.
func (r *OriginRegistry) ListByOwner(owner string) []OriginEntry {
	r.mu.RLock()
	var out []OriginEntry
	for _, e := range r.entries {
		if e.Owner == owner {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()
	sortEntries(out)
	return out
}

// All returns every entry, oldest first.
func (r *OriginRegistry) All() []OriginEntry {
	r.mu.RLock()
	out := make([]OriginEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.RUnlock()
	sortEntries(out)
	return out
}

func (r *OriginRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Teardown empties the registry and returns what it held.
func (r *OriginRegistry) Teardown() []OriginEntry {
	r.mu.Lock()
	out := make([]OriginEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.entries = make(map[string]OriginEntry)
	r.mu.Unlock()
	sortEntries(out)
	return out
}

func sortEntries(es []OriginEntry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].CreatedAt.Equal(es[j].CreatedAt) {
			return es[i].SessionID < es[j].SessionID
		}
		return es[i].CreatedAt.Before(es[j].CreatedAt)
	})
}
