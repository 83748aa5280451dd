package terminal

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeHost echoes written input back as output and counts close calls.
type fakeHost struct {
	mu        sync.Mutex
	writes    map[string][]string
	pending   map[string]string
	closes    map[string]int
	exited    map[string]bool
	blockRead bool
	reading   chan struct{}
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		writes:  make(map[string][]string),
		pending: make(map[string]string),
		closes:  make(map[string]int),
		exited:  make(map[string]bool),
		reading: make(chan struct{}, 16),
	}
}

func (h *fakeHost) Create(_ context.Context, id, _ string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writes[id] = nil
	return nil
}

func (h *fakeHost) Write(_ context.Context, id, data string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.exited[id] {
		return fmt.Errorf("shell for %s: %w", id, errExited)
	}
	h.writes[id] = append(h.writes[id], data)
	h.pending[id] += data
	return nil
}

func (h *fakeHost) Read(ctx context.Context, id string, _ time.Duration) (string, error) {
	h.mu.Lock()
	block := h.blockRead
	h.mu.Unlock()
	if block {
		h.reading <- struct{}{}
		<-ctx.Done()
		return "", ctx.Err()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := h.pending[id]
	h.pending[id] = ""
	return out, nil
}

func (h *fakeHost) Pending(id string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pending[id], nil
}

func (h *fakeHost) Resize(context.Context, string, int, int) error { return nil }

func (h *fakeHost) Close(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes[id]++
	return nil
}

func (h *fakeHost) writesTo(id string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writes[id]...)
}

func (h *fakeHost) closeCount(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closes[id]
}

func (h *fakeHost) exit(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exited[id] = true
}
