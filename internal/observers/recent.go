// Package observers holds dispatch event consumers: the recent-files
// tracker, Prometheus metrics and the websocket event hub.
package observers

import (
	"slices"
	"sync"
	"time"

	"github.com/crystaldolphin/tidewire/internal/dispatch"
)

// RecentFile is one path touched by a tool call.
type RecentFile struct {
	Path    string    `json:"path"`
	Tool    string    `json:"tool"`
	Created bool      `json:"created"`
	At      time.Time `json:"at"`
}

// RecentFiles keeps the most recently touched paths, newest first, without
// duplicates.
type RecentFiles struct {
	limit int

	mu    sync.Mutex
	files []RecentFile
}

func NewRecentFiles(limit int) *RecentFiles {
	if limit <= 0 {
		limit = 50
	}
	return &RecentFiles{limit: limit}
}

func (r *RecentFiles) Observe(ev dispatch.Event) {
	if !ev.Success {
		return
	}
	for _, p := range ev.Files {
		r.add(RecentFile{Path: p, Tool: ev.Tool, At: ev.At})
	}
	for _, p := range ev.CreatedFiles {
		r.add(RecentFile{Path: p, Tool: ev.Tool, Created: true, At: ev.At})
	}
}

func (r *RecentFiles) add(f RecentFile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files = slices.DeleteFunc(r.files, func(e RecentFile) bool { return e.Path == f.Path })
	r.files = slices.Insert(r.files, 0, f)
	if len(r.files) > r.limit {
		r.files = r.files[:r.limit]
	}
}

// List returns up to n entries, newest first. n <= 0 returns all.
func (r *RecentFiles) List(n int) []RecentFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > len(r.files) {
		n = len(r.files)
	}
	return slices.Clone(r.files[:n])
}
