package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// WorkflowStep is one tool invocation inside a workflow.
type WorkflowStep struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Steps       []WorkflowStep `json:"steps"`
	Schedule    string         `json:"schedule,omitempty"` // 5-field cron expression
	Timezone    string         `json:"timezone,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	LastRunAt   *time.Time     `json:"lastRunAt,omitempty"`
	LastStatus  string         `json:"lastStatus,omitempty"`
}

type Memory struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Bookmark struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewID returns a short random record id.
func NewID() string {
	return uuid.NewString()[:8]
}

// Stores groups every collection under one data directory.
type Stores struct {
	Workflows *Collection[Workflow]
	Memories  *Collection[Memory]
	Bookmarks *Collection[Bookmark]
	Backups   *BackupStore
}

// Open opens (or creates on first write) all collections under dir.
func Open(dir string) (*Stores, error) {
	workflows, err := OpenCollection(filepath.Join(dir, "workflows.json"), func(w Workflow) string { return w.ID })
	if err != nil {
		return nil, fmt.Errorf("open workflows: %w", err)
	}
	memories, err := OpenCollection(filepath.Join(dir, "memories.json"), func(m Memory) string { return m.ID })
	if err != nil {
		return nil, fmt.Errorf("open memories: %w", err)
	}
	bookmarks, err := OpenCollection(filepath.Join(dir, "bookmarks.json"), func(b Bookmark) string { return b.ID })
	if err != nil {
		return nil, fmt.Errorf("open bookmarks: %w", err)
	}
	return &Stores{
		Workflows: workflows,
		Memories:  memories,
		Bookmarks: bookmarks,
		Backups:   NewBackupStore(filepath.Join(dir, "backups")),
	}, nil
}
