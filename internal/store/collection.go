// Package store persists the assistant's simple CRUD collections (workflows,
// memories, bookmarks) as JSON files, and backups as tar.gz archives.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Collection is a JSON-file backed list of records keyed by id. Every
// mutation rewrites the file.
type Collection[T any] struct {
	mu    sync.RWMutex
	path  string
	idOf  func(T) string
	items []T
}

// OpenCollection loads path, treating a missing file as empty.
func OpenCollection[T any](path string, idOf func(T) string) (*Collection[T], error) {
	c := &Collection[T]{path: path, idOf: idOf}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.items); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return c, nil
}

// List returns a snapshot of all records in insertion order.
func (c *Collection[T]) List() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

// Put inserts item or replaces the record with the same id.
func (c *Collection[T]) Put(item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(c.idOf(item)); i >= 0 {
		c.items[i] = item
	} else {
		c.items = append(c.items, item)
	}
	return c.saveLocked()
}

// Delete removes the record with id and reports whether it existed.
func (c *Collection[T]) Delete(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true, c.saveLocked()
}

func (c *Collection[T]) indexLocked(id string) int {
	for i, item := range c.items {
		if c.idOf(item) == id {
			return i
		}
	}
	return -1
}

// saveLocked writes through a temp file so a crash never leaves a torn file.
func (c *Collection[T]) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}
	items := c.items
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(c.path), err)
	}
	data = append(data, '\n')

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("replace %s: %w", c.path, err)
	}
	return nil
}
