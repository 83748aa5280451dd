// Package session persists conversation transcripts as JSONL files.
//
// File format:
//
//	Line 1:  {"_type":"metadata","key":"…","created_at":"…","updated_at":"…","metadata":{…}}
//	Line 2+: one JSON turn object per line
package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

const maxLineSize = 4 << 20

// Manager loads and persists sessions as JSONL files.
type Manager struct {
	dir   string
	cache sync.Map // key → *Session
}

// NewManager creates a Manager storing transcripts under dir.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Manager{dir: dir}, nil
}

func (m *Manager) Dir() string { return m.dir }

// GetOrCreate returns the cached session for key, loading it from disk if
// needed, or a new empty one.
func (m *Manager) GetOrCreate(key string) *Session {
	if v, ok := m.cache.Load(key); ok {
		return v.(*Session)
	}
	s, err := m.load(key)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Session load failed", "key", key, "err", err)
		}
		s = newSession(key)
	}
	actual, _ := m.cache.LoadOrStore(key, s)
	return actual.(*Session)
}

// Save writes the session to disk and updates the cache.
func (m *Manager) Save(s *Session) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	s.mu.Lock()
	turns := s.History.Clone().Turns
	meta := wireMeta{
		Type:      metaType,
		Key:       s.Key,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
		Metadata:  s.Metadata,
	}
	s.mu.Unlock()

	if err := enc.Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	stamp := time.Now().UTC().Format(time.RFC3339)
	for _, t := range turns {
		if err := enc.Encode(turnToWire(t, stamp)); err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
	}

	path := m.sessionPath(s.Key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write session %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write session %s: %w", path, err)
	}
	m.cache.Store(s.Key, s)
	return nil
}

// Invalidate removes a session from the in-memory cache.
func (m *Manager) Invalidate(key string) {
	m.cache.Delete(key)
}

// Delete removes the session from disk and the cache.
func (m *Manager) Delete(key string) (bool, error) {
	m.cache.Delete(key)
	err := os.Remove(m.sessionPath(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", key, err)
	}
	return true, nil
}

// Summary describes one stored session.
type Summary struct {
	Key       string `json:"key"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
	Path      string `json:"path"`
}

// ListSessions returns every stored session, newest first.
func (m *Manager) ListSessions() []Summary {
	paths, _ := filepath.Glob(filepath.Join(m.dir, "*.jsonl"))
	var out []Summary
	for _, path := range paths {
		meta, err := readMeta(path)
		if err != nil {
			continue
		}
		key := meta.Key
		if key == "" {
			key = strings.Replace(strings.TrimSuffix(filepath.Base(path), ".jsonl"), "_", ":", 1)
		}
		out = append(out, Summary{Key: key, CreatedAt: meta.CreatedAt, UpdatedAt: meta.UpdatedAt, Path: path})
	}
	// RFC 3339 UTC timestamps sort lexically.
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out
}

// SearchMessages returns user and assistant turns whose content contains
// query, case-insensitively, newest session first.
func (m *Manager) SearchMessages(ctx context.Context, query string, limit int) ([]schema.MessageHit, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 20
	}

	var hits []schema.MessageHit
	for _, sum := range m.ListSessions() {
		if err := ctx.Err(); err != nil {
			return hits, err
		}
		err := scanTurns(sum.Path, func(w wireTurn) bool {
			if w.Role != string(schema.RoleUser) && w.Role != string(schema.RoleAssistant) {
				return true
			}
			if w.Content == nil || !strings.Contains(strings.ToLower(*w.Content), query) {
				return true
			}
			ts, _ := time.Parse(time.RFC3339, w.Timestamp)
			hits = append(hits, schema.MessageHit{
				SessionKey: sum.Key,
				Role:       w.Role,
				Content:    *w.Content,
				Timestamp:  ts,
			})
			return len(hits) < limit
		})
		if err != nil {
			slog.Warn("Session search skipped file", "path", sum.Path, "err", err)
		}
		if len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

// ---------------------------------------------------------------------------
// Wire format

const metaType = "metadata"

type wireMeta struct {
	Type      string         `json:"_type"`
	Key       string         `json:"key"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Metadata  map[string]any `json:"metadata"`
}

type wireToolCall struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Arguments      map[string]any `json:"arguments"`
	ReasoningToken string         `json:"reasoning_token,omitempty"`
}

type wireTurn struct {
	Type             string         `json:"_type,omitempty"`
	Role             string         `json:"role"`
	Content          *string        `json:"content"`
	ToolCalls        []wireToolCall `json:"tool_calls,omitempty"`
	ToolCallID       string         `json:"tool_call_id,omitempty"`
	Name             string         `json:"name,omitempty"`
	ReasoningContent *string        `json:"reasoning_content,omitempty"`
	ReasoningToken   string         `json:"reasoning_token,omitempty"`
	Images           []schema.Image `json:"images,omitempty"`
	Timestamp        string         `json:"timestamp"`
}

func turnToWire(t schema.ConversationTurn, stamp string) wireTurn {
	w := wireTurn{
		Role:             string(t.Role),
		Content:          t.Content,
		ToolCallID:       t.ToolCallID,
		Name:             t.ToolName,
		ReasoningContent: t.Reasoning,
		ReasoningToken:   t.ReasoningToken,
		Images:           t.Images,
		Timestamp:        stamp,
	}
	for _, tc := range t.ToolCalls {
		w.ToolCalls = append(w.ToolCalls, wireToolCall(tc))
	}
	return w
}

func wireToTurn(w wireTurn) schema.ConversationTurn {
	t := schema.ConversationTurn{
		Role:           schema.Role(w.Role),
		Content:        w.Content,
		ToolCallID:     w.ToolCallID,
		ToolName:       w.Name,
		Reasoning:      w.ReasoningContent,
		ReasoningToken: w.ReasoningToken,
		Images:         w.Images,
	}
	for _, tc := range w.ToolCalls {
		t.ToolCalls = append(t.ToolCalls, schema.ToolCall(tc))
	}
	if t.Role == schema.RoleAssistant {
		t.Complete = true
	}
	return t
}

// ---------------------------------------------------------------------------
// Internal helpers

// sessionPath converts a session key to its JSONL file path.
func (m *Manager) sessionPath(key string) string {
	name := safeFilename(strings.ReplaceAll(key, ":", "_"))
	return filepath.Join(m.dir, name+".jsonl")
}

// safeFilename replaces filesystem-unsafe characters with underscores.
func safeFilename(name string) string {
	const unsafe = `<>:"/\|?*`
	var b strings.Builder
	for _, r := range name {
		if strings.ContainsRune(unsafe, r) {
			b.WriteByte('_')
		} else {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func readMeta(path string) (wireMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return wireMeta{}, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	if !sc.Scan() {
		return wireMeta{}, fmt.Errorf("empty session file")
	}
	var meta wireMeta
	if err := json.Unmarshal(sc.Bytes(), &meta); err != nil {
		return wireMeta{}, err
	}
	if meta.Type != metaType {
		return wireMeta{}, fmt.Errorf("missing metadata line")
	}
	return meta, nil
}

// scanTurns calls fn for each turn line in path until fn returns false.
// Malformed lines are skipped.
func scanTurns(path string, fn func(wireTurn) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var w wireTurn
		if err := json.Unmarshal(line, &w); err != nil {
			slog.Warn("Skipping malformed session line", "path", path, "err", err)
			continue
		}
		if w.Type == metaType {
			continue
		}
		if !fn(w) {
			return nil
		}
	}
	return sc.Err()
}

func (m *Manager) load(key string) (*Session, error) {
	path := m.sessionPath(key)
	meta, err := readMeta(path)
	if err != nil {
		return nil, err
	}
	s := newSession(key)
	if t, err := time.Parse(time.RFC3339, meta.CreatedAt); err == nil {
		s.CreatedAt = t
	}
	if meta.Metadata != nil {
		s.Metadata = meta.Metadata
	}
	err = scanTurns(path, func(w wireTurn) bool {
		s.History.Add(wireToTurn(w))
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", key, err)
	}
	return s, nil
}
