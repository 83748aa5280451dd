package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
	"github.com/crystaldolphin/tidewire/internal/store"
)

// MemorySet returns the memory family: durable notes the assistant keeps
// across conversations.
func MemorySet(memories *store.Collection[store.Memory]) *Set {
	m := memoryTools{store: memories}
	return NewSet("memory",
		Func{
			Def: def("save_memory", "Remember a fact or preference for future conversations.", []string{"content"},
				schema.Param("content", schema.TypeString, "The fact to remember, one or two sentences"),
				schema.ArrayParam("tags", schema.TypeString, "Optional tags"),
			),
			Fn: m.save,
		},
		Func{
			Def: def("list_memories", "List remembered facts, newest first.", nil,
				schema.Param("tag", schema.TypeString, "Only memories with this tag"),
				schema.Param("limit", schema.TypeInteger, "Maximum entries (default 50)"),
			),
			Fn: m.list,
		},
		Func{
			Def: def("delete_memory", "Forget a remembered fact.", []string{"id"},
				schema.Param("id", schema.TypeString, "Memory id"),
			),
			Fn: m.delete,
		},
	)
}

// SearchMemoryTool is the core search_memory tool.
func SearchMemoryTool(memories *store.Collection[store.Memory]) Tool {
	m := memoryTools{store: memories}
	return Func{
		Def: def(ToolSearchMemory, "Search remembered facts by text or tag.", []string{"query"},
			schema.Param("query", schema.TypeString, "Words to look for (case-insensitive)"),
			schema.Param("limit", schema.TypeInteger, "Maximum entries (default 20)"),
		),
		Fn: m.search,
	}
}

type memoryTools struct {
	store *store.Collection[store.Memory]
}

func (m memoryTools) save(_ context.Context, args Args) (Output, error) {
	content, err := args.RequireString("content")
	if err != nil {
		return Output{}, err
	}
	content = strings.TrimSpace(content)
	for _, existing := range m.store.List() {
		if strings.EqualFold(existing.Content, content) {
			return Output{
				Text:     "Already remembered (id: " + existing.ID + ")",
				Metadata: map[string]any{"memoryId": existing.ID},
			}, nil
		}
	}
	rec := store.Memory{
		ID:        store.NewID(),
		Content:   content,
		Tags:      args.Strings("tags"),
		CreatedAt: time.Now(),
	}
	if err := m.store.Put(rec); err != nil {
		return Output{}, Failed(err)
	}
	slog.Debug("Memory saved", "id", rec.ID)
	return Output{Text: "Remembered (id: " + rec.ID + ")", Metadata: map[string]any{"memoryId": rec.ID}}, nil
}

func (m memoryTools) list(_ context.Context, args Args) (Output, error) {
	tag := args.String("tag")
	limit := max(args.Int("limit", 50), 1)
	var picked []store.Memory
	for _, rec := range newestFirst(m.store.List()) {
		if tag != "" && !hasTag(rec.Tags, tag) {
			continue
		}
		picked = append(picked, rec)
		if len(picked) >= limit {
			break
		}
	}
	if len(picked) == 0 {
		return Text("No memories."), nil
	}
	return Text(formatMemories(picked)), nil
}

func (m memoryTools) search(_ context.Context, args Args) (Output, error) {
	query, err := args.RequireString("query")
	if err != nil {
		return Output{}, err
	}
	words := strings.Fields(strings.ToLower(query))
	limit := max(args.Int("limit", 20), 1)

	var hits []store.Memory
	for _, rec := range newestFirst(m.store.List()) {
		hay := strings.ToLower(rec.Content + " " + strings.Join(rec.Tags, " "))
		if containsAll(hay, words) {
			hits = append(hits, rec)
			if len(hits) >= limit {
				break
			}
		}
	}
	if len(hits) == 0 {
		return Textf("No memories match %q", query), nil
	}
	return Output{Text: formatMemories(hits), Metadata: map[string]any{"matches": len(hits)}}, nil
}

func (m memoryTools) delete(_ context.Context, args Args) (Output, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return Output{}, err
	}
	ok, err := m.store.Delete(id)
	if err != nil {
		return Output{}, Failed(err)
	}
	if !ok {
		return Output{}, NotFound("memory not found: %s", id)
	}
	return Textf("Forgot memory %s", id), nil
}

func newestFirst(all []store.Memory) []store.Memory {
	slices.SortStableFunc(all, func(a, b store.Memory) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return all
}

func formatMemories(recs []store.Memory) string {
	lines := make([]string, 0, len(recs))
	for _, rec := range recs {
		line := fmt.Sprintf("[%s] %s  %s", rec.ID, rec.CreatedAt.Format("2006-01-02"), rec.Content)
		if len(rec.Tags) > 0 {
			line += "  #" + strings.Join(rec.Tags, " #")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func hasTag(tags []string, tag string) bool {
	return slices.ContainsFunc(tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

func containsAll(hay string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(hay, w) {
			return false
		}
	}
	return true
}
