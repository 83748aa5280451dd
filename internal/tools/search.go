package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// MessageSearcher searches stored conversation transcripts.
type MessageSearcher interface {
	SearchMessages(ctx context.Context, query string, limit int) ([]schema.MessageHit, error)
}

// SearchMessagesTool finds earlier conversation messages containing a query.
type SearchMessagesTool struct {
	searcher MessageSearcher
}

func NewSearchMessagesTool(s MessageSearcher) *SearchMessagesTool {
	return &SearchMessagesTool{searcher: s}
}

func (t *SearchMessagesTool) Definition() schema.ToolDefinition {
	return def(ToolSearchMessages, "Search earlier conversations for messages containing the query.", []string{"query"},
		schema.Param("query", schema.TypeString, "Text to look for (case-insensitive)"),
		schema.Param("limit", schema.TypeInteger, "Maximum hits (default 10)"),
	)
}

func (t *SearchMessagesTool) Execute(ctx context.Context, args Args) (Output, error) {
	if t.searcher == nil {
		return Output{}, NewError(KindUnavailable, false, "message history is not available")
	}
	query, err := args.RequireString("query")
	if err != nil {
		return Output{}, err
	}
	limit := min(max(args.Int("limit", 10), 1), 100)

	hits, err := t.searcher.SearchMessages(ctx, query, limit)
	if err != nil {
		return Output{}, Failed(fmt.Errorf("search messages: %w", err))
	}
	if len(hits) == 0 {
		return Textf("No messages match %q", query), nil
	}

	var sb strings.Builder
	for _, h := range hits {
		ts := ""
		if !h.Timestamp.IsZero() {
			ts = h.Timestamp.Local().Format(time.DateTime) + " "
		}
		fmt.Fprintf(&sb, "%s[%s] %s: %s\n", ts, h.SessionKey, h.Role, truncate(strings.TrimSpace(h.Content), 300))
	}
	return Output{Text: strings.TrimRight(sb.String(), "\n"), Metadata: map[string]any{"matches": len(hits)}}, nil
}
