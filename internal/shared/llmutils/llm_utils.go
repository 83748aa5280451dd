package llmutils

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

var reThink = regexp.MustCompile(`(?s)<think>.*?</think>`)

// Truncate shortens a string to at most n bytes, adding "..." if it was truncated.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// StripThink removes <think>…</think> blocks that some models embed.
func StripThink(s string) string {
	return strings.TrimSpace(reThink.ReplaceAllString(s, ""))
}

// StringOrDefault returns s if it's not empty, or def if s is empty.
func StringOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ToolHint generates a short hint string for a list of tool calls, e.g. `web_search("weather in London")`.
// The first string argument in key order is shown.
func ToolHint(calls []schema.ToolCall) string {
	parts := make([]string, 0, len(calls))
	for _, tc := range calls {
		var firstVal string
		for _, k := range slices.Sorted(maps.Keys(tc.Arguments)) {
			if s, ok := tc.Arguments[k].(string); ok && s != "" {
				firstVal = s
				break
			}
		}
		if firstVal == "" {
			parts = append(parts, tc.Name)
			continue
		}
		if len(firstVal) > 40 {
			firstVal = firstVal[:40] + "…"
		}
		parts = append(parts, fmt.Sprintf("%s(%q)", tc.Name, firstVal))
	}
	return strings.Join(parts, ", ")
}
