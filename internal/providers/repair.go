package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseArguments decodes a tool-call argument string. Some models emit
// truncated or trailing-garbage JSON, so a few conservative repairs are tried
// before giving up.
func parseArguments(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return map[string]any{}, nil
	}

	candidates := []string{raw}
	// Unterminated object: trim dangling closers and whitespace, close once.
	trimmed := strings.TrimRight(raw, " \t\r\n}]")
	if !strings.HasSuffix(trimmed, "}") {
		candidates = append(candidates, trimmed+"}")
	}
	// Trailing garbage after a complete object.
	if i := strings.LastIndex(raw, "}"); i >= 0 && i < len(raw)-1 {
		candidates = append(candidates, raw[:i+1])
	}

	for _, c := range candidates {
		var out map[string]any
		if err := json.Unmarshal([]byte(c), &out); err == nil && out != nil {
			return out, nil
		}
	}
	return map[string]any{}, fmt.Errorf("cannot repair tool arguments: %.200s", raw)
}

// encodeArguments renders args as the JSON text OpenAI expects.
func encodeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
