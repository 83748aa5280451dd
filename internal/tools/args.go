package tools

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Args is a tool call's argument map with typed accessors. JSON numbers
// arrive as float64; accessors accept the common encodings models produce.
type Args map[string]any

// String returns the string at key, or "".
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// RequireString returns the non-empty string at key or an invalid-arguments
// error.
func (a Args) RequireString(key string) (string, error) {
	s := strings.TrimSpace(a.String(key))
	if s == "" {
		return "", InvalidArgs("%s is required", key)
	}
	return a.String(key), nil
}

// Int returns the integer at key, or def when absent or unparseable.
func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

// Bool returns the boolean at key, or def.
func (a Args) Bool(key string, def bool) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Strings returns the string list at key. A single comma-separated string is
// split as well.
func (a Args) Strings(key string) []string {
	var out []string
	switch v := a[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case []string:
		for _, s := range v {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			if strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	}
	return out
}

// Objects returns the list of objects at key. A JSON-encoded string is
// decoded first, since some models stringify nested arguments.
func (a Args) Objects(key string) ([]map[string]any, error) {
	raw := a[key]
	if s, ok := raw.(string); ok {
		var decoded []any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, InvalidArgs("%s must be a list of objects: %v", key, err)
		}
		raw = decoded
	}
	list, ok := raw.([]any)
	if !ok {
		if raw == nil {
			return nil, nil
		}
		return nil, InvalidArgs("%s must be a list of objects, got %T", key, raw)
	}
	out := make([]map[string]any, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, InvalidArgs("%s[%d] must be an object", key, i)
		}
		out = append(out, m)
	}
	return out, nil
}
