package llmutils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

func TestStripThink(t *testing.T) {
	assert.Equal(t, "answer", StripThink("<think>plan\nmore</think>\nanswer"))
	assert.Equal(t, "plain", StripThink("plain"))
}

func TestToolHint(t *testing.T) {
	hint := ToolHint([]schema.ToolCall{
		{Name: "web_search", Arguments: map[string]any{"query": "weather in London", "count": 3.0}},
		{Name: "list_terminals"},
		{Name: "read_output", Arguments: map[string]any{"session_id": "term_1", "after": "z"}},
	})
	assert.Equal(t, `web_search("weather in London"), list_terminals, read_output("z")`, hint)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "x", StringOrDefault("", "x"))
}
