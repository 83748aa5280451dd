package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCreatedFiles(t *testing.T) {
	cases := map[string][]string{
		"echo hi > out.txt":                       {"out.txt"},
		"date >> log/today.log":                   {"log/today.log"},
		"curl -o page.html https://example.com":   {"page.html"},
		"go build --output=bin/app ./cmd":         {"bin/app"},
		"touch a.txt b.txt && ls":                 {"a.txt", "b.txt"},
		"make 2>/dev/null":                        nil,
		"cmd > /dev/null 2>&1":                    nil,
		"ls -la":                                  nil,
		"echo x > 'quoted.txt'; touch -c new.txt": {"quoted.txt", "new.txt"},
	}
	for cmd, want := range cases {
		assert.Equal(t, want, DetectCreatedFiles(cmd), cmd)
	}
}
