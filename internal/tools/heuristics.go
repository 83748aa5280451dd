package tools

import (
	"regexp"
	"strings"
)

var (
	reRedirect = regexp.MustCompile(`(?:^|[^0-9&<>])>>?\s*([^\s;|&<>]+)`)
	reOutFlag  = regexp.MustCompile(`(?:^|\s)(?:-o|--output)(?:\s+|=)([^\s;|&<>]+)`)
	reTouch    = regexp.MustCompile(`(?:^|[;&|]\s*|\s)touch\s+([^;|&<>]+)`)
)

// DetectCreatedFiles returns paths a shell command probably creates: targets
// of > and >> redirection, -o/--output flags and touch arguments.
//
// The result is advisory. Quoting, variables and subshells are not
// interpreted, and nothing is checked against the filesystem.
func DetectCreatedFiles(command string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = strings.Trim(p, `"'`)
		if p == "" || p == "/dev/null" || strings.HasPrefix(p, "&") || strings.HasPrefix(p, "-") || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	for _, m := range reRedirect.FindAllStringSubmatch(command, -1) {
		add(m[1])
	}
	for _, m := range reOutFlag.FindAllStringSubmatch(command, -1) {
		add(m[1])
	}
	for _, m := range reTouch.FindAllStringSubmatch(command, -1) {
		for _, f := range strings.Fields(m[1]) {
			add(f)
		}
	}
	return out
}
