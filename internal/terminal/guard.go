package terminal

import (
	"path/filepath"
	"regexp"
	"strings"
)

var denyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+-[rf]{1,2}\b`),
	regexp.MustCompile(`(?i)\bdel\s+/[fq]\b`),
	regexp.MustCompile(`(?i)\brmdir\s+/s\b`),
	regexp.MustCompile(`(?i)(?:^|[;&|]\s*)format\b`),
	regexp.MustCompile(`(?i)\b(mkfs|diskpart)\b`),
	regexp.MustCompile(`(?i)\bdd\s+if=`),
	regexp.MustCompile(`(?i)>\s*/dev/sd`),
	regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff)\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\};\s*:`), // fork bomb
}

var absolutePathRE = regexp.MustCompile(`(?:^|[\s|>])(/[^\s"'>]+)`)

// Guard rejects destructive commands and, when confined, commands that reach
// outside the session directory.
type Guard struct {
	Confine bool
}

// Check returns a non-empty reason when command must not run in dir.
func (g Guard) Check(command, dir string) string {
	lower := strings.ToLower(strings.TrimSpace(command))
	for _, p := range denyPatterns {
		if p.MatchString(lower) {
			return "dangerous pattern detected"
		}
	}
	if !g.Confine || dir == "" {
		return ""
	}

	if strings.Contains(command, `..\`) || strings.Contains(command, "../") {
		return "path traversal detected"
	}
	root := evalPath(dir)
	for _, m := range absolutePathRE.FindAllStringSubmatch(command, -1) {
		p := evalPath(strings.TrimSpace(m[1]))
		if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
			return "path outside working dir"
		}
	}
	return ""
}

func evalPath(p string) string {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r
	}
	return filepath.Clean(p)
}
