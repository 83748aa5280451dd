package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

const (
	maxReadBytes     = 256 * 1024
	maxSearchResults = 200
)

// fileAccess resolves paths against the call's workspace and optionally
// confines them to it.
type fileAccess struct {
	workspace string
	restrict  bool
}

func (f fileAccess) root(ctx context.Context) string {
	if ws := ScopeFrom(ctx).Workspace; ws != "" {
		return ws
	}
	return f.workspace
}

// resolve returns the absolute path for path. With restrict set, paths that
// escape the workspace are refused.
func (f fileAccess) resolve(ctx context.Context, path string) (string, error) {
	root := f.root(ctx)
	p := path
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	if !filepath.IsAbs(p) && root != "" {
		p = filepath.Join(root, p)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		// Path may not exist yet (for writes).
		resolved = filepath.Clean(p)
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	if f.restrict && root != "" && !withinDir(resolved, root) {
		return "", NewError(KindPermissionDenied, false, "path %s is outside the workspace %s", path, root)
	}
	return resolved, nil
}

// withinDir reports whether path is dir or below it.
func withinDir(path, dir string) bool {
	d, err := filepath.EvalSymlinks(dir)
	if err != nil {
		d = filepath.Clean(dir)
	}
	if abs, err := filepath.Abs(d); err == nil {
		d = abs
	}
	return path == d || strings.HasPrefix(path, d+string(filepath.Separator))
}

// ---------------------------------------------------------------------------
// ReadFileTool
// ---------------------------------------------------------------------------

// ReadFileTool reads a text file.
type ReadFileTool struct{ fileAccess }

func NewReadFileTool(workspace string, restrict bool) *ReadFileTool {
	return &ReadFileTool{fileAccess{workspace, restrict}}
}

func (t *ReadFileTool) Definition() schema.ToolDefinition {
	return def(ToolReadFile, "Read the contents of a file at the given path.", []string{"path"},
		schema.Param("path", schema.TypeString, "The file path to read"),
	)
}

func (t *ReadFileTool) Execute(ctx context.Context, args Args) (Output, error) {
	path, err := args.RequireString("path")
	if err != nil {
		return Output{}, err
	}
	fp, err := t.resolve(ctx, path)
	if err != nil {
		return Output{}, err
	}
	info, err := os.Stat(fp)
	if err != nil {
		return Output{}, NotFound("file not found: %s", path)
	}
	if !info.Mode().IsRegular() {
		return Output{}, InvalidArgs("not a file: %s", path)
	}
	data, err := os.ReadFile(fp)
	if err != nil {
		return Output{}, Failed(fmt.Errorf("read %s: %w", path, err))
	}
	text := string(data)
	if len(data) > maxReadBytes {
		text = string(data[:maxReadBytes]) + fmt.Sprintf("\n... (truncated, %d more bytes)", len(data)-maxReadBytes)
	}
	return Output{Text: text, Files: []string{fp}}, nil
}

// ---------------------------------------------------------------------------
// WriteFileTool
// ---------------------------------------------------------------------------

// WriteFileTool writes content to a file, creating parent directories as needed.
type WriteFileTool struct{ fileAccess }

func NewWriteFileTool(workspace string, restrict bool) *WriteFileTool {
	return &WriteFileTool{fileAccess{workspace, restrict}}
}

func (t *WriteFileTool) Definition() schema.ToolDefinition {
	return def(ToolWriteFile, "Write content to a file at the given path. Creates parent directories if needed.",
		[]string{"path", "content"},
		schema.Param("path", schema.TypeString, "The file path to write to"),
		schema.Param("content", schema.TypeString, "The content to write"),
		schema.Param("append", schema.TypeBoolean, "Append instead of overwriting"),
	)
}

func (t *WriteFileTool) Execute(ctx context.Context, args Args) (Output, error) {
	path, err := args.RequireString("path")
	if err != nil {
		return Output{}, err
	}
	content := args.String("content")
	fp, err := t.resolve(ctx, path)
	if err != nil {
		return Output{}, err
	}
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return Output{}, Failed(fmt.Errorf("create directories: %w", err))
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	verb := "wrote"
	if args.Bool("append", false) {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		verb = "appended"
	}
	f, err := os.OpenFile(fp, flags, 0o644)
	if err != nil {
		return Output{}, Failed(fmt.Errorf("open %s: %w", path, err))
	}
	_, werr := f.WriteString(content)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		return Output{}, Failed(fmt.Errorf("write %s: %w", path, firstErr(werr, cerr)))
	}
	return Output{Text: fmt.Sprintf("Successfully %s %d bytes to %s", verb, len(content), fp), Files: []string{fp}}, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// EditFileTool
// ---------------------------------------------------------------------------

// EditFileTool replaces one exact occurrence of old_text with new_text.
type EditFileTool struct{ fileAccess }

func NewEditFileTool(workspace string, restrict bool) *EditFileTool {
	return &EditFileTool{fileAccess{workspace, restrict}}
}

func (t *EditFileTool) Definition() schema.ToolDefinition {
	return def(ToolEditFile, "Edit a file by replacing old_text with new_text. The old_text must exist exactly once in the file.",
		[]string{"path", "old_text", "new_text"},
		schema.Param("path", schema.TypeString, "The file path to edit"),
		schema.Param("old_text", schema.TypeString, "The exact text to find and replace"),
		schema.Param("new_text", schema.TypeString, "The text to replace with"),
	)
}

func (t *EditFileTool) Execute(ctx context.Context, args Args) (Output, error) {
	path, err := args.RequireString("path")
	if err != nil {
		return Output{}, err
	}
	oldText, err := args.RequireString("old_text")
	if err != nil {
		return Output{}, err
	}
	newText := args.String("new_text")

	fp, err := t.resolve(ctx, path)
	if err != nil {
		return Output{}, err
	}
	data, err := os.ReadFile(fp)
	if err != nil {
		return Output{}, NotFound("file not found: %s", path)
	}
	content := string(data)

	switch count := strings.Count(content, oldText); {
	case count == 0:
		return Output{}, InvalidArgs("%s", editNotFoundMessage(oldText, content, path))
	case count > 1:
		return Output{}, InvalidArgs("old_text appears %d times in %s; provide more context to make it unique", count, path)
	}

	updated := strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(fp, []byte(updated), 0o644); err != nil {
		return Output{}, Failed(fmt.Errorf("write %s: %w", path, err))
	}
	return Output{Text: "Successfully edited " + fp, Files: []string{fp}}, nil
}

// editNotFoundMessage points at the closest matching window so the model can
// correct its old_text.
func editNotFoundMessage(oldText, content, path string) string {
	oldLines := strings.Split(oldText, "\n")
	lines := strings.Split(content, "\n")
	window := len(oldLines)
	if window > len(lines) {
		window = len(lines)
	}

	bestRatio, bestStart := 0.0, 0
	for i := 0; i+window <= len(lines); i++ {
		if r := similarity(oldLines, lines[i:i+window]); r > bestRatio {
			bestRatio, bestStart = r, i
		}
	}
	if bestRatio <= 0.5 {
		return fmt.Sprintf("old_text not found in %s and no similar text found", path)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "old_text not found in %s. Best match (%.0f%% similar) at line %d:\n", path, bestRatio*100, bestStart+1)
	for _, l := range lines[bestStart : bestStart+window] {
		sb.WriteString("  " + l + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// similarity is a character-multiset overlap ratio in [0,1].
func similarity(a, b []string) float64 {
	sa, sb := strings.Join(a, "\n"), strings.Join(b, "\n")
	if len(sa)+len(sb) == 0 {
		return 1
	}
	freq := make(map[rune]int)
	for _, r := range sa {
		freq[r]++
	}
	common := 0
	for _, r := range sb {
		if freq[r] > 0 {
			common++
			freq[r]--
		}
	}
	return 2 * float64(common) / float64(len([]rune(sa))+len([]rune(sb)))
}

// ---------------------------------------------------------------------------
// ListDirectoryTool
// ---------------------------------------------------------------------------

// ListDirectoryTool lists directory contents.
type ListDirectoryTool struct{ fileAccess }

func NewListDirectoryTool(workspace string, restrict bool) *ListDirectoryTool {
	return &ListDirectoryTool{fileAccess{workspace, restrict}}
}

func (t *ListDirectoryTool) Definition() schema.ToolDefinition {
	return def(ToolListDirectory, "List the contents of a directory.", []string{"path"},
		schema.Param("path", schema.TypeString, "The directory path to list"),
	)
}

func (t *ListDirectoryTool) Execute(ctx context.Context, args Args) (Output, error) {
	path := args.String("path")
	if path == "" {
		path = "."
	}
	dp, err := t.resolve(ctx, path)
	if err != nil {
		return Output{}, err
	}
	info, err := os.Stat(dp)
	if err != nil {
		return Output{}, NotFound("directory not found: %s", path)
	}
	if !info.IsDir() {
		return Output{}, InvalidArgs("not a directory: %s", path)
	}
	entries, err := os.ReadDir(dp)
	if err != nil {
		return Output{}, Failed(fmt.Errorf("list %s: %w", path, err))
	}
	if len(entries) == 0 {
		return Textf("Directory %s is empty", path), nil
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		prefix := "[F] "
		if e.IsDir() {
			prefix = "[D] "
		}
		lines = append(lines, prefix+e.Name())
	}
	return Output{Text: strings.Join(lines, "\n"), Files: []string{dp}}, nil
}

// ---------------------------------------------------------------------------
// SearchFilesTool
// ---------------------------------------------------------------------------

// SearchFilesTool finds files by name glob and, optionally, content substring.
type SearchFilesTool struct{ fileAccess }

func NewSearchFilesTool(workspace string, restrict bool) *SearchFilesTool {
	return &SearchFilesTool{fileAccess{workspace, restrict}}
}

func (t *SearchFilesTool) Definition() schema.ToolDefinition {
	return def(ToolSearchFiles, "Search for files under a directory by name pattern and optional text content.",
		[]string{"pattern"},
		schema.Param("pattern", schema.TypeString, "Glob matched against file names, e.g. *.go"),
		schema.Param("path", schema.TypeString, "Directory to search (default: workspace)"),
		schema.Param("contains", schema.TypeString, "Only report files containing this text; matching lines are shown"),
		schema.Param("max_results", schema.TypeInteger, "Maximum results (default 50)"),
	)
}

func (t *SearchFilesTool) Execute(ctx context.Context, args Args) (Output, error) {
	pattern, err := args.RequireString("pattern")
	if err != nil {
		return Output{}, err
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return Output{}, InvalidArgs("bad pattern %q: %v", pattern, err)
	}
	dir := args.String("path")
	if dir == "" {
		dir = "."
	}
	root, err := t.resolve(ctx, dir)
	if err != nil {
		return Output{}, err
	}
	contains := args.String("contains")
	limit := min(max(args.Int("max_results", 50), 1), maxSearchResults)

	var results []string
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if name := d.Name(); p != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		rel, _ := filepath.Rel(root, p)
		if contains == "" {
			results = append(results, rel)
		} else if hits := grepFile(p, contains, 3); len(hits) > 0 {
			results = append(results, rel+"\n"+strings.Join(hits, "\n"))
		}
		if len(results) >= limit {
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil && walkErr != fs.SkipAll {
		return Output{}, Failed(walkErr)
	}
	if len(results) == 0 {
		return Textf("No files matching %s under %s", pattern, dir), nil
	}
	return Output{Text: strings.Join(results, "\n"), Files: []string{root}}, nil
}

// grepFile returns up to n "  line: text" hits for needle in path.
func grepFile(path, needle string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var hits []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		if strings.Contains(sc.Text(), needle) {
			hits = append(hits, fmt.Sprintf("  %d: %s", line, strings.TrimSpace(sc.Text())))
			if len(hits) >= n {
				break
			}
		}
	}
	return hits
}
