package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// Desktop performs user-visible actions on the host desktop.
type Desktop interface {
	Open(ctx context.Context, target string) error
	Notify(ctx context.Context, title, body string) error
}

// ExecDesktop implements Desktop with the platform's launcher commands
// (open, xdg-open, start) and notifiers (osascript, notify-send).
type ExecDesktop struct{}

func (ExecDesktop) Open(ctx context.Context, target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", "", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}
	return runLauncher(cmd)
}

func (ExecDesktop) Notify(ctx context.Context, title, body string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", strconv.Quote(body), strconv.Quote(title))
		cmd = exec.CommandContext(ctx, "osascript", "-e", script)
	case "linux":
		cmd = exec.CommandContext(ctx, "notify-send", title, body)
	default:
		return fmt.Errorf("notifications not supported on %s", runtime.GOOS)
	}
	return runLauncher(cmd)
}

func runLauncher(cmd *exec.Cmd) error {
	if out, err := cmd.CombinedOutput(); err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", cmd.Path, err, out)
		}
		return fmt.Errorf("%s: %w", cmd.Path, err)
	}
	return nil
}

// OSSet returns the os family.
func OSSet(desktop Desktop, workspace string, restrict bool) *Set {
	fs := fileAccess{workspace: workspace, restrict: restrict}
	unavailable := func(err error) error {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return NewError(KindUnavailable, false, "%v", err)
		}
		return Failed(err)
	}
	return NewSet("os",
		Func{
			Def: def("open_url", "Open a URL in the user's default browser.", []string{"url"},
				schema.Param("url", schema.TypeString, "http(s) URL"),
			),
			Fn: func(ctx context.Context, args Args) (Output, error) {
				u, err := args.RequireString("url")
				if err != nil {
					return Output{}, err
				}
				if err := validateURL(u); err != nil {
					return Output{}, InvalidArgs("invalid url: %v", err)
				}
				if err := desktop.Open(ctx, u); err != nil {
					return Output{}, unavailable(err)
				}
				return Textf("Opened %s", u), nil
			},
		},
		Func{
			Def: def("open_path", "Open a file or folder with its default application.", []string{"path"},
				schema.Param("path", schema.TypeString, "File or directory path"),
			),
			Fn: func(ctx context.Context, args Args) (Output, error) {
				p, err := args.RequireString("path")
				if err != nil {
					return Output{}, err
				}
				resolved, err := fs.resolve(ctx, p)
				if err != nil {
					return Output{}, err
				}
				if _, err := os.Stat(resolved); err != nil {
					return Output{}, NotFound("path not found: %s", p)
				}
				if err := desktop.Open(ctx, resolved); err != nil {
					return Output{}, unavailable(err)
				}
				return Output{Text: "Opened " + resolved, Files: []string{resolved}}, nil
			},
		},
		Func{
			Def: def("show_notification", "Show a desktop notification.", []string{"message"},
				schema.Param("title", schema.TypeString, "Notification title"),
				schema.Param("message", schema.TypeString, "Notification body"),
			),
			Fn: func(ctx context.Context, args Args) (Output, error) {
				msg, err := args.RequireString("message")
				if err != nil {
					return Output{}, err
				}
				title := args.String("title")
				if title == "" {
					title = "tidewire"
				}
				if err := desktop.Notify(ctx, title, msg); err != nil {
					return Output{}, unavailable(err)
				}
				return Text("Notification shown"), nil
			},
		},
	)
}
