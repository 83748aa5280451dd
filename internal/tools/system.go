package tools

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/crystaldolphin/tidewire/internal/schema"
)

// SystemSet returns the system information family. now is injectable for
// tests; nil means time.Now.
func SystemSet(version string, now func() time.Time) *Set {
	if now == nil {
		now = time.Now
	}
	return NewSet("system",
		Func{
			Def: def("get_system_info", "Describe the host: OS, architecture, CPU count, hostname and runtime version.", nil),
			Fn: func(ctx context.Context, _ Args) (Output, error) {
				host, _ := os.Hostname()
				home, _ := os.UserHomeDir()
				lines := []string{
					"os: " + runtime.GOOS,
					"arch: " + runtime.GOARCH,
					fmt.Sprintf("cpus: %d", runtime.NumCPU()),
					"hostname: " + host,
					"home: " + home,
					"go: " + runtime.Version(),
				}
				if version != "" {
					lines = append(lines, "tidewire: "+version)
				}
				if ws := ScopeFrom(ctx).Workspace; ws != "" {
					lines = append(lines, "workspace: "+ws)
				}
				return Text(strings.Join(lines, "\n")), nil
			},
		},
		Func{
			Def: def("get_current_time", "Get the current date and time.", nil,
				schema.Param("timezone", schema.TypeString, "IANA timezone, e.g. Europe/Berlin (default: local)"),
			),
			Fn: func(_ context.Context, args Args) (Output, error) {
				t := now()
				if tz := args.String("timezone"); tz != "" {
					loc, err := time.LoadLocation(tz)
					if err != nil {
						return Output{}, InvalidArgs("unknown timezone %q", tz)
					}
					t = t.In(loc)
				}
				return Output{
					Text:     t.Format("Monday, 2006-01-02 15:04:05 MST"),
					Metadata: map[string]any{"iso": t.Format(time.RFC3339), "unix": t.Unix()},
				}, nil
			},
		},
	)
}
