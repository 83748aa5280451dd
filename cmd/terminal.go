package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tidewire/internal/terminal"
	"github.com/crystaldolphin/tidewire/internal/tools"
)

var terminalCmd = &cobra.Command{
	Use:   "terminal",
	Short: "Run commands through a managed terminal session",
}

func init() {
	terminalCmd.AddCommand(terminalExecCmd)
	terminalCmd.AddCommand(terminalShellCmd)
}

// ---- exec ------------------------------------------------------------------

var (
	terminalDir  string
	terminalWait time.Duration
)

var terminalExecCmd = &cobra.Command{
	Use:   "exec <command>",
	Short: "Run one command in a fresh session and print its output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := container.Terminals()
		info, err := m.Create(ctx, terminal.CreateOptions{Origin: terminal.OriginUser, Owner: "cli", Dir: terminalDir})
		if err != nil {
			return err
		}
		defer m.Close(info.ID, true)

		if err := m.Execute(ctx, info.ID, strings.Join(args, " "), true); err != nil {
			return err
		}
		return drain(ctx, m, info.ID)
	},
}

// ---- shell -----------------------------------------------------------------

var terminalShellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Open an interactive line-based session",
	RunE: func(_ *cobra.Command, _ []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		m := container.Terminals()
		info, err := m.Create(ctx, terminal.CreateOptions{Origin: terminal.OriginUser, Owner: "cli", Dir: terminalDir})
		if err != nil {
			return err
		}
		defer m.Close(info.ID, true)
		fmt.Printf("%s Session %s in %s (type 'exit' to quit)\n\n", logo, info.ID, info.Dir)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("$ ")
			if !scanner.Scan() || ctx.Err() != nil {
				fmt.Println()
				return nil
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if exitCommands[strings.ToLower(line)] {
				return nil
			}
			err := m.Execute(ctx, info.ID, line, true)
			if err == nil {
				err = drain(ctx, m, info.ID)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				if kind, _ := tools.Classify(err); kind == tools.KindSessionClosed {
					return nil
				}
			}
		}
	},
}

func init() {
	terminalCmd.PersistentFlags().StringVarP(&terminalDir, "dir", "C", "", "Working directory (default: workspace)")
	terminalCmd.PersistentFlags().DurationVar(&terminalWait, "wait", 2*time.Second, "How long to wait for output")
}

// drain prints output until the session goes quiet.
func drain(ctx context.Context, m *terminal.Manager, id string) error {
	wait := terminalWait
	for {
		out, err := m.Read(ctx, id, wait, true)
		if err != nil {
			return err
		}
		if out == "" {
			return nil
		}
		fmt.Print(out)
		wait = 300 * time.Millisecond
	}
}
