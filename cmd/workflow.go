package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tidewire/internal/shared/cmdutils"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Manage saved workflows",
}

func init() {
	workflowCmd.AddCommand(workflowListCmd)
	workflowCmd.AddCommand(workflowShowCmd)
	workflowCmd.AddCommand(workflowRunCmd)
	workflowCmd.AddCommand(workflowRemoveCmd)
}

// ---- list ------------------------------------------------------------------

var workflowListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved workflows",
	RunE: func(_ *cobra.Command, _ []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		wfs := container.Stores().Workflows.List()
		if len(wfs) == 0 {
			fmt.Println("No workflows.")
			return nil
		}
		fmt.Printf("%-10s %-20s %-6s %-16s %-20s\n", "ID", "Name", "Steps", "Schedule", "Last Run")
		fmt.Println(strings.Repeat("-", 76))
		for _, wf := range wfs {
			last := ""
			if wf.LastRunAt != nil {
				last = wf.LastRunAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%-10s %-20s %-6d %-16s %-20s\n", truncStr(wf.ID, 10), truncStr(wf.Name, 19), len(wf.Steps), truncStr(wf.Schedule, 15), last)
		}
		return nil
	},
}

// ---- show ------------------------------------------------------------------

var workflowShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a workflow as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		wf, ok := container.Stores().Workflows.Get(args[0])
		if !ok {
			return fmt.Errorf("workflow %s not found", args[0])
		}
		return cmdutils.PrintJSON(wf)
	},
}

// ---- run -------------------------------------------------------------------

var workflowRunCmd = &cobra.Command{
	Use:   "run <id-or-name>",
	Short: "Run a workflow now",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reports, err := container.Workflows().Run(ctx, args[0])
		if err != nil {
			return err
		}
		for i, r := range reports {
			mark := "✓"
			detail := r.Output
			if !r.Success {
				mark, detail = "✗", r.Error
			}
			fmt.Printf("%s %d. %s (%dms)\n", mark, i+1, r.Tool, r.DurationMs)
			if detail != "" {
				fmt.Printf("    %s\n", strings.ReplaceAll(truncStr(detail, 400), "\n", "\n    "))
			}
		}
		return nil
	},
}

// ---- remove ----------------------------------------------------------------

var workflowRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Delete a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		removed, err := container.Stores().Workflows.Delete(args[0])
		if err != nil {
			return err
		}
		if removed {
			fmt.Printf("✓ Removed workflow %s\n", args[0])
		} else {
			fmt.Printf("Workflow %s not found\n", args[0])
		}
		return nil
	},
}
