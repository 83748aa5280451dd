// Package cmd implements the tidewire CLI using cobra.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tidewire/internal/config"
	"github.com/crystaldolphin/tidewire/internal/dependency"
)

const version = "0.1.0"
const logo = "🌊"

var showLogs bool

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "tidewire",
	Short: logo + " tidewire: one agent runtime, many model providers",
	Long:  logo + " tidewire drives tool-using agents against OpenAI, Anthropic and Google style APIs",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if showLogs {
			level = slog.LevelInfo
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	SilenceUsage: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version
	rootCmd.PersistentFlags().BoolVar(&showLogs, "logs", false, "Show runtime logs")

	rootCmd.AddCommand(onboardCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(terminalCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(workflowCmd)
}

// loadContainer reads the config file and wires the core services.
func loadContainer() (*dependency.Container, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return dependency.New(cfg, dependency.Options{Version: version})
}
