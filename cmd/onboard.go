package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tidewire/internal/config"
)

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize configuration and workspace",
	RunE:  runOnboard,
}

func runOnboard(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	cfg := config.DefaultConfig()
	if _, err := os.Stat(cfgPath); err == nil {
		existing, loadErr := config.Load(cfgPath)
		if loadErr == nil {
			cfg = *existing
		}
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Config refreshed at %s (existing values kept)\n", cfgPath)
	} else {
		if err := config.Save(&cfg, cfgPath); err != nil {
			return err
		}
		fmt.Printf("✓ Created config at %s\n", cfgPath)
	}

	workspace := cfg.WorkspacePath()
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	fmt.Printf("✓ Workspace at %s\n", workspace)

	createWorkspaceTemplates(workspace)
	createProfilesTemplate(config.ProfilesPath())

	fmt.Printf("\n%s tidewire is ready!\n\n", logo)
	fmt.Println("Next steps:")
	fmt.Println("  1. Store an API key: tidewire keys set anthropic")
	fmt.Println("     (or add it under providers in the config file)")
	fmt.Printf("  2. Chat: tidewire agent -m \"Hello!\"\n")
	return nil
}

func createWorkspaceTemplates(workspace string) {
	templates := map[string]string{
		"AGENTS.md": `# Agent Instructions

You are a helpful assistant with tools for files, terminals, workflows and the web.

## Guidelines

- Say what you are about to do before running commands
- Prefer reading a file before editing it
- Close terminal sessions you no longer need
- Ask for clarification when the request is ambiguous
`,
		"USER.md": `# User

Information about the user goes here.

## Preferences

- Communication style: (casual/formal)
- Timezone: (your timezone)
`,
		"TOOLS.md": `# Tool Notes

Project-specific hints for tool use go here (build commands, test commands, paths to avoid).
`,
	}

	for filename, content := range templates {
		p := filepath.Join(workspace, filename)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			_ = os.WriteFile(p, []byte(content), 0o644)
			fmt.Printf("  Created %s\n", filename)
		}
	}
	_ = os.MkdirAll(filepath.Join(workspace, "sessions"), 0o755)
}

func createProfilesTemplate(path string) {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return
	}
	const tmpl = `# Extra provider profiles. Each entry speaks one of the wire formats:
# openai, anthropic or google.
profiles: []
#  - id: local
#    wire: openai
#    baseEndpoint: http://localhost:11434/v1
#    defaultModel: llama3
`
	if err := os.WriteFile(path, []byte(tmpl), 0o644); err == nil {
		fmt.Printf("  Created %s\n", path)
	}
}
