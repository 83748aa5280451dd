package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tidewire/internal/config"
	"github.com/crystaldolphin/tidewire/internal/keystore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tidewire status",
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, _ []string) error {
	cfgPath := config.ConfigPath()

	fmt.Printf("%s tidewire Status\n\n", logo)
	fmt.Printf("Config:    %s %s\n", cfgPath, mark(cfgPath))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}
	ws := cfg.WorkspacePath()
	fmt.Printf("Workspace: %s %s\n", ws, mark(ws))
	fmt.Printf("Keystore:  %s %s\n", cfg.KeystorePath(), mark(cfg.KeystorePath()))
	fmt.Printf("Model:     %s\n", cfg.Agents.Defaults.Model)

	catalog, err := config.BuildCatalog(config.ProfilesPath())
	if err != nil {
		fmt.Printf("  (could not load provider profiles: %v)\n", err)
		return nil
	}

	stored := map[string]bool{}
	if ks, err := keystore.Open(cfg.KeystorePath(), catalog, nil); err == nil {
		if keys, err := ks.List(context.Background()); err == nil {
			for _, k := range keys {
				if k.Active {
					stored[k.Provider] = true
				}
			}
		}
		_ = ks.Close()
	}

	if r, err := cfg.Resolve("", catalog, nil); err == nil {
		fmt.Printf("Provider:  %s (%s wire)\n", r.Profile.Label(), r.Profile.Wire())
	}

	fmt.Println("\nProviders:")
	for _, p := range catalog.All() {
		pc, _ := cfg.Providers.ByName(p.ID())
		switch {
		case pc.APIKey != "":
			fmt.Printf("  %-20s ✓ config\n", p.Label())
		case stored[p.ID()]:
			fmt.Printf("  %-20s ✓ keystore\n", p.Label())
		case pc.APIBase != "":
			fmt.Printf("  %-20s ✓ %s\n", p.Label(), pc.APIBase)
		default:
			fmt.Printf("  %-20s (not set)\n", p.Label())
		}
	}
	return nil
}

func mark(path string) string {
	if _, err := os.Stat(path); err == nil {
		return "✓"
	}
	return "✗"
}
