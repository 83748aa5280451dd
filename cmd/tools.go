package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/tidewire/internal/shared/cmdutils"
	"github.com/crystaldolphin/tidewire/internal/toolschema"
)

var (
	toolsShape string
	toolsAll   bool
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools exposed to models",
	RunE: func(_ *cobra.Command, _ []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		allow := container.Config().Tools.AllowTools
		if toolsAll {
			allow = nil
		}
		defs := container.Dispatcher().Definitions(allow)

		switch strings.ToLower(toolsShape) {
		case "", "table":
			fmt.Printf("Dispatch order: %s\n\n", strings.Join(container.Dispatcher().FamilyNames(), " → "))
			fmt.Printf("%-24s %s\n", "Name", "Description")
			fmt.Println(strings.Repeat("-", 80))
			for _, d := range defs {
				fmt.Printf("%-24s %s\n", d.Name, truncStr(d.Description, 55))
			}
			return nil
		case "openai":
			return cmdutils.PrintJSON(toolschema.OpenAI(defs))
		case "anthropic":
			return cmdutils.PrintJSON(toolschema.Anthropic(defs))
		case "google":
			return cmdutils.PrintJSON(toolschema.Google(defs))
		default:
			return fmt.Errorf("unknown shape %q (want table, openai, anthropic or google)", toolsShape)
		}
	},
}

func init() {
	toolsCmd.Flags().StringVar(&toolsShape, "shape", "table", "Output format: table, openai, anthropic, google")
	toolsCmd.Flags().BoolVarP(&toolsAll, "all", "a", false, "Ignore tools.allowTools")
}

func truncStr(s string, max int) string {
	if len([]rune(s)) <= max {
		return s
	}
	return string([]rune(s)[:max-1]) + "…"
}
