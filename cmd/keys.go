package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage provider API keys",
}

func init() {
	keysCmd.AddCommand(keysSetCmd)
	keysCmd.AddCommand(keysListCmd)
	keysCmd.AddCommand(keysTestCmd)
	keysCmd.AddCommand(keysDeleteCmd)
}

// ---- set -------------------------------------------------------------------

var (
	keysInactive bool
	keysNoTest   bool
)

var keysSetCmd = &cobra.Command{
	Use:   "set <provider> [key]",
	Short: "Store a key (read from stdin when omitted)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(_ *cobra.Command, args []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		provider := args[0]
		if _, err := container.Catalog().Get(provider); err != nil {
			return err
		}
		secret := ""
		if len(args) == 2 {
			secret = args[1]
		} else {
			fmt.Fprintf(os.Stderr, "API key for %s: ", provider)
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			secret = strings.TrimSpace(line)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if !keysNoTest {
			res, err := container.Keys().TestKey(ctx, provider, secret)
			if err != nil {
				return err
			}
			fmt.Printf("✓ %s accepted the key (%d models)\n", res.Provider, len(res.Models))
		}
		if err := container.Keys().SaveKey(ctx, provider, secret, !keysInactive); err != nil {
			return err
		}
		fmt.Printf("✓ Saved key for %s\n", provider)
		return nil
	},
}

func init() {
	keysSetCmd.Flags().BoolVar(&keysInactive, "inactive", false, "Store without making it the active key")
	keysSetCmd.Flags().BoolVar(&keysNoTest, "no-test", false, "Skip the provider check")
}

// ---- list ------------------------------------------------------------------

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored keys",
	RunE: func(_ *cobra.Command, _ []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		keys, err := container.Keys().List(context.Background())
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Println("No stored keys.")
			return nil
		}
		fmt.Printf("%-6s %-14s %-16s %-8s %-20s\n", "ID", "Provider", "Key", "Active", "Added")
		fmt.Println(strings.Repeat("-", 68))
		for _, k := range keys {
			fmt.Printf("%-6d %-14s %-16s %-8s %-20s\n", k.ID, k.Provider, k.Prefix, yesNo(k.Active), k.CreatedAt.Local().Format("2006-01-02 15:04"))
		}
		return nil
	},
}

// ---- test ------------------------------------------------------------------

var keysTestCmd = &cobra.Command{
	Use:   "test <provider>",
	Short: "Check the active key against the provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		secret, err := container.Keys().LoadKey(ctx, args[0])
		if err != nil {
			return err
		}
		res, err := container.Keys().TestKey(ctx, args[0], secret)
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s: %d models\n", res.Provider, len(res.Models))
		for _, m := range res.Models {
			fmt.Printf("  %s\n", m)
		}
		return nil
	},
}

// ---- delete ----------------------------------------------------------------

var keysDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Remove every key stored for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		container, err := loadContainer()
		if err != nil {
			return err
		}
		defer container.Close()

		n, err := container.Keys().DeleteProvider(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("✓ Removed %d key(s) for %s\n", n, args[0])
		return nil
	},
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
