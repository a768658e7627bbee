package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/backend"
)

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the assessment's modules in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, v, err := commandSetup(cmd)
		if err != nil {
			return err
		}
		client, err := newClient(cfg, v, zap.NewNop(), nil)
		if err != nil {
			return err
		}

		catalog, err := backend.WithRetry(client, retryConfig(cfg)).Modules(context.Background())
		if err != nil {
			return fmt.Errorf("fetch modules: %w", err)
		}
		if len(catalog) == 0 {
			fmt.Println("No modules found.")
			return nil
		}

		fmt.Printf("%-4s  %-6s  %-16s  %s\n", "#", "ID", "Code", "Name")
		fmt.Println(strings.Repeat("─", 60))
		for i, m := range catalog {
			fmt.Printf("%-4d  %-6d  %-16s  %s\n", i+1, m.ID, m.Code, m.Name)
		}
		return nil
	},
}
