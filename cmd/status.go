package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/backend"
	"github.com/abhisek/cogtest/internal/config"
	"github.com/abhisek/cogtest/internal/store"
	"github.com/abhisek/cogtest/internal/variant"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show attempt status and local progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, v, err := commandSetup(cmd)
		if err != nil {
			return err
		}
		if cfg.UserID == "" {
			return fmt.Errorf("COGTEST_USER_ID (or --user) is required")
		}
		client, err := newClient(cfg, v, zap.NewNop(), nil)
		if err != nil {
			return err
		}

		ctx := context.Background()
		st, err := backend.WithRetry(client, retryConfig(cfg)).AttemptStatus(ctx, cfg.UserID)
		if err != nil {
			return fmt.Errorf("fetch attempt status: %w", err)
		}

		fmt.Printf("User:        %s\n", cfg.UserID)
		fmt.Printf("Variant:     %s\n", v.Name)
		fmt.Printf("Attempts:    %d of %d used (%d remaining)\n", st.Count, st.MaxAttempts, st.Remaining())
		if st.LastCompletedModuleID != nil {
			fmt.Printf("Last module: %d\n", *st.LastCompletedModuleID)
		} else {
			fmt.Printf("Last module: none\n")
		}
		fmt.Printf("Completed:   %v\n", st.IsCompleted)

		return withFacade(cfg, v, func(f *store.Facade) error {
			p := f.Progress()
			fmt.Printf("Local:       %s", p.Kind)
			if cp, ok := p.Checkpoint(); ok {
				fmt.Printf(" (checkpoint module %d)", cp)
			}
			fmt.Println()
			if t, ok := f.LastActiveAt(); ok {
				fmt.Printf("Last active: %s\n", t.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		})
	},
}

// commandSetup loads config and resolves the variant for the inspection
// commands, which do not need a complete config.
func commandSetup(cmd *cobra.Command) (config.Config, variant.Variant, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return config.Config{}, variant.Variant{}, err
	}
	v, err := variant.Lookup(cfg.Variant)
	if err != nil {
		return config.Config{}, variant.Variant{}, err
	}
	return cfg, v, nil
}

// withFacade opens the database and runs fn with the variant's facade.
func withFacade(cfg config.Config, v variant.Variant, fn func(*store.Facade) error) error {
	dbPath, err := resolveDBPath(cfg)
	if err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer s.Close()
	return fn(store.NewFacade(s.KV(), v.Namespace, nil))
}
