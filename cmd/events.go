package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/cogtest/internal/store"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent assessment events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		kind, _ := cmd.Flags().GetString("kind")
		all, _ := cmd.Flags().GetBool("all")

		cfg, v, err := commandSetup(cmd)
		if err != nil {
			return err
		}
		dbPath, err := resolveDBPath(cfg)
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}
		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		opts := store.QueryOpts{Limit: limit, Kind: store.EventKind(kind)}
		if !all {
			opts.Namespace = v.Namespace
		}
		events, err := s.EventRepo().Recent(context.Background(), opts)
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}
		if len(events) == 0 {
			fmt.Println("No events found.")
			return nil
		}

		fmt.Printf("%-5s  %-19s  %-8s  %-8s  %-13s  %-6s  %-12s  %s\n",
			"Seq", "Timestamp", "Run", "Variant", "Kind", "Module", "Session", "Detail")
		fmt.Println(strings.Repeat("─", 100))
		for _, e := range events {
			fmt.Printf("%-5d  %-19s  %-8s  %-8s  %-13s  %-6s  %-12s  %s\n",
				e.Seq,
				e.At.Local().Format("2006-01-02 15:04:05"),
				truncate(e.RunID, 8),
				e.Namespace,
				e.Kind,
				moduleCol(e.ModuleID),
				truncate(e.SessionID, 12),
				e.Detail,
			)
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	eventsCmd.Flags().StringP("kind", "k", "", "Filter by kind (e.g. submit, idle_gate, restart)")
	eventsCmd.Flags().Bool("all", false, "Include every variant")
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func moduleCol(id int) string {
	if id == 0 {
		return "-"
	}
	return fmt.Sprint(id)
}
