package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/app"
	"github.com/abhisek/cogtest/internal/backend"
	"github.com/abhisek/cogtest/internal/idle"
	"github.com/abhisek/cogtest/internal/metrics"
	"github.com/abhisek/cogtest/internal/orchestrator"
	"github.com/abhisek/cogtest/internal/store"
	"github.com/abhisek/cogtest/internal/variant"
	"github.com/abhisek/cogtest/internal/widget"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Take the assessment",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd)
	},
}

func init() {
	startCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9464 (overrides COGTEST_METRICS_ADDR)")
}

// runStart wires the store, backend, orchestrator and idle monitor, then
// launches the TUI.
func runStart(cmd *cobra.Command) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.MetricsAddr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	v, err := variant.Lookup(cfg.Variant)
	if err != nil {
		return err
	}

	log, flush, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer flush()
	log = log.With(zap.String("variant", v.Name))

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		if err := m.Serve(ctx, cfg.MetricsAddr, log); err != nil {
			return fmt.Errorf("serve metrics: %w", err)
		}
	}

	// Storage failures never stop the assessment: the facade runs in
	// memory and the journal is skipped.
	var (
		kv      store.KV
		journal orchestrator.Journal
	)
	if dbPath, err := resolveDBPath(cfg); err != nil {
		log.Warn("resolve database path", zap.Error(err))
	} else if st, err := store.Open(dbPath); err != nil {
		log.Warn("open database", zap.String("path", dbPath), zap.Error(err))
	} else {
		defer st.Close()
		kv, journal = st.KV(), st.EventRepo()
	}

	facade := store.NewFacade(kv, v.Namespace, log)
	m.StoreDegraded(facade.Degraded())
	facade.OnDegrade(func() { m.StoreDegraded(true) })

	client, err := newClient(cfg, v, log, m.Transport(http.DefaultTransport))
	if err != nil {
		return err
	}
	reader := backend.WithRetry(client, retryConfig(cfg))

	bridge := app.NewBridge()
	monitor := idle.New(facade, idle.WithCheckInterval(cfg.Idle.CheckInterval))

	orch, err := orchestrator.New(orchestrator.Config{
		UserID:      cfg.UserID,
		Language:    cfg.Language,
		Namespace:   v.Namespace,
		IdleTimeout: cfg.Idle.Timeout,
		CleanupWait: cfg.HTTP.CleanupWait,
	}, orchestrator.Deps{
		Catalog:   reader,
		Attempts:  reader,
		Sessions:  client,
		Abandoner: client,
		Store:     facade,
		Navigator: bridge,
		Activity:  monitor,
		Journal:   journal,
		Metrics:   m,
		Log:       log,
		OnAllModulesComplete: func() {
			log.Info("all modules complete", zap.String("user_id", cfg.UserID))
		},
	})
	if err != nil {
		return err
	}
	defer orch.Close()

	log.Info("starting assessment", zap.String("run_id", orch.RunID()), zap.String("user_id", cfg.UserID))
	return app.Run(app.Options{
		Variant:      v,
		UserID:       cfg.UserID,
		Language:     cfg.Language,
		Orchestrator: orch,
		Store:        facade,
		Widgets:      widget.NewRegistry(),
		Monitor:      monitor,
		IdleTimeout:  cfg.Idle.Timeout,
		Bridge:       bridge,
		Log:          log,
	})
}
