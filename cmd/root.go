package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/abhisek/cogtest/internal/backend"
	"github.com/abhisek/cogtest/internal/config"
	"github.com/abhisek/cogtest/internal/logging"
	"github.com/abhisek/cogtest/internal/store"
	"github.com/abhisek/cogtest/internal/variant"
)

var rootCmd = &cobra.Command{
	Use:   "cogtest",
	Short: "Terminal client for the cognitive assessment",
	Long: "cogtest walks a patient through the modules of a cognitive assessment served by a\n" +
		"remote backend, resuming where they left off and restarting after long inactivity.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStart(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	addGlobalFlags(rootCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func addGlobalFlags(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.String("db", "", "Path to SQLite database file (overrides COGTEST_DB env var)")
	pf.String("api-url", "", "Backend base URL (overrides COGTEST_API_URL)")
	pf.String("user", "", "User ID (overrides COGTEST_USER_ID)")
	pf.String("variant", "", "Product variant: clinic or research (overrides COGTEST_VARIANT)")
	pf.String("language", "", "UI language code (overrides COGTEST_LANGUAGE)")
	pf.String("env-file", ".env", "Dotenv file read before the environment, if it exists")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadDotEnv(envFile); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if v, _ := flags.GetString("api-url"); v != "" {
		cfg.APIURL = v
	}
	if v, _ := flags.GetString("user"); v != "" {
		cfg.UserID = v
	}
	if v, _ := flags.GetString("variant"); v != "" {
		cfg.Variant = v
	}
	if v, _ := flags.GetString("language"); v != "" {
		cfg.Language = v
	}
	if v, _ := flags.GetString("db"); v != "" {
		cfg.DBPath = v
	}
	return cfg, nil
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then COGTEST_DB env var, then the default XDG path.
func resolveDBPath(cfg config.Config) (string, error) {
	if cfg.DBPath != "" {
		return cfg.DBPath, store.EnsureDir(cfg.DBPath)
	}
	return store.DefaultDBPath()
}

// newLogger opens the rotating file logger. The returned func flushes it.
func newLogger(cfg config.Config) (*zap.Logger, func(), error) {
	path := cfg.LogFile
	if path == "" {
		p, err := logging.DefaultPath()
		if err != nil {
			return nil, nil, err
		}
		path = p
	}
	log, err := logging.New(logging.Options{Path: path, Level: cfg.LogLevel})
	if err != nil {
		return nil, nil, err
	}
	return log, func() { _ = log.Sync() }, nil
}

// newClient builds the backend client for a variant. transport may be nil.
func newClient(cfg config.Config, v variant.Variant, log *zap.Logger, transport http.RoundTripper) (*backend.Client, error) {
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("COGTEST_API_URL (or --api-url) is required")
	}
	return backend.NewClient(cfg.APIURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout, Transport: transport}),
		backend.WithToken(cfg.APIToken),
		backend.WithPrefix(v.APIPrefix),
		backend.WithLanguage(cfg.Language),
		backend.WithLogger(log),
	), nil
}

func retryConfig(cfg config.Config) backend.RetryConfig {
	return backend.RetryConfig{
		MaxAttempts: cfg.Retry.MaxAttempts,
		InitialWait: cfg.Retry.InitialWait,
		MaxWait:     cfg.Retry.MaxWait,
		Multiplier:  cfg.Retry.Multiplier,
	}
}
