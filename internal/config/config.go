package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration. Values come from COGTEST_*
// environment variables; command-line flags override them.
type Config struct {
	// APIURL is the backend base URL, e.g. https://assess.example.org.
	APIURL string `env:"COGTEST_API_URL"`

	// APIToken is sent as a bearer token when set.
	APIToken string `env:"COGTEST_API_TOKEN"`

	UserID   string `env:"COGTEST_USER_ID"`
	Language string `env:"COGTEST_LANGUAGE" envDefault:"en"`

	// Variant selects the product flavour ("clinic" or "research").
	Variant string `env:"COGTEST_VARIANT" envDefault:"clinic"`

	Idle  IdleConfig
	HTTP  HTTPConfig
	Retry RetryConfig

	// DBPath overrides the default SQLite location.
	DBPath string `env:"COGTEST_DB"`

	LogFile  string `env:"COGTEST_LOG_FILE"`
	LogLevel string `env:"COGTEST_LOG_LEVEL" envDefault:"info"`

	// MetricsAddr serves Prometheus metrics when non-empty, e.g. ":9464".
	MetricsAddr string `env:"COGTEST_METRICS_ADDR"`
}

// IdleConfig configures the idle monitor.
type IdleConfig struct {
	Timeout       time.Duration `env:"COGTEST_IDLE_TIMEOUT" envDefault:"10m"`
	CheckInterval time.Duration `env:"COGTEST_IDLE_CHECK_INTERVAL" envDefault:"5s"`
}

// HTTPConfig configures the backend adapters.
type HTTPConfig struct {
	Timeout time.Duration `env:"COGTEST_HTTP_TIMEOUT" envDefault:"15s"`

	// CleanupWait bounds how long a session start waits for a pending
	// abandon call issued by an idle restart.
	CleanupWait time.Duration `env:"COGTEST_CLEANUP_WAIT" envDefault:"5s"`
}

// RetryConfig configures retries of idempotent backend reads.
type RetryConfig struct {
	MaxAttempts int           `env:"COGTEST_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	InitialWait time.Duration `env:"COGTEST_RETRY_INITIAL_WAIT" envDefault:"500ms"`
	MaxWait     time.Duration `env:"COGTEST_RETRY_MAX_WAIT" envDefault:"5s"`
	Multiplier  float64       `env:"COGTEST_RETRY_MULTIPLIER" envDefault:"2"`
}

// LoadDotEnv copies variables from a dotenv file into the environment.
// Variables that are already set win, and a missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// FromEnv parses the environment into a Config.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the values needed to run an assessment.
func (c Config) Validate() error {
	var errs []error
	if c.APIURL == "" {
		errs = append(errs, errors.New("COGTEST_API_URL (or --api-url) is required"))
	} else if u, err := url.Parse(c.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("invalid API URL %q", c.APIURL))
	}
	if c.UserID == "" {
		errs = append(errs, errors.New("COGTEST_USER_ID (or --user) is required"))
	}
	if c.Idle.Timeout <= 0 {
		errs = append(errs, errors.New("idle timeout must be positive"))
	}
	if c.Idle.CheckInterval <= 0 || c.Idle.CheckInterval >= c.Idle.Timeout {
		errs = append(errs, fmt.Errorf("idle check interval %s must be positive and shorter than the timeout %s",
			c.Idle.CheckInterval, c.Idle.Timeout))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry max attempts must be at least 1"))
	}
	return errors.Join(errs...)
}
