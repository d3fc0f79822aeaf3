package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoaderOptions configures Load's search path and override behavior.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default "config").
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// EnvFile is a .env path loaded into the process environment before
	// config resolution, for local/dev runs (empty skips loading).
	EnvFile string
	// SkipValidation disables the final Config.Validate call.
	SkipValidation bool
}

// DefaultLoaderOptions returns Load's default search behavior.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir: "config",
		EnvFile:   ".env",
	}
}

// Load resolves a Config from an environment-named YAML file overlaid on
// Default, applies ${VAR}/${VAR:default} substitution and direct
// environment-variable overrides, validates the result, and returns it.
// The returned Config is meant to be treated as immutable for the rest of
// the process's lifetime.
func Load(opts ...LoaderOptions) (Config, error) {
	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	if options.EnvFile != "" {
		if err := godotenv.Load(options.EnvFile); err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	cfg, err := loadLayered(options.ConfigDir, env)
	if err != nil {
		return Config{}, err
	}
	cfg.Environment = env

	substituteStringFields(&cfg)
	applyEnvironmentOverrides(&cfg)

	if !options.SkipValidation {
		if err := cfg.Validate(); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// loadLayered tries <dir>/<env>.yaml, then <dir>/default.yaml, then returns
// Default() unchanged if neither file exists.
func loadLayered(dir, env string) (Config, error) {
	candidates := []string{
		filepath.Join(dir, fmt.Sprintf("%s.yaml", env)),
		filepath.Join(dir, "default.yaml"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return LoadFromFile(path)
	}
	return Default(), nil
}

// applyEnvironmentOverrides lets deployment-time environment variables win
// over file-sourced values, the highest-priority layer in the resolution
// order.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("B4AE_SCHEDULER_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Scheduler.RateItemsPerSecond = n
		}
	}
	if v := os.Getenv("B4AE_MIN_COVER_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Scheduler.MinCoverFraction = f
		}
	}
	if v := os.Getenv("B4AE_COOKIE_ROTATION_PERIOD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cookie.RotationPeriod = d
		}
	}
	if v := os.Getenv("B4AE_SESSION_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Session.IdleTimeout = d
		}
	}
	if v := os.Getenv("B4AE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("B4AE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("B4AE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true"
	}
}

// MustLoad loads configuration or panics on error: intended for process
// entry points where there is no sensible recovery from a bad config.
func MustLoad(opts ...LoaderOptions) Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
