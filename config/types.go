// Package config provides the immutable startup configuration for a B4AE
// process: scheduler pacing, cookie rotation, and session policy, loaded
// from YAML with environment-variable overrides.
package config

import "time"

// Config is the fully resolved, validated configuration for a B4AE process.
// It is built once at startup by Load and never mutated afterward; every
// subsystem that needs a knob takes its own sub-config by value.
type Config struct {
	Environment string          `yaml:"environment" json:"environment"`
	Scheduler   SchedulerConfig `yaml:"scheduler" json:"scheduler"`
	Cookie      CookieConfig    `yaml:"cookie" json:"cookie"`
	Session     SessionConfig   `yaml:"session" json:"session"`
	Logging     LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// SchedulerConfig controls the global traffic scheduler's pacing and cover
// floor. Field names and defaults mirror scheduler.Config.
type SchedulerConfig struct {
	RateItemsPerSecond int           `yaml:"rate_items_per_second" json:"rate_items_per_second"`
	MinCoverFraction   float64       `yaml:"min_cover_fraction" json:"min_cover_fraction"`
	QueueDepth         int           `yaml:"queue_depth" json:"queue_depth"`
	CoverWindow        time.Duration `yaml:"cover_window" json:"cover_window"`
}

// CookieConfig controls the stateless cookie challenge's rotation cadence
// and Bloom filter sizing. Field names and defaults mirror cookie.Config.
type CookieConfig struct {
	RotationPeriod      time.Duration `yaml:"rotation_period" json:"rotation_period"`
	Timeout             time.Duration `yaml:"timeout" json:"timeout"`
	ExpectedPerRotation int           `yaml:"expected_per_rotation" json:"expected_per_rotation"`
	FalsePositiveRate   float64       `yaml:"false_positive_rate" json:"false_positive_rate"`
}

// SessionConfig controls per-session queue depth, idle timeout, and the
// rekey thresholds that bound root-key lifetime.
type SessionConfig struct {
	QueueDepth  int           `yaml:"queue_depth" json:"queue_depth"`
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxAge      time.Duration `yaml:"max_age" json:"max_age"`
	MaxMessages uint64        `yaml:"max_messages" json:"max_messages"`
	MaxBytes    uint64        `yaml:"max_bytes" json:"max_bytes"`
}

// LoggingConfig controls the leveled logger used for rate-deviation and
// cookie-rotation diagnostics.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, text
	Output string `yaml:"output" json:"output"` // stdout, stderr, file path
}

// MetricsConfig controls whether the Prometheus metrics registry is
// exposed, and on what port/path.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Port    int    `yaml:"port" json:"port"`
	Path    string `yaml:"path" json:"path"`
}

// Default returns the recommended defaults for every sub-config, matching
// the bounds each subsystem's own Validate enforces.
func Default() Config {
	return Config{
		Environment: "development",
		Scheduler: SchedulerConfig{
			RateItemsPerSecond: 100,
			MinCoverFraction:   0.2,
			QueueDepth:         1024,
			CoverWindow:        60 * time.Second,
		},
		Cookie: CookieConfig{
			RotationPeriod:      60 * time.Second,
			Timeout:             30 * time.Second,
			ExpectedPerRotation: 10_000,
			FalsePositiveRate:   1e-6,
		},
		Session: SessionConfig{
			QueueDepth:  256,
			IdleTimeout: 15 * time.Minute,
			MaxAge:      24 * time.Hour,
			MaxMessages: 1 << 20,
			MaxBytes:    1 << 32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
