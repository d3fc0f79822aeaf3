package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/b4ae-project/b4ae/b4aeerr"
)

// LoadFromFile reads a config file, parsed as JSON when its name ends in
// ".json" and as YAML otherwise, layers it over Default, and returns the merged result without validating
// or applying environment overrides. Load is the entry point most callers
// want; LoadFromFile is exposed for callers assembling their own pipeline.
func LoadFromFile(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse json config: %w", err)
		}
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse yaml config: %w", err)
	}
	return cfg, nil
}

// Validate enforces the bound every sub-config's owning package documents
// as its acceptable range. It is the single gate Load runs before handing
// back a Config a caller can treat as fixed for the process lifetime.
func (c Config) Validate() error {
	if c.Scheduler.RateItemsPerSecond < 10 || c.Scheduler.RateItemsPerSecond > 1000 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "scheduler.rate_items_per_second must be within [10, 1000]")
	}
	if c.Scheduler.MinCoverFraction < 0.2 || c.Scheduler.MinCoverFraction > 1.0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "scheduler.min_cover_fraction must be within [0.2, 1.0]")
	}
	if c.Scheduler.QueueDepth <= 0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "scheduler.queue_depth must be positive")
	}
	if c.Cookie.RotationPeriod <= 0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "cookie.rotation_period must be positive")
	}
	if c.Cookie.FalsePositiveRate <= 0 || c.Cookie.FalsePositiveRate >= 1 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "cookie.false_positive_rate must be within (0, 1)")
	}
	if c.Cookie.ExpectedPerRotation <= 0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "cookie.expected_per_rotation must be positive")
	}
	if c.Session.QueueDepth <= 0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "session.queue_depth must be positive")
	}
	if c.Session.IdleTimeout <= 0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "session.idle_timeout must be positive")
	}
	if c.Session.MaxMessages == 0 || c.Session.MaxBytes == 0 {
		return b4aeerr.New(b4aeerr.KindInvalidInput, "config.Config.Validate", "session.max_messages and session.max_bytes must be positive")
	}
	return nil
}
