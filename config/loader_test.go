package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithNoFilesReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test", EnvFile: ""})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, Default().Scheduler, cfg.Scheduler)
}

func TestLoadPrefersEnvironmentSpecificFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("scheduler:\n  rate_items_per_second: 50\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "staging.yaml"), []byte("scheduler:\n  rate_items_per_second: 300\n"), 0o644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "staging"})
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Scheduler.RateItemsPerSecond)
}

func TestLoadFallsBackToDefaultYAML(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("scheduler:\n  rate_items_per_second: 50\n"), 0o644))

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "nonexistent-env"})
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Scheduler.RateItemsPerSecond)
}

func TestLoadEnvironmentOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default.yaml"), []byte("scheduler:\n  rate_items_per_second: 50\n"), 0o644))
	t.Setenv("B4AE_SCHEDULER_RATE", "777")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	require.NoError(t, err)
	assert.Equal(t, 777, cfg.Scheduler.RateItemsPerSecond)
}

func TestLoadFailsValidationOnBadOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("B4AE_SCHEDULER_RATE", "1")

	_, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test"})
	assert.Error(t, err)
}

func TestLoadSkipValidationAllowsBadOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("B4AE_SCHEDULER_RATE", "1")

	cfg, err := Load(LoaderOptions{ConfigDir: dir, Environment: "test", SkipValidation: true})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Scheduler.RateItemsPerSecond)
}

func TestMustLoadPanicsOnInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("B4AE_SCHEDULER_RATE", "1")

	assert.Panics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: dir, Environment: "test"})
	})
}
