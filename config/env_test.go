package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVarsUsesValueWhenSet(t *testing.T) {
	t.Setenv("B4AE_TEST_VAR", "resolved")
	assert.Equal(t, "resolved", SubstituteEnvVars("${B4AE_TEST_VAR}"))
}

func TestSubstituteEnvVarsFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "fallback", SubstituteEnvVars("${B4AE_UNSET_VAR:fallback}"))
}

func TestSubstituteEnvVarsEmptyWithNoDefault(t *testing.T) {
	assert.Equal(t, "", SubstituteEnvVars("${B4AE_UNSET_VAR}"))
}

func TestSubstituteEnvVarsLeavesPlainStringsAlone(t *testing.T) {
	assert.Equal(t, "json", SubstituteEnvVars("json"))
}

func TestGetEnvironmentDefaultsToDevelopment(t *testing.T) {
	assert.Equal(t, "development", GetEnvironment())
}

func TestGetEnvironmentPrefersB4AEEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("B4AE_ENV", "production")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
}

func TestGetEnvironmentFallsBackToEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	assert.Equal(t, "staging", GetEnvironment())
	assert.False(t, IsProduction())
}
