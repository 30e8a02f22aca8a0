package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithNoConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(cwd) }()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, TrustAssistant, cfg.TrustLevel)
	assert.Equal(t, DefaultQualityThreshold, cfg.QualityThreshold)
	assert.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	assert.True(t, cfg.EnableWorktrees)
	assert.Empty(t, cfg.Validate())
}

func TestLoadReadsProjectConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".midnight"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".midnight", "config.yaml"), []byte(DefaultConfigYAML), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(cwd) }()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "claude-opus-4-6", cfg.ActorModel)
	assert.Equal(t, "max", cfg.SentinelEffort)
	assert.True(t, cfg.AgentLoop.EnableVeto)
}

func TestValidateRejectsUnknownTrustLevel(t *testing.T) {
	cfg := Config{TrustLevel: 9, QueuePath: "x", QualityThreshold: 85, MaxRetries: 3}
	errs := cfg.Validate()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "trust_level")
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Config{TrustLevel: TrustSupervised, QueuePath: "x", QualityThreshold: 150, MaxRetries: 3}
	errs := cfg.Validate()
	assert.Contains(t, errs, "quality_threshold must be within [0,100]")
}

func TestSandboxConfigTimeoutFallsBackOnMalformedValue(t *testing.T) {
	assert.Equal(t, 30_000_000_000, int(SandboxConfig{}.Timeout()))
	assert.Equal(t, 30_000_000_000, int(SandboxConfig{CommandTimeout: "not-a-duration"}.Timeout()))
	assert.Equal(t, int64(45_000_000_000), int64(SandboxConfig{CommandTimeout: "45s"}.Timeout()))
}

func TestAtomicWriteProducesReadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, AtomicWrite(path, []byte(DefaultConfigYAML)))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigYAML, string(got))
}
