package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \"0.0.0.0:9999\"\nkeyLen: 16\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9999", cfg.Listen)
	assert.Equal(t, 16, cfg.KeyLen)
	// Untouched fields keep their Default() value.
	assert.Equal(t, Default().ValLen, cfg.ValLen)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestValidateRejectsNonPowerOfTwoShardCount(t *testing.T) {
	cfg := Default()
	cfg.ShardCount = 3
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroKeyLen(t *testing.T) {
	cfg := Default()
	cfg.KeyLen = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroTickBudget(t *testing.T) {
	cfg := Default()
	cfg.TickBudget = 0
	assert.Error(t, cfg.Validate())
}
