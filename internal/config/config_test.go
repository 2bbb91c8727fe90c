package config_test

import (
	"testing"

	"github.com/alecthomas/assert/v2"

	"github.com/cipher982/floodmap/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, uint32(11), cfg.MaxZoom)
	assert.Equal(t, -10.0, cfg.MinWaterLevelM)
	assert.Equal(t, 1000.0, cfg.MaxWaterLevelM)
}

func TestLoadRejectsInvalidWaterLevelRange(t *testing.T) {
	t.Setenv("MIN_WATER_LEVEL_M", "500")
	t.Setenv("MAX_WATER_LEVEL_M", "100")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveConcurrencyCap(t *testing.T) {
	t.Setenv("CONCURRENCY_CAP", "0")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestEnvOrDefaultUsesOverride(t *testing.T) {
	t.Setenv("SOURCE_DIR", "/data/dem")
	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "/data/dem", cfg.SourceDir)
}
