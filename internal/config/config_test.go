package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 60, cfg.Provider.TimeoutSecs)
	assert.Equal(t, 128, cfg.Provider.GeometryCacheSize)
	assert.Equal(t, 32, cfg.Provider.MaskCacheSize)
	assert.Equal(t, "results", cfg.Storage.OutputPrefix)
	assert.Equal(t, 900, cfg.Storage.UploadExpirySecs)
	assert.Equal(t, 3600, cfg.Storage.DownloadExpirySecs)
	assert.Equal(t, "forestmap.db", cfg.Store.Path)
	assert.InDelta(t, 35.0, cfg.Analysis.CloudThreshold, 0.001)
	assert.InDelta(t, 30.0, cfg.Analysis.MaxTileExtentKm, 0.001)
	assert.Equal(t, 20, cfg.Analysis.TileScale)
	assert.Equal(t, 10, cfg.Analysis.StatsScale)
	assert.Equal(t, 10, cfg.Analysis.MaxConcurrentTiles)
	assert.Equal(t, 3, cfg.Analysis.FetchAttempts)
	assert.Equal(t, 120, cfg.Analysis.FetchTimeoutSecs)
	assert.Equal(t, 2, cfg.Analysis.FetchBackoffSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
provider:
  base_url: https://classify.example.com
log:
  level: debug
  format: console
server:
  port: 9090
analysis:
  cloud_threshold: 20
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://classify.example.com", cfg.Provider.BaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.InDelta(t, 20.0, cfg.Analysis.CloudThreshold, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 30.0, cfg.Analysis.MaxTileExtentKm, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
log:
  level: debug
storage:
  bucket: file-bucket
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FORESTMAP_STORAGE_BUCKET", "env-bucket")
	t.Setenv("FORESTMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "env-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("FORESTMAP_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	require.Error(t, err)
}
