package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 2500*time.Millisecond, cfg.Crawler.PageDelayMin)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "exports", cfg.Export.Dir)
	assert.Equal(t, []string{"json", "csv", "xlsx"}, cfg.Export.Formats)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLM.BaseURL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CRAWL_PAGE_DELAY_MIN", "1s")
	t.Setenv("CRAWL_PAGE_DELAY_MAX", "2s")
	t.Setenv("EXPORT_FORMATS", "json, csv")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Crawler.PageDelayMin)
	assert.Equal(t, 2*time.Second, cfg.Crawler.PageDelayMax)
	assert.Equal(t, []string{"json", "csv"}, cfg.Export.Formats)
	assert.False(t, cfg.Browser.Headless)
	assert.True(t, cfg.Database.Enabled)
	assert.Contains(t, cfg.Database.ConnString(), "secret")
}

func TestValidate(t *testing.T) {
	t.Run("defaults pass", func(t *testing.T) {
		cfg, err := Load()
		require.NoError(t, err)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("inverted delay bounds fail", func(t *testing.T) {
		t.Setenv("CRAWL_PAGE_DELAY_MIN", "10s")
		t.Setenv("CRAWL_PAGE_DELAY_MAX", "1s")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown export format fails", func(t *testing.T) {
		t.Setenv("EXPORT_FORMATS", "parquet")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Error(t, cfg.Validate())
	})
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, LoggingConfig{Level: "debug"}.SlogLevel())
	assert.Equal(t, slog.LevelWarn, LoggingConfig{Level: "WARN"}.SlogLevel())
	assert.Equal(t, slog.LevelError, LoggingConfig{Level: "error"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LoggingConfig{Level: "verbose"}.SlogLevel())
	assert.Equal(t, slog.LevelInfo, LoggingConfig{}.SlogLevel())
}
