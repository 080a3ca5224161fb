package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "19:00", cfg.ReportTime)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.BotEnabled())
	assert.Equal(t, 100, cfg.SyncMaxQueue)
	assert.Equal(t, 60, cfg.SyncRateLimit)
	assert.Equal(t, 3, cfg.SyncMaxRetries)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", " token ")
	t.Setenv("DATA_DIR", "/var/lib/planner")
	t.Setenv("DATABASE_URL", "remote.db")
	t.Setenv("LOG_FILE", "planner.log")
	t.Setenv("SYNC_RATE_LIMIT", "10")
	t.Setenv("SYNC_INTERVAL_SECONDS", "5")
	t.Setenv("TIMEZONE", "UTC")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.TelegramToken)
	assert.True(t, cfg.BotEnabled())
	assert.Equal(t, "remote.db", cfg.DatabaseURL)
	assert.Equal(t, filepath.Join("/var/lib/planner", "planner.log"), cfg.LogFile)
	assert.Equal(t, 10, cfg.SyncRateLimit)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.Equal(t, "UTC", cfg.Location().String())
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_ADDR: \":9090\"\nSYNC_MAX_QUEUE: 20\n"), 0o644))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 20, cfg.SyncMaxQueue)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("SYNC_MAX_RETRIES", "0")
	_, err := load(viper.New())
	assert.Error(t, err)

	t.Setenv("SYNC_MAX_RETRIES", "3")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err = load(viper.New())
	assert.Error(t, err)

	t.Setenv("TIMEZONE", "")
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = load(viper.New())
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.env")
	require.NoError(t, os.WriteFile(path, []byte("REPORT_TIME=07:30\nHTTP_ADDR=:7070\n"), 0o644))
	t.Setenv("DOTENV_FILE", path)
	t.Setenv("HTTP_ADDR", ":6060")
	t.Cleanup(func() { _ = os.Unsetenv("REPORT_TIME") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "07:30", cfg.ReportTime)
	assert.Equal(t, ":6060", cfg.HTTPAddr)
}

func TestLoad_MissingDotEnv(t *testing.T) {
	t.Setenv("DOTENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	_, err := Load()
	assert.Error(t, err)
}
