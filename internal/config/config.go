package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken string
	DataDir       string
	DatabaseURL   string
	HTTPAddr      string
	LogFile       string
	ReportTime    string
	Timezone      string

	SyncMaxQueue     int
	SyncRateLimit    int
	SyncMaxRetries   int
	SyncInterval     time.Duration
	SyncProbeTimeout time.Duration
}

// Location resolves Timezone, falling back to the local zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// BotEnabled reports whether a Telegram token was configured.
func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

// Load reads configuration from environment variables, a .env file and an
// optional CONFIG_FILE, with sane defaults. Real environment variables win
// over the .env file.
func Load() (Config, error) {
	if err := loadDotEnv(os.Getenv("DOTENV_FILE")); err != nil {
		return Config{}, err
	}
	return load(viper.New())
}

// loadDotEnv reads path, or ./.env when path is empty. Only an explicitly
// named file has to exist.
func loadDotEnv(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("dotenv %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("dotenv %s: %w", path, err)
	}
	return nil
}

func load(v *viper.Viper) (Config, error) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_FILE", "")
	v.SetDefault("REPORT_TIME", "19:00")
	v.SetDefault("TIMEZONE", "")
	v.SetDefault("SYNC_MAX_QUEUE", 100)
	v.SetDefault("SYNC_RATE_LIMIT", 60)
	v.SetDefault("SYNC_MAX_RETRIES", 3)
	v.SetDefault("SYNC_INTERVAL_SECONDS", 30)
	v.SetDefault("SYNC_PROBE_TIMEOUT_SECONDS", 5)
	v.AutomaticEnv()

	if file := strings.TrimSpace(v.GetString("CONFIG_FILE")); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		TelegramToken:    strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
		DataDir:          strings.TrimSpace(v.GetString("DATA_DIR")),
		DatabaseURL:      strings.TrimSpace(v.GetString("DATABASE_URL")),
		HTTPAddr:         strings.TrimSpace(v.GetString("HTTP_ADDR")),
		LogFile:          strings.TrimSpace(v.GetString("LOG_FILE")),
		ReportTime:       strings.TrimSpace(v.GetString("REPORT_TIME")),
		Timezone:         strings.TrimSpace(v.GetString("TIMEZONE")),
		SyncMaxQueue:     v.GetInt("SYNC_MAX_QUEUE"),
		SyncRateLimit:    v.GetInt("SYNC_RATE_LIMIT"),
		SyncMaxRetries:   v.GetInt("SYNC_MAX_RETRIES"),
		SyncInterval:     time.Duration(v.GetInt("SYNC_INTERVAL_SECONDS")) * time.Second,
		SyncProbeTimeout: time.Duration(v.GetInt("SYNC_PROBE_TIMEOUT_SECONDS")) * time.Second,
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.LogFile != "" && !filepath.IsAbs(cfg.LogFile) && filepath.Dir(cfg.LogFile) == "." {
		cfg.LogFile = filepath.Join(cfg.DataDir, cfg.LogFile)
	}

	switch {
	case cfg.SyncMaxQueue <= 0:
		return cfg, fmt.Errorf("SYNC_MAX_QUEUE must be positive")
	case cfg.SyncRateLimit <= 0:
		return cfg, fmt.Errorf("SYNC_RATE_LIMIT must be positive")
	case cfg.SyncMaxRetries <= 0:
		return cfg, fmt.Errorf("SYNC_MAX_RETRIES must be positive")
	case cfg.SyncInterval <= 0:
		return cfg, fmt.Errorf("SYNC_INTERVAL_SECONDS must be positive")
	case cfg.SyncProbeTimeout <= 0:
		return cfg, fmt.Errorf("SYNC_PROBE_TIMEOUT_SECONDS must be positive")
	}
	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return cfg, fmt.Errorf("TIMEZONE: %w", err)
		}
	}

	return cfg, nil
}
