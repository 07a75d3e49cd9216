package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const defaultDBFile = "auto-seedr.db"

// Config struct for environment variables.
type Config struct {
	AppName           string        `envconfig:"APP_NAME" default:"auto-seedr"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"INFO"`
	DBPath            string        `envconfig:"DB_PATH"`
	DiscordWebhookURL string        `envconfig:"DISCORD_WEBHOOK_URL"`
	CacheAccessToken  bool          `envconfig:"CACHE_ACCESS_TOKEN" default:"false"`
	AccessTokenTTL    time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	// ShutdownTimeout bounds how long exit waits for running menu actions.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	Seedr struct {
		BaseURL        string        `split_words:"true" default:"https://www.seedr.cc"`
		ClientID       string        `split_words:"true" default:"seedr_xbmc"`
		DevicesURL     string        `split_words:"true" default:"https://www.seedr.cc/devices"`
		RequestTimeout time.Duration `split_words:"true" default:"0s"`
	}

	Telemetry struct {
		Enabled         bool          `split_words:"true" default:"false"`
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9464"`
		OTLPEndpoint    string        `envconfig:"OTLP_ENDPOINT"`
		ShutdownTimeout time.Duration `split_words:"true" default:"5s"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DatabasePath returns DB_PATH when set, otherwise a file under the user's
// config directory. The directory is created if missing.
func (c *Config) DatabasePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}

	dir = filepath.Join(dir, c.AppName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config dir %s: %w", dir, err)
	}

	return filepath.Join(dir, defaultDBFile), nil
}
