package config

import (
	"log/slog"
	"os"
	"strings"

	"github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
)

type Config struct {
	Listcast ListcastConfig
	Browser  BrowserConfig
	Telegram TelegramConfig
	Pushover PushoverConfig
}

type ListcastConfig struct {
	ListsPath     string `env:"LISTS_PATH"`
	SnapshotDir   string `env:"SNAPSHOT_DIR"`
	ArtifactDir   string `env:"ARTIFACT_DIR"`
	WatermarkPath string `env:"WATERMARK_PATH"`
	LogLevel      string `env:"LOG_LEVEL"`
}

type BrowserConfig struct {
	Headless    bool   `env:"BROWSER_HEADLESS"`
	CookiesPath string `env:"COOKIES_PATH"`
}

type TelegramConfig struct {
	Token string `env:"TELEGRAM_BOT_TOKEN"`
}

type PushoverConfig struct {
	Token string `env:"PUSHOVER_TOKEN"`
}

// Load populates Config from a .env file (when one exists) and the
// process environment, environment winning.
func Load() (Config, error) {
	c := config.New()
	if _, err := os.Stat(".env"); err == nil {
		c.AddFeeder(feeder.DotEnv{Path: ".env"})
	}
	c.AddFeeder(feeder.Env{})

	var cfg Config
	if err := c.AddStruct(&cfg).Feed(); err != nil {
		return Config{}, err
	}

	if cfg.Listcast.ListsPath == "" {
		cfg.Listcast.ListsPath = "config/lists.json"
	}
	if cfg.Listcast.SnapshotDir == "" {
		cfg.Listcast.SnapshotDir = "data"
	}
	if cfg.Listcast.ArtifactDir == "" {
		cfg.Listcast.ArtifactDir = "artifacts"
	}
	if cfg.Browser.CookiesPath == "" {
		cfg.Browser.CookiesPath = "cookies.json"
	}
	return cfg, nil
}

func (c *Config) GetLogLevel() slog.Leveler {
	logLevel := strings.ToLower(c.Listcast.LogLevel)
	if logLevel == "error" {
		return slog.LevelError
	}
	if logLevel == "warning" {
		return slog.LevelWarn
	}
	if logLevel == "info" {
		return slog.LevelInfo
	}
	if logLevel == "debug" {
		return slog.LevelDebug
	}
	// default to info if unknown
	slog.With(slog.String("log_level", logLevel)).Info("Received invalid log level. Defaulting to INFO.")
	return slog.LevelInfo
}
