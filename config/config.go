// ABOUTME: Runtime configuration from the environment and an optional .env file
// ABOUTME: Also builds the slog logger used by every service
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every CLOSER_* setting.
type Config struct {
	// DBPath is the SQLite file (default under the XDG data directory)
	DBPath string `env:"CLOSER_DB_PATH"`
	// CatalogPath replaces the embedded deal type catalog when set
	CatalogPath string `env:"CLOSER_CATALOG_PATH"`
	// Owner is the caller identity used by the CLI and MCP server
	Owner string `env:"CLOSER_OWNER" envDefault:"local"`

	LogLevel  string `env:"CLOSER_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"CLOSER_LOG_FORMAT" envDefault:"text"`

	// AuditTimeout bounds best-effort activity writes
	AuditTimeout time.Duration `env:"CLOSER_AUDIT_TIMEOUT" envDefault:"2s"`
	// TransitionAttempts is how many times a stage change retries a version conflict
	TransitionAttempts int `env:"CLOSER_TRANSITION_ATTEMPTS" envDefault:"3"`

	HTTPAddr string `env:"CLOSER_HTTP_ADDR" envDefault:"127.0.0.1:8089"`
}

// DefaultDBPath is where the database lives when nothing overrides it.
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "closer", "closer.db")
}

// Load reads envFile (or ./.env when empty) if it exists, then parses the
// environment. Variables already set win over the file.
func Load(envFile string) (*Config, error) {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges env parsing cannot express.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("CLOSER_OWNER must not be empty")
	}
	if c.TransitionAttempts < 1 {
		return fmt.Errorf("CLOSER_TRANSITION_ATTEMPTS must be at least 1, got %d", c.TransitionAttempts)
	}
	if c.AuditTimeout <= 0 {
		return fmt.Errorf("CLOSER_AUDIT_TIMEOUT must be positive, got %s", c.AuditTimeout)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("CLOSER_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// NewLogger builds a logger writing to w in the configured level and format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
