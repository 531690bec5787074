// Package config loads application configuration from environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/commentbot/internal/domain/model"
)

// Comment sources.
const (
	SourceNone     = "none"
	SourceLinkedIn = "linkedin"
	SourceGitHub   = "github"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr  string `env:"COMMENTBOT_LISTEN_ADDR" default:"127.0.0.1:8080"`
	DBDriver    string `env:"COMMENTBOT_DB_DRIVER" default:"sqlite"`
	DBPath      string `env:"COMMENTBOT_DB_PATH" default:"commentbot.db"`
	DatabaseURL string `env:"COMMENTBOT_DATABASE_URL"`

	PollInterval   time.Duration `env:"COMMENTBOT_POLL_INTERVAL" default:"5m"`
	Workers        int           `env:"COMMENTBOT_WORKERS" default:"4"`
	StorageTimeout time.Duration `env:"COMMENTBOT_STORAGE_TIMEOUT" default:"5s"`

	RateLimitWindow time.Duration `env:"COMMENTBOT_RATE_LIMIT_WINDOW" default:"60s"`
	RateLimitMax    int           `env:"COMMENTBOT_RATE_LIMIT_MAX" default:"100"`
	RedisURL        string        `env:"COMMENTBOT_REDIS_URL"`

	NegativeThreshold float64 `env:"COMMENTBOT_NEGATIVE_THRESHOLD" default:"-0.3"`
	PositiveThreshold float64 `env:"COMMENTBOT_POSITIVE_THRESHOLD" default:"0.3"`
	TemplatesPath     string  `env:"COMMENTBOT_TEMPLATES_PATH"`

	Source   string `env:"COMMENTBOT_SOURCE" default:"none"`
	Dispatch bool   `env:"COMMENTBOT_DISPATCH" default:"false"`

	LinkedInToken   string `env:"COMMENTBOT_LINKEDIN_TOKEN"`
	LinkedInActor   string `env:"COMMENTBOT_LINKEDIN_ACTOR"`
	LinkedInBaseURL string `env:"COMMENTBOT_LINKEDIN_BASE_URL"`
	GitHubToken     string `env:"COMMENTBOT_GITHUB_TOKEN"`

	IngressRPS float64 `env:"COMMENTBOT_INGRESS_RPS" default:"20"`
	LogLevel   string  `env:"COMMENTBOT_LOG_LEVEL" default:"info"`
	LogFormat  string  `env:"COMMENTBOT_LOG_FORMAT" default:"text"`

	// Templates is the reply set read from TemplatesPath. Nil means the
	// built-in defaults.
	Templates []model.Template
}

// Thresholds returns the configured sentiment cut-offs.
func (c *Config) Thresholds() model.Thresholds {
	return model.Thresholds{Negative: c.NegativeThreshold, Positive: c.PositiveThreshold}
}

// Load reads configuration from environment variables, after merging a .env
// file from the working directory if one exists, and returns a validated
// Config. Any invalid value yields a *model.ConfigurationError.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &model.ConfigurationError{Field: ".env", Reason: err.Error()}
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, &model.ConfigurationError{Field: "environment", Reason: err.Error()}
	}

	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.TemplatesPath != "" {
		templates, err := LoadTemplates(cfg.TemplatesPath)
		if err != nil {
			return nil, err
		}
		cfg.Templates = templates
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	invalid := func(field, format string, args ...any) error {
		return &model.ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
	}

	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return invalid("COMMENTBOT_DB_PATH", "required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return invalid("COMMENTBOT_DATABASE_URL", "required for the postgres driver")
		}
	default:
		return invalid("COMMENTBOT_DB_DRIVER", "unknown driver %q", c.DBDriver)
	}

	if c.PollInterval <= 0 {
		return invalid("COMMENTBOT_POLL_INTERVAL", "must be positive, got %s", c.PollInterval)
	}
	if c.Workers <= 0 {
		return invalid("COMMENTBOT_WORKERS", "must be positive, got %d", c.Workers)
	}
	if c.StorageTimeout <= 0 {
		return invalid("COMMENTBOT_STORAGE_TIMEOUT", "must be positive, got %s", c.StorageTimeout)
	}
	if c.RateLimitWindow < time.Millisecond {
		return invalid("COMMENTBOT_RATE_LIMIT_WINDOW", "must be at least 1ms, got %s", c.RateLimitWindow)
	}
	if c.RateLimitMax <= 0 {
		return invalid("COMMENTBOT_RATE_LIMIT_MAX", "must be positive, got %d", c.RateLimitMax)
	}
	if err := c.Thresholds().Validate(); err != nil {
		return err
	}
	if c.IngressRPS <= 0 {
		return invalid("COMMENTBOT_INGRESS_RPS", "must be positive, got %g", c.IngressRPS)
	}

	switch c.Source {
	case SourceNone:
		if c.Dispatch {
			return invalid("COMMENTBOT_DISPATCH", "requires a comment source")
		}
	case SourceLinkedIn:
		if c.LinkedInToken == "" {
			return invalid("COMMENTBOT_LINKEDIN_TOKEN", "required for the linkedin source")
		}
		if c.Dispatch && c.LinkedInActor == "" {
			return invalid("COMMENTBOT_LINKEDIN_ACTOR", "required to dispatch replies on linkedin")
		}
	case SourceGitHub:
		if c.GitHubToken == "" {
			return invalid("COMMENTBOT_GITHUB_TOKEN", "required for the github source")
		}
	default:
		return invalid("COMMENTBOT_SOURCE", "unknown source %q", c.Source)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return invalid("COMMENTBOT_LOG_FORMAT", "must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// templateFile is the on-disk layout of COMMENTBOT_TEMPLATES_PATH.
type templateFile struct {
	Templates []model.Template `yaml:"templates"`
}

// LoadTemplates reads a YAML reply set. Unknown keys are rejected so typos do
// not silently fall back to defaults.
func LoadTemplates(path string) ([]model.Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigurationError{Field: "COMMENTBOT_TEMPLATES_PATH", Reason: err.Error()}
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var f templateFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &model.ConfigurationError{Field: "COMMENTBOT_TEMPLATES_PATH", Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}
	if len(f.Templates) == 0 {
		return nil, &model.ConfigurationError{Field: "COMMENTBOT_TEMPLATES_PATH", Reason: fmt.Sprintf("%s defines no templates", path)}
	}

	return f.Templates, nil
}

// NewLogger builds the process logger: a text or JSON handler writing to w at
// the configured level.
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
		return 0, &model.ConfigurationError{Field: "COMMENTBOT_LOG_LEVEL", Reason: fmt.Sprintf("unknown level %q", s)}
	}
	return level, nil
}
