// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Functions accept context.Context as the first parameter.
// - Errors are classified with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// LogFile, when set, writes logs to a rotated file instead of stdout.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// ScalerPath and ModelPath locate the two pre-fitted artifacts.
	ScalerPath string `koanf:"scaler_path"`
	ModelPath  string `koanf:"model_path"`

	// MaxSessions bounds the number of histories held at once.
	MaxSessions int `koanf:"max_sessions"`

	// SessionTTLSeconds is how long an idle session keeps its history.
	SessionTTLSeconds int `koanf:"session_ttl_seconds"`

	// CookieSecure marks the session cookie Secure (HTTPS only).
	CookieSecure bool `koanf:"cookie_secure"`

	// AllowedOrigins enables CORS for a separately hosted form front end.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		ScalerPath:        "scaler_iq.json",
		ModelPath:         "model_iq.json",
		MaxSessions:       10_000,
		SessionTTLSeconds: 7200,
	}
}

// SessionTTL returns SessionTTLSeconds as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ScalerPath) == "":
		return fmt.Errorf("%w: scaler_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.ModelPath) == "":
		return fmt.Errorf("%w: model_path must not be empty", ErrInvalidConfig)
	case c.MaxSessions <= 0:
		return fmt.Errorf("%w: max_sessions must be positive, got %d", ErrInvalidConfig, c.MaxSessions)
	case c.SessionTTLSeconds <= 0:
		return fmt.Errorf("%w: session_ttl_seconds must be positive, got %d", ErrInvalidConfig, c.SessionTTLSeconds)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
