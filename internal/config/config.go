// Package config handles dregistry's library-level defaults from
// environment variables.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config controls the default behavior of a [Client] that does not
// otherwise override it via an explicit Option.
// All fields map to DREGISTRY_* environment variables via [Load].
type Config struct {
	// HTTPTimeout bounds every request a Client issues (DREGISTRY_HTTP_TIMEOUT, default 30s).
	HTTPTimeout time.Duration
	// Insecure disables TLS certificate verification and permits plain HTTP
	// auth realms (DREGISTRY_INSECURE).
	Insecure bool
	// UserAgent is sent on every request that doesn't already set one (DREGISTRY_USER_AGENT).
	UserAgent string
	// LogLevel sets the minimum log severity (DREGISTRY_LOG_LEVEL: debug, info, warn, error).
	LogLevel slog.Level
	// MaxRedirects bounds the number of redirects followed when fetching a blob (DREGISTRY_MAX_REDIRECTS, default 3).
	MaxRedirects int
}

// Load populates a [Config] from DREGISTRY_* environment variables,
// falling back to defaults for any variable that is unset or invalid.
func Load() Config {
	c := Config{
		HTTPTimeout:  30 * time.Second,
		Insecure:     false,
		UserAgent:    "dregistry/1.0",
		LogLevel:     slog.LevelInfo,
		MaxRedirects: 3,
	}

	if v := os.Getenv("DREGISTRY_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			c.HTTPTimeout = d
		}
	}

	if v := os.Getenv("DREGISTRY_INSECURE"); v != "" {
		c.Insecure, _ = strconv.ParseBool(v)
	}

	if v := os.Getenv("DREGISTRY_USER_AGENT"); v != "" {
		c.UserAgent = v
	}

	if v := os.Getenv("DREGISTRY_MAX_REDIRECTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil && n > 0 {
			c.MaxRedirects = n
		}
	}

	if v := os.Getenv("DREGISTRY_LOG_LEVEL"); v != "" {
		switch v {
		case "debug":
			c.LogLevel = slog.LevelDebug
		case "warn":
			c.LogLevel = slog.LevelWarn
		case "error":
			c.LogLevel = slog.LevelError
		default:
			c.LogLevel = slog.LevelInfo
		}
	}

	return c
}
