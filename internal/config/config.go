package config

import (
	"errors"
	"os"
	"time"
)

// ErrMissingDatabaseURL is returned when no database DSN is configured.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")

// Config holds application configuration.
type Config struct {
	DatabaseURL string
	RedisURL    string
	ServerPort  string
	UserAgent   string
	Timeout     time.Duration
}

// Load builds config from environment variables.
// If DATABASE_URL is not set, Load tries to load .env.local and .env from
// the current directory. DATABASE_URL is required; everything else is
// optional. FETCHER_TIMEOUT bounds every remote request (default 30s).
func Load() (*Config, error) {
	if os.Getenv("DATABASE_URL") == "" {
		loadEnvFiles()
	}
	c := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		ServerPort:  os.Getenv("SERVER_PORT"),
		UserAgent:   os.Getenv("FETCHER_USER_AGENT"),
		Timeout:     30 * time.Second,
	}
	if c.ServerPort == "" {
		c.ServerPort = "8080"
	}
	if c.UserAgent == "" {
		c.UserAgent = "TVVault/1.0"
	}
	if s := os.Getenv("FETCHER_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil {
			c.Timeout = d
		}
	}
	if c.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return c, nil
}
