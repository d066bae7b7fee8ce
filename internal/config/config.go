// Package config loads this process's configuration once, explicitly, at
// startup. There are no lazy global singletons (spec Design Notes §9):
// every component that needs a config value receives it via constructor
// injection from the Config this package produces.
package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string
	// RedisURL is the cache connection string.
	RedisURL string
	// OBAAPIKey authenticates OneBusAway-compatible requests (bus static +
	// vehicle status).
	OBAAPIKey string
	// Address is the HTTP listen address for the read-only api package.
	Address string
	// DebugFeeds is set when DEBUG_GTFS is non-empty. Nothing in this module
	// reads it, so no decoded feeds are written to disk.
	DebugFeeds bool

	RealtimeRefreshInterval time.Duration
	AlertRefreshInterval    time.Duration
	StaticRefreshInterval   time.Duration
}

// Load reads configuration from the process environment. Required
// variables missing at boot are a fatal error, per spec §7 ("missing
// required env var" is in the Fatal error class).
func Load() (Config, error) {
	cfg := Config{
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisURL:                getenvDefault("REDIS_URL", "redis://127.0.0.1:6379/0"),
		OBAAPIKey:               os.Getenv("API_KEY"),
		Address:                 getenvDefault("ADDRESS", "0.0.0.0:3055"),
		DebugFeeds:              os.Getenv("DEBUG_GTFS") != "",
		RealtimeRefreshInterval: 30 * time.Second,
		AlertRefreshInterval:    60 * time.Second,
		StaticRefreshInterval:   24 * time.Hour,
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.OBAAPIKey == "" {
		return Config{}, fmt.Errorf("API_KEY is required (bus static + OBA vehicle status)")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
