// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable of the arena server.
type Config struct {
	Addr                 string        `env:"ARENA_ADDR" envDefault:":8080"`
	DBPath               string        `env:"ARENA_DB_PATH" envDefault:"arena.db"`
	MaxConcurrentMatches int64         `env:"ARENA_MAX_CONCURRENT_MATCHES" envDefault:"16"`
	DefaultTurnBudget    time.Duration `env:"ARENA_DEFAULT_TURN_BUDGET" envDefault:"30s"`
	ShutdownGrace        time.Duration `env:"ARENA_SHUTDOWN_GRACE" envDefault:"15s"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxConcurrentMatches <= 0 {
		return Config{}, fmt.Errorf("ARENA_MAX_CONCURRENT_MATCHES must be positive, got %d", cfg.MaxConcurrentMatches)
	}
	return cfg, nil
}
