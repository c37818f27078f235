// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the settings shared by the server and the CLI.
type Config struct {
	// DatabaseURL selects Postgres persistence. Empty means in-memory stores.
	DatabaseURL    string
	Port           string
	PreviewLimit   int
	EvalCostLimit  uint64
	MigrationsPath string
}

// Default returns the settings used when no environment variable is set.
func Default() Config {
	return Config{
		Port:           "8080",
		PreviewLimit:   50,
		EvalCostLimit:  1000000,
		MigrationsPath: "migrations",
	}
}

// Load reads DATABASE_URL, PORT, PREVIEW_LIMIT, EVAL_COST_LIMIT and
// MIGRATIONS_PATH on top of Default.
func Load() (Config, error) {
	cfg := Default()

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("MIGRATIONS_PATH"); v != "" {
		cfg.MigrationsPath = v
	}

	if v := os.Getenv("PREVIEW_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("PREVIEW_LIMIT must be a positive integer, got %q", v)
		}
		cfg.PreviewLimit = n
	}

	if v := os.Getenv("EVAL_COST_LIMIT"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil || n == 0 {
			return cfg, fmt.Errorf("EVAL_COST_LIMIT must be a positive integer, got %q", v)
		}
		cfg.EvalCostLimit = n
	}

	return cfg, nil
}
