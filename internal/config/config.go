package config

import (
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Spec     SpecConfig     `toml:"spec"`
	Database DatabaseConfig `toml:"database"`
	Session  SessionConfig  `toml:"session"`
	Log      LogConfig      `toml:"log"`
	Observer ObserverConfig `toml:"observer"`
}

type SpecConfig struct {
	Path string `toml:"path"`
}

type DatabaseConfig struct {
	// Driver selects the checkpoint backend: "memory", "sqlite", "postgres".
	Driver      string `toml:"driver"`
	Path        string `toml:"path"`
	PostgresURL string `toml:"postgres_url"`
}

type SessionConfig struct {
	// ID is the session key the CLI converses under. Empty means a fresh
	// random session per run.
	ID string `toml:"id"`
	// TurnTimeoutSeconds bounds each turn; 0 means no deadline.
	TurnTimeoutSeconds int `toml:"turn_timeout_seconds"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type ObserverConfig struct {
	Enabled     bool   `toml:"enabled"`
	Endpoint    string `toml:"endpoint"`
	ServiceName string `toml:"service_name"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Spec:     SpecConfig{Path: "flows.yaml"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "colloquy.db"},
		Log:      LogConfig{Level: "info"},
		Observer: ObserverConfig{Endpoint: "localhost:4318", ServiceName: "colloquy"},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "colloquy.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("COLLOQUY_SPEC_PATH"); v != "" {
		cfg.Spec.Path = v
	}
	if v := os.Getenv("COLLOQUY_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("COLLOQUY_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("COLLOQUY_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("COLLOQUY_SESSION_ID"); v != "" {
		cfg.Session.ID = v
	}
	if v := os.Getenv("COLLOQUY_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if os.Getenv("COLLOQUY_OBSERVER_ENABLED") == "true" || os.Getenv("COLLOQUY_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}
	if v := os.Getenv("COLLOQUY_OBSERVER_ENDPOINT"); v != "" {
		cfg.Observer.Endpoint = v
	}

	// Fallbacks
	if cfg.Database.Driver == "postgres" && cfg.Database.PostgresURL == "" {
		cfg.Database.Driver = "sqlite"
	}

	return cfg
}
