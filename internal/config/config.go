package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DriverPostgres = "postgres"
	DriverSqlite   = "sqlite"
)

type Config struct {
	ServerAddr       string   `toml:"server_addr"`
	Driver           string   `toml:"driver"`
	DatabaseDSN      string   `toml:"database_dsn"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	RegistrationOpen bool     `toml:"registration_open"`
	HistoryLimit     int      `toml:"history_limit"`
	OpTimeoutSecs    int      `toml:"op_timeout_seconds"`
}

// Default returns the configuration for a local single-file deployment.
func Default() *Config {
	return &Config{
		ServerAddr:       "localhost:8080",
		Driver:           DriverSqlite,
		DatabaseDSN:      "./chat.db",
		RegistrationOpen: true,
		HistoryLimit:     50,
		OpTimeoutSecs:    5,
	}
}

// LoadFile overlays a TOML config file on the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ServerAddr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database DSN cannot be empty")
	}
	if c.Driver != DriverPostgres && c.Driver != DriverSqlite {
		return fmt.Errorf("unsupported driver %q", c.Driver)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("history limit cannot be negative")
	}
	if c.OpTimeoutSecs <= 0 {
		return fmt.Errorf("op timeout must be positive")
	}

	return nil
}

func (c *Config) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutSecs) * time.Second
}
