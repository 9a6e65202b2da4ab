// Package config loads exchange configuration from a TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

// Duration is a time.Duration that unmarshals from TOML strings like "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config is the full exchange configuration.
type Config struct {
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Agents AgentsConfig `toml:"agents"`
	Limits LimitsConfig `toml:"limits"`
}

// ServerConfig covers the HTTP listener and the sweep loop.
type ServerConfig struct {
	ListenAddr    string   `toml:"listen_addr"`
	SweepInterval Duration `toml:"sweep_interval"`
	TradeTTL      Duration `toml:"trade_ttl"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is "memory", "postgres", or "pebble".
	Backend     string `toml:"backend"`
	PostgresDSN string `toml:"postgres_dsn"`
	// RedisAddr enables the read-through cache in front of Postgres when
	// non-empty.
	RedisAddr  string `toml:"redis_addr"`
	PebblePath string `toml:"pebble_path"`
}

// AgentsConfig covers per-agent defaults.
type AgentsConfig struct {
	// SeedMonies is the cash balance a newly registered agent starts with.
	SeedMonies decimal.Decimal `toml:"seed_monies"`
}

// LimitsConfig bounds agent exposure.
type LimitsConfig struct {
	MaxExposurePerKind decimal.Decimal `toml:"max_exposure_per_kind"`
	MaxTotalExposure   decimal.Decimal `toml:"max_total_exposure"`
}

// Default returns the configuration used when no file or overrides are
// given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:    ":8080",
			SweepInterval: Duration{time.Second},
			TradeTTL:      Duration{time.Minute},
		},
		Store: StoreConfig{
			Backend:    "memory",
			PebblePath: "data/amx",
		},
		Agents: AgentsConfig{
			SeedMonies: decimal.NewFromInt(1000),
		},
		Limits: LimitsConfig{
			MaxExposurePerKind: decimal.NewFromInt(10000),
			MaxTotalExposure:   decimal.NewFromInt(50000),
		},
	}
}

// Load reads the config file at path (skipped when empty), applies
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AMX_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("AMX_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("AMX_POSTGRES_DSN"); v != "" {
		c.Store.PostgresDSN = v
	}
	if v := os.Getenv("AMX_REDIS_ADDR"); v != "" {
		c.Store.RedisAddr = v
	}
	if v := os.Getenv("AMX_PEBBLE_PATH"); v != "" {
		c.Store.PebblePath = v
	}
	if v := os.Getenv("AMX_SEED_MONIES"); v != "" {
		if seed, err := decimal.NewFromString(v); err == nil {
			c.Agents.SeedMonies = seed
		}
	}
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "memory", "pebble":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("config: postgres backend needs postgres_dsn")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Agents.SeedMonies.IsNegative() {
		return fmt.Errorf("config: seed_monies cannot be negative")
	}
	if c.Server.SweepInterval.Duration <= 0 {
		return fmt.Errorf("config: sweep_interval must be positive")
	}
	return nil
}
