package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("listen addr = %s", cfg.Server.ListenAddr)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("backend = %s", cfg.Store.Backend)
	}
	if !cfg.Agents.SeedMonies.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("seed monies = %s", cfg.Agents.SeedMonies)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "amx.toml")
	data := `
[server]
listen_addr = ":9999"
sweep_interval = "250ms"
trade_ttl = "30s"

[store]
backend = "pebble"
pebble_path = "/tmp/amx-test"

[agents]
seed_monies = "2500"

[limits]
max_exposure_per_kind = "100"
max_total_exposure = "400"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("listen addr = %s", cfg.Server.ListenAddr)
	}
	if cfg.Server.SweepInterval.Duration != 250*time.Millisecond {
		t.Errorf("sweep interval = %s", cfg.Server.SweepInterval)
	}
	if cfg.Store.Backend != "pebble" || cfg.Store.PebblePath != "/tmp/amx-test" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if !cfg.Agents.SeedMonies.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("seed monies = %s", cfg.Agents.SeedMonies)
	}
	if !cfg.Limits.MaxExposurePerKind.Equal(decimal.NewFromInt(100)) {
		t.Errorf("per-kind limit = %s", cfg.Limits.MaxExposurePerKind)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AMX_LISTEN_ADDR", ":7777")
	t.Setenv("AMX_SEED_MONIES", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7777" {
		t.Errorf("listen addr = %s", cfg.Server.ListenAddr)
	}
	if !cfg.Agents.SeedMonies.Equal(decimal.NewFromInt(42)) {
		t.Errorf("seed monies = %s", cfg.Agents.SeedMonies)
	}
}

func TestLoad_PostgresNeedsDSN(t *testing.T) {
	t.Setenv("AMX_STORE_BACKEND", "postgres")
	if _, err := Load(""); err == nil {
		t.Fatal("postgres without a DSN should fail validation")
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("AMX_STORE_BACKEND", "csv")
	if _, err := Load(""); err == nil {
		t.Fatal("unknown backend should fail validation")
	}
}
