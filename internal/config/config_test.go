package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MARKET_PAIR_ADDRESS", "0xpair")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Market.SnapshotTTL != 30*time.Second {
		t.Fatalf("snapshot TTL = %v", cfg.Market.SnapshotTTL)
	}
	if cfg.Market.StaleGraceFactor != 10 {
		t.Fatalf("grace factor = %d", cfg.Market.StaleGraceFactor)
	}
	if cfg.Orchestrator.RefreshSpec != "@every 30s" {
		t.Fatalf("refresh spec = %q", cfg.Orchestrator.RefreshSpec)
	}
	if cfg.Cache.Backend != "memory" {
		t.Fatalf("cache backend = %q", cfg.Cache.Backend)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\nmarket:\n  pair_address: \"0xfile\"\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("environment must win over file: port = %d", cfg.Server.Port)
	}
	if cfg.Market.PairAddress != "0xfile" {
		t.Fatalf("file value lost: pair address = %q", cfg.Market.PairAddress)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("MARKET_PAIR_ADDRESS", "0xpair")
	t.Setenv("SERVER_PORT", "70000")
	if _, err := Load(); err == nil {
		t.Fatalf("out-of-range port accepted")
	}

	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("CACHE_BACKEND", "etcd")
	if _, err := Load(); err == nil {
		t.Fatalf("unknown cache backend accepted")
	}
}

func TestOrigins(t *testing.T) {
	cfg := ServerConfig{CORSOrigins: "https://a.example, https://b.example ,"}
	origins := cfg.Origins()
	if len(origins) != 2 || origins[0] != "https://a.example" || origins[1] != "https://b.example" {
		t.Fatalf("origins = %v", origins)
	}
	if (ServerConfig{}).Origins() != nil {
		t.Fatalf("empty list must be nil")
	}
}
