// Package config assembles runtime configuration from the environment with
// an optional YAML file underneath. Environment variables always win so
// deployments can override a checked-in file without editing it.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST,default=0.0.0.0" yaml:"host"`
	Port            int           `env:"SERVER_PORT,default=8080" yaml:"port"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT,default=15s" yaml:"read_timeout"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT,default=30s" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s" yaml:"shutdown_timeout"`
	RatePerSecond   int           `env:"SERVER_RATE_PER_SECOND,default=20" yaml:"rate_per_second"`
	RateBurst       int           `env:"SERVER_RATE_BURST,default=40" yaml:"rate_burst"`
	// CORSOrigins is a comma-separated allow list; empty allows all.
	CORSOrigins string `env:"SERVER_CORS_ORIGINS" yaml:"cors_origins"`
}

// Origins splits the CORS allow list.
func (c ServerConfig) Origins() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	parts := strings.Split(c.CORSOrigins, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// MarketConfig configures the upstream market-data provider.
type MarketConfig struct {
	// Endpoint is the DEX pair endpoint serving price/volume/liquidity.
	Endpoint string `env:"MARKET_ENDPOINT,default=https://api.dexscreener.com/latest/dex/pairs" yaml:"endpoint"`
	// Chain and PairAddress identify the tracked token pair.
	Chain       string `env:"MARKET_CHAIN,default=solana" yaml:"chain"`
	PairAddress string `env:"MARKET_PAIR_ADDRESS" yaml:"pair_address"`
	APIKey      string `env:"MARKET_API_KEY" yaml:"api_key"`

	RequestTimeout time.Duration `env:"MARKET_REQUEST_TIMEOUT,default=30s" yaml:"request_timeout"`
	// SnapshotTTL bounds provider-level snapshot freshness; the stale
	// fallback grace window is StaleGraceFactor times this value.
	SnapshotTTL      time.Duration `env:"MARKET_SNAPSHOT_TTL,default=30s" yaml:"snapshot_ttl"`
	StaleGraceFactor int           `env:"MARKET_STALE_GRACE_FACTOR,default=10" yaml:"stale_grace_factor"`
	RatePerSecond    float64       `env:"MARKET_RATE_PER_SECOND,default=5" yaml:"rate_per_second"`
	RateBurst        int           `env:"MARKET_RATE_BURST,default=10" yaml:"rate_burst"`
}

// OrchestratorConfig configures dataset derivation and refresh.
type OrchestratorConfig struct {
	CacheTTL      time.Duration `env:"ORCH_CACHE_TTL,default=30s" yaml:"cache_ttl"`
	RetryAttempts int           `env:"ORCH_RETRY_ATTEMPTS,default=3" yaml:"retry_attempts"`
	RetryBase     time.Duration `env:"ORCH_RETRY_BASE,default=1s" yaml:"retry_base"`
	// RefreshSpec is a cron spec driving the background refresh cycle.
	RefreshSpec string `env:"ORCH_REFRESH_SPEC,default=@every 30s" yaml:"refresh_spec"`
}

// CacheConfig selects the cache backend.
type CacheConfig struct {
	// Backend is "memory" (default) or "redis".
	Backend       string `env:"CACHE_BACKEND,default=memory" yaml:"backend"`
	RedisAddr     string `env:"CACHE_REDIS_ADDR,default=localhost:6379" yaml:"redis_addr"`
	RedisPassword string `env:"CACHE_REDIS_PASSWORD" yaml:"redis_password"`
	RedisDB       int    `env:"CACHE_REDIS_DB,default=0" yaml:"redis_db"`
}

// ChartConfig sets the default rendering surface.
type ChartConfig struct {
	Width            int     `env:"CHART_WIDTH,default=1200" yaml:"width"`
	Height           int     `env:"CHART_HEIGHT,default=600" yaml:"height"`
	DevicePixelRatio float64 `env:"CHART_DPR,default=1" yaml:"device_pixel_ratio"`
	FrameRate        int     `env:"CHART_FRAME_RATE,default=30" yaml:"frame_rate"`
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=json" yaml:"format"`
}

// Config is the full application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Market       MarketConfig       `yaml:"market"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Cache        CacheConfig        `yaml:"cache"`
	Chart        ChartConfig        `yaml:"chart"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// Load reads the optional YAML file named by CONFIG_FILE and then applies
// environment variables on top.
func Load() (*Config, error) {
	cfg := &Config{}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Market.SnapshotTTL <= 0 {
		return fmt.Errorf("market snapshot TTL must be positive")
	}
	if c.Market.StaleGraceFactor < 1 {
		return fmt.Errorf("market stale grace factor must be at least 1")
	}
	if c.Orchestrator.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1")
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Chart.Width <= 0 || c.Chart.Height <= 0 {
		return fmt.Errorf("chart dimensions must be positive")
	}
	if c.Chart.DevicePixelRatio <= 0 {
		return fmt.Errorf("device pixel ratio must be positive")
	}
	return nil
}
