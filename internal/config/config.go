// Package config loads service configuration from a YAML file, a .env
// file, and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete wager-engine configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Gateway GatewayConfig `yaml:"gateway"`
	Session SessionConfig `yaml:"session"`
	Prices  PricesConfig  `yaml:"prices"`
	Wager   WagerConfig   `yaml:"wager"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// GatewayConfig selects the data gateway backing the service.
// Precedence: RemoteBase, then DatabaseURL, then in-memory with the demo
// markets seeded.
type GatewayConfig struct {
	RemoteBase      string `yaml:"remote_base"`  // hosted gateway base URL
	DatabaseURL     string `yaml:"database_url"` // postgres DSN
	RedisURL        string `yaml:"redis_url"`    // optional read-through cache
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// SessionConfig controls local session persistence.
type SessionConfig struct {
	Path string `yaml:"path"` // SQLite file, or ":memory:"
}

// PricesConfig controls the market-data pollers.
type PricesConfig struct {
	BaseURL          string   `yaml:"base_url"`
	PollSeconds      int      `yaml:"poll_seconds"`
	AlertPollSeconds int      `yaml:"alert_poll_seconds"`
	TrackedCoins     []string `yaml:"tracked_coins"`
	TopCoins         int      `yaml:"top_coins"`
}

// WagerConfig controls settlement and exposure limits.
type WagerConfig struct {
	TokenSymbol  string  `yaml:"token_symbol"`
	SeedBalance  float64 `yaml:"seed_balance"`
	MaxPerMarket float64 `yaml:"max_per_market"` // 0 disables
	MaxTotal     float64 `yaml:"max_total"`      // 0 disables
}

// LogConfig controls logging level and format.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file at path, then a .env file if present, then
// environment overrides. A missing config file yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// PollInterval returns the market-data poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Prices.PollSeconds) * time.Second
}

// AlertPollInterval returns the alert evaluation interval.
func (c *Config) AlertPollInterval() time.Duration {
	return time.Duration(c.Prices.AlertPollSeconds) * time.Second
}

// CacheTTL returns the read-through cache TTL.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Gateway.CacheTTLSeconds) * time.Second
}

// applyEnvOverrides overrides values from environment variables when set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.RemoteBase = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Gateway.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Gateway.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills required values with sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Gateway.CacheTTLSeconds <= 0 {
		cfg.Gateway.CacheTTLSeconds = 30
	}
	if cfg.Session.Path == "" {
		cfg.Session.Path = "wager-engine.db"
	}
	if cfg.Prices.PollSeconds <= 0 {
		cfg.Prices.PollSeconds = 60
	}
	if cfg.Prices.AlertPollSeconds <= 0 {
		cfg.Prices.AlertPollSeconds = 30
	}
	if len(cfg.Prices.TrackedCoins) == 0 {
		cfg.Prices.TrackedCoins = []string{"bitcoin", "ethereum", "dogecoin"}
	}
	if cfg.Prices.TopCoins <= 0 {
		cfg.Prices.TopCoins = 10
	}
	if cfg.Wager.TokenSymbol == "" {
		cfg.Wager.TokenSymbol = "UDOG"
	}
	if cfg.Wager.SeedBalance <= 0 {
		cfg.Wager.SeedBalance = 1000.0
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}
