// Package config defines the top-level configuration for the aggregator and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by AGGBOOK_* environment variables.
type Config struct {
	Symbol   string       `toml:"symbol"`
	LogLevel string       `toml:"log_level"`
	Server   ServerConfig `toml:"server"`
	Stream   StreamConfig `toml:"stream"`
	Venues   VenuesConfig `toml:"venues"`
	Redis    RedisConfig  `toml:"redis"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port int `toml:"port"`
}

// StreamConfig holds fanout and snapshot parameters.
type StreamConfig struct {
	// MaxQueue is the per-subscriber pending frame budget. A subscriber whose
	// queue fills is disconnected rather than sent a gapped stream.
	MaxQueue int `toml:"max_queue"`
	// SnapshotDepth is the number of levels per side exposed by read queries.
	SnapshotDepth int `toml:"snapshot_depth"`
}

// VenueConfig holds one exchange connection's parameters. MarketSymbol is the
// symbol in the venue's own notation (e.g. "BTC/USD" on Kraken for "BTCUSDT").
type VenueConfig struct {
	Enabled      bool   `toml:"enabled"`
	Endpoint     string `toml:"endpoint"`
	MarketSymbol string `toml:"market_symbol"`
}

// VenuesConfig holds the per-exchange feed configuration.
type VenuesConfig struct {
	Binance   VenueConfig `toml:"binance"`
	Kraken    VenueConfig `toml:"kraken"`
	Cryptocom VenueConfig `toml:"cryptocom"`
}

// RedisConfig holds the optional book mirror's connection parameters.
type RedisConfig struct {
	Enabled      bool     `toml:"enabled"`
	Addr         string   `toml:"addr"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	DialTimeout  duration `toml:"dial_timeout"`
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Symbol:   "BTCUSDT",
		LogLevel: "info",
		Server: ServerConfig{
			Port: 8080,
		},
		Stream: StreamConfig{
			MaxQueue:      4096,
			SnapshotDepth: 50,
		},
		Venues: VenuesConfig{
			Binance: VenueConfig{
				Enabled:      true,
				Endpoint:     "wss://data-stream.binance.vision:9443",
				MarketSymbol: "btcusdt",
			},
			Kraken: VenueConfig{
				Enabled:      true,
				Endpoint:     "wss://ws.kraken.com/v2",
				MarketSymbol: "BTC/USDT",
			},
			Cryptocom: VenueConfig{
				Enabled:      true,
				Endpoint:     "wss://stream.crypto.com/exchange/v1/market",
				MarketSymbol: "BTCUSD-PERP",
			},
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     10,
			DialTimeout:  duration{5 * time.Second},
			ReadTimeout:  duration{3 * time.Second},
			WriteTimeout: duration{3 * time.Second},
		},
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Symbol) == "" {
		errs = append(errs, "symbol must not be empty")
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if c.Stream.MaxQueue < 1 {
		errs = append(errs, "stream: max_queue must be >= 1")
	}
	if c.Stream.SnapshotDepth < 1 {
		errs = append(errs, "stream: snapshot_depth must be >= 1")
	}

	for name, v := range map[string]VenueConfig{
		"binance":   c.Venues.Binance,
		"kraken":    c.Venues.Kraken,
		"cryptocom": c.Venues.Cryptocom,
	} {
		if !v.Enabled {
			continue
		}
		if v.Endpoint == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: endpoint must not be empty", name))
		}
		if v.MarketSymbol == "" {
			errs = append(errs, fmt.Sprintf("venues.%s: market_symbol must not be empty", name))
		}
	}
	if !c.Venues.Binance.Enabled && !c.Venues.Kraken.Enabled && !c.Venues.Cryptocom.Enabled {
		errs = append(errs, "venues: at least one venue must be enabled")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
