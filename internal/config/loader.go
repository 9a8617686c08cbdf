package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AGGBOOK_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and uses defaults plus environment overrides only.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known AGGBOOK_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators adjust deployments without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Top-level ──
	setStr(&cfg.Symbol, "AGGBOOK_SYMBOL")
	setStr(&cfg.LogLevel, "AGGBOOK_LOG_LEVEL")

	// ── Server ──
	setInt(&cfg.Server.Port, "AGGBOOK_SERVER_PORT")

	// ── Stream ──
	setInt(&cfg.Stream.MaxQueue, "AGGBOOK_STREAM_MAX_QUEUE")
	setInt(&cfg.Stream.SnapshotDepth, "AGGBOOK_STREAM_SNAPSHOT_DEPTH")

	// ── Venues ──
	setBool(&cfg.Venues.Binance.Enabled, "AGGBOOK_VENUES_BINANCE_ENABLED")
	setStr(&cfg.Venues.Binance.Endpoint, "AGGBOOK_VENUES_BINANCE_ENDPOINT")
	setStr(&cfg.Venues.Binance.MarketSymbol, "AGGBOOK_VENUES_BINANCE_MARKET_SYMBOL")
	setBool(&cfg.Venues.Kraken.Enabled, "AGGBOOK_VENUES_KRAKEN_ENABLED")
	setStr(&cfg.Venues.Kraken.Endpoint, "AGGBOOK_VENUES_KRAKEN_ENDPOINT")
	setStr(&cfg.Venues.Kraken.MarketSymbol, "AGGBOOK_VENUES_KRAKEN_MARKET_SYMBOL")
	setBool(&cfg.Venues.Cryptocom.Enabled, "AGGBOOK_VENUES_CRYPTOCOM_ENABLED")
	setStr(&cfg.Venues.Cryptocom.Endpoint, "AGGBOOK_VENUES_CRYPTOCOM_ENDPOINT")
	setStr(&cfg.Venues.Cryptocom.MarketSymbol, "AGGBOOK_VENUES_CRYPTOCOM_MARKET_SYMBOL")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AGGBOOK_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AGGBOOK_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "AGGBOOK_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AGGBOOK_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AGGBOOK_REDIS_POOL_SIZE")
	setDuration(&cfg.Redis.DialTimeout, "AGGBOOK_REDIS_DIAL_TIMEOUT")
	setDuration(&cfg.Redis.ReadTimeout, "AGGBOOK_REDIS_READ_TIMEOUT")
	setDuration(&cfg.Redis.WriteTimeout, "AGGBOOK_REDIS_WRITE_TIMEOUT")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
