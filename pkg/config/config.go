// Package config loads tripsync daemon configuration with viper.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (TRIPSYNC_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreBadger = "badger"
	StoreRedis  = "redis"
)

// Config is the daemon configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging"`

	// Store selects and configures the key-value persistence backend.
	Store StoreConfig `mapstructure:"store"`

	// Connectivity configures the interface poller.
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`

	// Queue configures retry-queue timing.
	Queue QueueConfig `mapstructure:"queue"`

	// Server configures the HTTP control/status API.
	Server ServerConfig `mapstructure:"server"`

	// Metrics configures the Prometheus listener.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Cache configures staleness reporting.
	Cache CacheConfig `mapstructure:"cache"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "badger" (embedded, default) or "redis" (shared).
	Backend string `mapstructure:"backend"`
	// Namespace scopes every key written by this process.
	Namespace string `mapstructure:"namespace"`
	// BadgerDir is the on-disk location for the embedded backend.
	BadgerDir string `mapstructure:"badger_dir"`
	// RedisAddr is the host:port of the shared backend.
	RedisAddr string `mapstructure:"redis_addr"`
}

// ConnectivityConfig configures the interface poller.
type ConnectivityConfig struct {
	// PollInterval is how often the default source re-reads interfaces.
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// QueueConfig configures retry-queue timing.
type QueueConfig struct {
	// DrainDebounce coalesces drain triggers.
	DrainDebounce time.Duration `mapstructure:"drain_debounce"`
	// BackoffBase is the first inter-attempt delay.
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	// BackoffCap bounds the exponential delay growth.
	BackoffCap time.Duration `mapstructure:"backoff_cap"`
}

// ServerConfig configures the HTTP control/status API.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8083".
	Addr string `mapstructure:"addr"`
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	// Addr is the listen address, e.g. ":8084".
	Addr string `mapstructure:"addr"`
}

// CacheConfig configures staleness reporting.
type CacheConfig struct {
	// MaxAge is how old the last-online timestamp may be before cached
	// data is reported stale.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("logging.level", "info")
	v.SetDefault("store.backend", StoreBadger)
	v.SetDefault("store.namespace", "tripsyncd")
	v.SetDefault("store.badger_dir", "/var/lib/tripsync")
	v.SetDefault("store.redis_addr", "127.0.0.1:6379")
	v.SetDefault("connectivity.poll_interval", 5*time.Second)
	v.SetDefault("queue.drain_debounce", 250*time.Millisecond)
	v.SetDefault("queue.backoff_base", 200*time.Millisecond)
	v.SetDefault("queue.backoff_cap", 4*time.Second)
	v.SetDefault("server.addr", ":8083")
	v.SetDefault("metrics.addr", ":8084")
	v.SetDefault("cache.max_age", time.Hour)

	v.SetEnvPrefix("TRIPSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBadger, StoreRedis:
	default:
		return fmt.Errorf("unknown store backend %q (want %q or %q)", c.Store.Backend, StoreBadger, StoreRedis)
	}
	if c.Queue.BackoffBase <= 0 {
		return fmt.Errorf("queue.backoff_base must be positive, got %s", c.Queue.BackoffBase)
	}
	if c.Queue.BackoffCap < c.Queue.BackoffBase {
		return fmt.Errorf("queue.backoff_cap (%s) must be >= queue.backoff_base (%s)", c.Queue.BackoffCap, c.Queue.BackoffBase)
	}
	return nil
}
