package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Reindexer   ReindexerConfig   `mapstructure:"reindexer"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Catalog     CatalogConfig     `mapstructure:"catalog"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      int           `mapstructure:"rate_limit"` // requests per minute
}

// DatabaseConfig contains the primary store configuration
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver"` // postgres | sqlite
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`
}

// ReindexerConfig contains the listing read model configuration
type ReindexerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DSN            string `mapstructure:"dsn"`
	Namespace      string `mapstructure:"namespace"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// CacheConfig contains cache configuration
type CacheConfig struct {
	Shards int `mapstructure:"shards"`
	TTL    int `mapstructure:"ttl"` // TTL in seconds
}

// ConcurrencyConfig contains concurrency settings
type ConcurrencyConfig struct {
	MaxOps              int `mapstructure:"max_ops"`
	NormalizerWorkers   int `mapstructure:"normalizer_workers"`
	NormalizerQueueSize int `mapstructure:"normalizer_queue_size"`
	ScopeLockStripes    int `mapstructure:"scope_lock_stripes"`
}

// CatalogConfig contains catalog rules
type CatalogConfig struct {
	// TopicCategoryID is the category of topics that do not name one
	TopicCategoryID int64 `mapstructure:"topic_category_id"`
}

// LogConfig contains logger settings
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Get returns the singleton configuration instance
func Get() *Config {
	once.Do(func() {
		mu.Lock()
		if instance == nil {
			instance = &Config{}
		}
		mu.Unlock()
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Load initializes and loads configuration from file and environment variables
func Load(configPath string) error {
	mu.Lock()
	defer mu.Unlock()
	return load(configPath)
}

func load(configPath string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal configuration
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	instance = cfg
	return nil
}

// setDefaults sets default configuration values. Every key has a default,
// which also lets AutomaticEnv override it as APP_SECTION_KEY.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.rate_limit", 600)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:cms.db?_pragma=busy_timeout(5000)")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.lock_timeout", 5*time.Second)

	// Reindexer defaults
	// Используем cproto протокол (требует CGO) - RPC/TCP порт 6534
	v.SetDefault("reindexer.enabled", false)
	v.SetDefault("reindexer.dsn", "cproto://localhost:6534/cms")
	v.SetDefault("reindexer.namespace", "scope_listings")
	v.SetDefault("reindexer.max_connections", 10)

	// Cache defaults
	v.SetDefault("cache.shards", 16)
	v.SetDefault("cache.ttl", 900)

	// Concurrency defaults
	v.SetDefault("concurrency.max_ops", 50)
	v.SetDefault("concurrency.normalizer_workers", 4)
	v.SetDefault("concurrency.normalizer_queue_size", 100)
	v.SetDefault("concurrency.scope_lock_stripes", 64)

	// Catalog defaults
	v.SetDefault("catalog.topic_category_id", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// validate performs validation on the configuration
func validate(cfg *Config) error {
	// Validate Server
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if cfg.Server.RateLimit < 1 {
		return fmt.Errorf("server.rate_limit must be at least 1")
	}

	// Validate Database
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if cfg.Database.MaxOpenConns < 1 {
		return fmt.Errorf("database.max_open_conns must be at least 1")
	}
	if cfg.Database.LockTimeout < 0 {
		return fmt.Errorf("database.lock_timeout must be non-negative")
	}

	// Validate Reindexer
	if cfg.Reindexer.Enabled {
		if cfg.Reindexer.DSN == "" {
			return fmt.Errorf("reindexer.dsn is required")
		}
		if cfg.Reindexer.Namespace == "" {
			return fmt.Errorf("reindexer.namespace is required")
		}
		if cfg.Reindexer.MaxConnections < 1 {
			return fmt.Errorf("reindexer.max_connections must be at least 1")
		}
	}

	// Validate Cache
	if cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative")
	}

	// Validate Concurrency
	if cfg.Concurrency.MaxOps < 1 {
		return fmt.Errorf("concurrency.max_ops must be at least 1")
	}
	if cfg.Concurrency.NormalizerWorkers < 1 {
		return fmt.Errorf("concurrency.normalizer_workers must be at least 1")
	}
	if cfg.Concurrency.NormalizerQueueSize < 1 {
		return fmt.Errorf("concurrency.normalizer_queue_size must be at least 1")
	}
	if cfg.Concurrency.ScopeLockStripes < 1 {
		return fmt.Errorf("concurrency.scope_lock_stripes must be at least 1")
	}

	// Validate Catalog
	if cfg.Catalog.TopicCategoryID < 0 {
		return fmt.Errorf("catalog.topic_category_id must be non-negative")
	}

	return nil
}

// Reload reloads the configuration (thread-safe)
func Reload(configPath string) error {
	mu.Lock()
	defer mu.Unlock()
	return load(configPath)
}
