package app

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/shopbot/core/config"
	"github.com/m3rciful/shopbot/core/database"
	"github.com/m3rciful/shopbot/internal/conversation"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// RedisConfig holds connection settings for the redis store backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// StoreConfig selects where shopping lists live.
type StoreConfig struct {
	Backend string      `yaml:"backend" envconfig:"STORE_BACKEND"`
	Redis   RedisConfig `yaml:"redis"`
}

// DialogsConfig holds idle timeouts in seconds per dialog type.
type DialogsConfig struct {
	AddItemsTimeoutSeconds int `yaml:"add_items_timeout_seconds" envconfig:"DIALOG_ADD_ITEMS_TIMEOUT_SECONDS"`
	ShoppingTimeoutSeconds int `yaml:"shopping_timeout_seconds" envconfig:"DIALOG_SHOPPING_TIMEOUT_SECONDS"`
	SwapTimeoutSeconds     int `yaml:"swap_timeout_seconds" envconfig:"DIALOG_SWAP_TIMEOUT_SECONDS"`
}

// Timeouts converts the configured seconds into conversation timeouts.
func (d DialogsConfig) Timeouts() conversation.Timeouts {
	return conversation.Timeouts{
		AddItems: time.Duration(d.AddItemsTimeoutSeconds) * time.Second,
		Shopping: time.Duration(d.ShoppingTimeoutSeconds) * time.Second,
		Swap:     time.Duration(d.SwapTimeoutSeconds) * time.Second,
	}
}

// Config is the shopbot configuration: the reusable core plus storage and dialog settings.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database database.Config `yaml:"database"`
	Store    StoreConfig     `yaml:"store"`
	Dialogs  DialogsConfig   `yaml:"dialogs"`
}

// LoadConfig reads path (optional) and the environment into a validated Config.
// Overrides run after decoding and before validation, e.g. for CLI flags.
func LoadConfig(path string, overrides ...func(*Config)) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates the configuration and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}

	backend := strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if backend == "" {
		backend = BackendMemory
	}
	switch backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		// the SQL backend follows the store choice unless the driver is set explicitly
		if c.Database.Driver == "" {
			c.Database.Driver = backend
		}
		if c.Database.DriverName() != backend {
			return fmt.Errorf("store.backend %q conflicts with database.driver %q", backend, c.Database.Driver)
		}
	case BackendRedis:
		if strings.TrimSpace(c.Store.Redis.Addr) == "" {
			c.Store.Redis.Addr = "localhost:6379"
		}
		if c.Store.Redis.DB < 0 {
			return fmt.Errorf("store.redis.db must be >= 0")
		}
	default:
		return fmt.Errorf("invalid store.backend %q; allowed: memory, sqlite, postgres, redis", c.Store.Backend)
	}
	c.Store.Backend = backend

	if c.Database.DriverName() == database.DriverSQLite && c.Database.Path == "" {
		c.Database.Path = "shopbot.db"
	}
	if c.Database.DriverName() == database.DriverPostgres && c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.Dialogs.AddItemsTimeoutSeconds <= 0 {
		c.Dialogs.AddItemsTimeoutSeconds = 60
	}
	if c.Dialogs.ShoppingTimeoutSeconds <= 0 {
		c.Dialogs.ShoppingTimeoutSeconds = 300
	}
	if c.Dialogs.SwapTimeoutSeconds <= 0 {
		c.Dialogs.SwapTimeoutSeconds = 120
	}
	return nil
}

// UsesSQL reports whether the store needs a database connection.
func (c *Config) UsesSQL() bool {
	return c.Store.Backend == BackendSQLite || c.Store.Backend == BackendPostgres
}
