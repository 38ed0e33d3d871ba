// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds every setting of the service. Command-line flags override the
// environment for the fields the CLI exposes.
type Config struct {
	Addr      string `env:"MAKERSPACE_ADDR" envDefault:":8080"`
	DBPath    string `env:"MAKERSPACE_DB_PATH" envDefault:"makerledger.sqlite3"`
	Store     string `env:"MAKERSPACE_STORE" envDefault:"sqlite"`
	AdminUser string `env:"MAKERSPACE_ADMIN_USER" envDefault:"Admin"`
	LogPath   string `env:"MAKERSPACE_LOG_PATH"`

	Projects ServiceConfig `envPrefix:"MAKERSPACE_PROJECTS_"`
	Catalog  ServiceConfig `envPrefix:"MAKERSPACE_CATALOG_"`
	Commerce ServiceConfig `envPrefix:"MAKERSPACE_COMMERCE_"`

	ExportConcurrency int           `env:"MAKERSPACE_EXPORT_CONCURRENCY" envDefault:"4"`
	ExportItemTimeout time.Duration `env:"MAKERSPACE_EXPORT_ITEM_TIMEOUT" envDefault:"10s"`

	RedisAddr     string        `env:"MAKERSPACE_REDIS_ADDR"`
	RedisPassword string        `env:"MAKERSPACE_REDIS_PASSWORD"`
	RedisDB       int           `env:"MAKERSPACE_REDIS_DB" envDefault:"0"`
	SKUCacheTTL   time.Duration `env:"MAKERSPACE_SKU_CACHE_TTL" envDefault:"10m"`

	DuplicateThreshold float64 `env:"MAKERSPACE_DUPLICATE_THRESHOLD" envDefault:"0.8"`

	OTelEndpoint string `env:"MAKERSPACE_OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"MAKERSPACE_OTEL_ENABLED" envDefault:"true"`
}

// ServiceConfig locates an external HTTP collaborator.
type ServiceConfig struct {
	BaseURL string        `env:"URL"`
	Token   string        `env:"TOKEN"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
}

// Load reads an optional .env file and then the environment.
func Load(dotenvFiles ...string) (Config, error) {
	if err := godotenv.Load(dotenvFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c Config) Validate() error {
	switch {
	case c.Store != StoreSQLite && c.Store != StoreMemory:
		return fmt.Errorf("invalid store %q: want %s or %s", c.Store, StoreSQLite, StoreMemory)
	case c.ExportConcurrency < 1:
		return fmt.Errorf("export concurrency must be at least 1, got %d", c.ExportConcurrency)
	case c.ExportItemTimeout <= 0:
		return fmt.Errorf("export item timeout must be positive")
	case c.DuplicateThreshold <= 0 || c.DuplicateThreshold > 1:
		return fmt.Errorf("duplicate threshold must be in (0, 1], got %v", c.DuplicateThreshold)
	}
	return nil
}
