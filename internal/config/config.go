// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Favorites store backends
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	APIURL    string        `env:"HEAVYMATH_API_URL" envDefault:"http://localhost:3000" validate:"required,url"`
	APIToken  string        `env:"HEAVYMATH_API_TOKEN"`
	Timeout   time.Duration `env:"HEAVYMATH_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	RateLimit float64       `env:"HEAVYMATH_RATE_LIMIT" envDefault:"0" validate:"gte=0"`
	CacheTTL  time.Duration `env:"HEAVYMATH_CACHE_TTL" envDefault:"5m" validate:"gt=0"`

	Stream    StreamConfig
	Favorites FavoritesConfig

	DatabaseURL string `env:"DATABASE_URL"`

	RedisAddr  string `env:"REDIS_ADDR" envDefault:"localhost:6379" validate:"required"`
	RelayQueue string `env:"HEAVYMATH_RELAY_QUEUE" envDefault:"default" validate:"required"`

	// MetricsAddr serves /metrics for the long-running commands when set
	MetricsAddr string `env:"HEAVYMATH_METRICS_ADDR"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// StreamConfig holds event stream settings
type StreamConfig struct {
	AutoReconnect        bool          `env:"HEAVYMATH_STREAM_AUTO_RECONNECT" envDefault:"true"`
	MaxReconnectAttempts int           `env:"HEAVYMATH_STREAM_MAX_RECONNECT_ATTEMPTS" envDefault:"5" validate:"gte=0"`
	ReconnectDelay       time.Duration `env:"HEAVYMATH_STREAM_RECONNECT_DELAY" envDefault:"3s" validate:"gt=0"`
	Channel              string        `env:"HEAVYMATH_STREAM_CHANNEL"`
}

// FavoritesConfig selects where favorites are persisted
type FavoritesConfig struct {
	Store string `env:"HEAVYMATH_FAVORITES_STORE" envDefault:"memory" validate:"oneof=memory file postgres"`
	Path  string `env:"HEAVYMATH_FAVORITES_PATH" envDefault:"~/.heavymath/favorites.json" validate:"required_if=Store file"`
}

// Load reads .env files (default ".env"; missing files are skipped) and then
// the environment. Variables already set win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and cross-field requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Favorites.Store == StorePostgres && c.DatabaseURL == "" {
		return errors.New("invalid config: DATABASE_URL is required for the postgres favorites store")
	}
	return nil
}
