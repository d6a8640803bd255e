package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/presence"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// Config is the full service configuration, read from the environment.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:"0.0.0.0:3001"`

	Database    database.Config
	Tables      repo.Tables
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	Token token.Config

	GoogleClientID string `env:"GOOGLE_CLIENT_ID"`
	// CLIENT_ID is the older name for the Google audience.
	ClientID string `env:"CLIENT_ID"`

	Presence      presence.Config
	SnowflakeNode int64 `env:"SNOWFLAKE_NODE" envDefault:"1"`

	Log utilities.Config
}

// Load reads .env files (if present) and then the process environment.
// Real environment variables win over .env entries.
func Load(files ...string) (*Config, error) {
	// best-effort: a missing .env is not an error
	_ = godotenv.Load(files...)
	return Parse()
}

// Parse reads the process environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.GoogleClientID == "" {
		cfg.GoogleClientID = cfg.ClientID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Token.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Token.TTL < 0 {
		return errors.New("JWT_EXPIRATION must not be negative")
	}
	if c.SnowflakeNode < 0 || c.SnowflakeNode > 1023 {
		return fmt.Errorf("SNOWFLAKE_NODE must be in [0, 1023], got %d", c.SnowflakeNode)
	}
	switch c.Database.Driver {
	case database.DriverPostgres, database.DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}
