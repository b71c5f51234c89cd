// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the server settings
type Config struct {
	HTTPAddr            string        `env:"HTTP_ADDR"              envDefault:":8080"`
	DBPath              string        `env:"DB_PATH"                envDefault:"./data/bukber.db"`
	AdminSecret         string        `env:"ADMIN_SECRET"`
	AdminSecretHash     string        `env:"ADMIN_SECRET_HASH"`
	AdminTokenKey       string        `env:"ADMIN_TOKEN_KEY"`
	AdminTokenTTL       time.Duration `env:"ADMIN_TOKEN_TTL"        envDefault:"12h"`
	LotteryPrefix       string        `env:"LOTTERY_PREFIX"`
	LogLevel            string        `env:"LOG_LEVEL"              envDefault:"info"`
	LoginRatePerMinute  int           `env:"LOGIN_RATE_PER_MINUTE"  envDefault:"5"`
	VerifyRatePerMinute int           `env:"VERIFY_RATE_PER_MINUTE" envDefault:"10"`
}

// Load reads the config from the process environment
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom reads the config from the given variables instead of the process environment
func LoadFrom(vars map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks required and bounded settings
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("HTTP_ADDR is required")
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("DB_PATH is required")
	}
	if c.AdminSecret == "" && c.AdminSecretHash == "" {
		return errors.New("ADMIN_SECRET or ADMIN_SECRET_HASH is required")
	}
	if strings.TrimSpace(c.AdminTokenKey) == "" {
		return errors.New("ADMIN_TOKEN_KEY is required")
	}
	if c.AdminTokenTTL <= 0 {
		return errors.New("ADMIN_TOKEN_TTL must be positive")
	}
	if c.LoginRatePerMinute < 1 {
		return errors.New("LOGIN_RATE_PER_MINUTE must be at least 1")
	}
	if c.VerifyRatePerMinute < 1 {
		return errors.New("VERIFY_RATE_PER_MINUTE must be at least 1")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
