// Package config loads feed-reader settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robertmeta/feed-reader/logger"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	DBPath  string        `yaml:"db_path"`
	HTTP    HTTPConfig    `yaml:"http"`
	Refresh RefreshConfig `yaml:"refresh"`
	Log     logger.Config `yaml:"log"`
}

// HTTPConfig configures the feed fetcher.
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

// RefreshConfig configures bulk refreshes.
type RefreshConfig struct {
	// Concurrency is the maximum number of feeds fetched at once.
	Concurrency int `yaml:"concurrency"`
	// RatePerSecond caps fetch starts per second. Zero disables the limit.
	RatePerSecond float64 `yaml:"rate_per_second"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DBPath: DefaultDBPath(),
		HTTP: HTTPConfig{
			Timeout:   30 * time.Second,
			UserAgent: "feed-reader/0.1",
		},
		Refresh: RefreshConfig{
			Concurrency: 50,
		},
		Log: logger.Config{
			Level: "warn",
		},
	}
}

// DefaultDBPath returns the database location under the user's config dir.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "feed-reader.db"
	}
	return filepath.Join(home, ".config", "feed-reader", "feed-reader.db")
}

// DefaultPath returns the config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "feed-reader.yaml"
	}
	return filepath.Join(home, ".config", "feed-reader", "config.yaml")
}

// Load reads the config at path on top of the defaults.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http.timeout must not be negative: %s", c.HTTP.Timeout)
	}
	if c.Refresh.Concurrency <= 0 {
		return fmt.Errorf("refresh.concurrency must be positive: %d", c.Refresh.Concurrency)
	}
	if c.Refresh.RatePerSecond < 0 {
		return fmt.Errorf("refresh.rate_per_second must not be negative: %g", c.Refresh.RatePerSecond)
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}
