// Package cliconfig loads and saves the trackctl configuration file.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL  string        `yaml:"base_url,omitempty"`
	Token    string        `yaml:"token,omitempty"`
	ArtistID string        `yaml:"artist_id,omitempty"`
	Timeouts TimeoutConfig `yaml:"timeouts,omitempty"`
}

// TimeoutConfig holds durations parseable by time.ParseDuration ("5m", "30s").
type TimeoutConfig struct {
	HTTP  string `yaml:"http,omitempty"`
	Watch string `yaml:"watch,omitempty"`
}

const (
	DefaultBaseURL = "http://localhost:8080"

	EnvBaseURL = "TRACKCTL_API_URL"
	EnvToken   = "TRACKCTL_TOKEN"

	DefaultHTTPTimeout  = 5 * time.Minute
	DefaultWatchTimeout = 10 * time.Minute
)

// Keys lists the values accepted by Set.
var Keys = []string{"base_url", "token", "artist_id", "timeouts.http", "timeouts.watch"}

func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "trackctl"), nil
}

func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file if it exists and applies environment overrides.
func Load() (*Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}

	// Environment variables take precedence over the file.
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		cfg.Token = v
	}
	return cfg, nil
}

// LoadFile reads only the config file, falling back to defaults when it is missing.
func LoadFile() (*Config, error) {
	cfg := &Config{BaseURL: DefaultBaseURL}

	path, err := Path()
	if err != nil {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return cfg, nil
}

func (c *Config) Save() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := Path()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Set assigns a single key. Durations are validated before they are stored.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "base_url":
		if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			return fmt.Errorf("base_url must start with http:// or https://")
		}
		c.BaseURL = strings.TrimSuffix(value, "/")
	case "token":
		c.Token = value
	case "artist_id":
		c.ArtistID = value
	case "timeouts.http", "timeouts.watch":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration %q: %w", value, err)
		}
		if key == "timeouts.http" {
			c.Timeouts.HTTP = value
		} else {
			c.Timeouts.Watch = value
		}
	default:
		return fmt.Errorf("unknown key %q (valid keys: %s)", key, strings.Join(Keys, ", "))
	}
	return nil
}

func (c *Config) IsAuthenticated() bool {
	return c.Token != ""
}

// GetTimeout returns the configured timeout for "http" or "watch", or its default.
func (c *Config) GetTimeout(name string) time.Duration {
	var raw string
	var def time.Duration

	switch name {
	case "http":
		raw, def = c.Timeouts.HTTP, DefaultHTTPTimeout
	case "watch":
		raw, def = c.Timeouts.Watch, DefaultWatchTimeout
	default:
		return DefaultHTTPTimeout
	}

	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
