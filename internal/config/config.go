// Package config loads the daemon configuration from an optional YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Schedule ScheduleConfig `yaml:"schedule"`
	AniList  AniListConfig  `yaml:"anilist"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig names the destination store. URL is either a
// postgres:// DSN or a SQLite file path. It has no default.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// ScheduleConfig configures the sync tick and the due-page lookahead.
type ScheduleConfig struct {
	Interval  string `yaml:"interval"`
	Lookahead string `yaml:"lookahead"`
}

// ParseInterval returns the tick interval as time.Duration.
func (s ScheduleConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(s.Interval)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// ParseLookahead returns the due-page lookahead as time.Duration.
func (s ScheduleConfig) ParseLookahead() time.Duration {
	d, err := time.ParseDuration(s.Lookahead)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// AniListConfig configures the upstream API client.
type AniListConfig struct {
	URL       string   `yaml:"url"`
	PerPage   int      `yaml:"per_page"`
	Formats   []string `yaml:"formats"`
	UserAgent string   `yaml:"user_agent"`
}

// ServerConfig configures the status/metrics HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a Config with sensible defaults. The database URL
// stays empty on purpose: it is required and must come from the file
// or the environment.
func Default() *Config {
	return &Config{
		Schedule: ScheduleConfig{
			Interval:  "15m",
			Lookahead: "24h",
		},
		AniList: AniListConfig{
			PerPage: 50,
		},
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file, applies env overrides,
// and validates required values.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required (set ANISYNC_DATABASE_URL)")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANISYNC_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("ANISYNC_INTERVAL"); v != "" {
		cfg.Schedule.Interval = v
	}
	if v := os.Getenv("ANISYNC_LOOKAHEAD"); v != "" {
		cfg.Schedule.Lookahead = v
	}
	if v := os.Getenv("ANISYNC_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ANISYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
