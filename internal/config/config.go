// Package config loads the back-office configuration from a YAML file with
// environment overrides for deployment credentials.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the back office.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Storage  StorageConfig  `yaml:"storage"`
	Settings SettingsConfig `yaml:"settings"`
	Audit    AuditConfig    `yaml:"audit"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RatePerSecond  int      `yaml:"rate_per_second"`
	RateBurst      int      `yaml:"rate_burst"`
}

// AuthConfig configures admin authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is one of supabase, postgres, memory.
	Backend  string         `yaml:"backend"`
	Supabase SupabaseConfig `yaml:"supabase"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SupabaseConfig holds hosted database credentials.
type SupabaseConfig struct {
	URL        string        `yaml:"url"`
	ServiceKey string        `yaml:"service_key"`
	Timeout    time.Duration `yaml:"timeout"`
}

// PostgresConfig holds the self-hosted database DSN.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// SettingsConfig tunes the settings cache and its poll fallback loop.
type SettingsConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// AuditConfig tunes audit log retention.
type AuditConfig struct {
	RetentionDays int    `yaml:"retention_days"`
	PruneSchedule string `yaml:"prune_schedule"`
}

// RedisConfig configures the cross-process broadcast bridge. An empty Addr
// disables the bridge.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Channel  string `yaml:"channel"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
			RatePerSecond:  10,
			RateBurst:      20,
		},
		Storage: StorageConfig{
			Backend:  "supabase",
			Supabase: SupabaseConfig{Timeout: 30 * time.Second},
		},
		Settings: SettingsConfig{
			PollInterval: 5 * time.Second,
			FetchTimeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			RetentionDays: 90,
			PruneSchedule: "@daily",
		},
		Redis: RedisConfig{
			Channel: "apex:broadcast",
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load reads the configuration from path, applies environment overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads from path, falling back to the environment-overridden
// defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		cfg := Default()
		cfg.applyEnv()
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Storage.Supabase.URL = v
	}
	if v := os.Getenv("SUPABASE_SERVICE_KEY"); v != "" {
		c.Storage.Supabase.ServiceKey = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "supabase":
		if c.Storage.Supabase.URL == "" {
			return fmt.Errorf("storage.supabase.url is required for the supabase backend")
		}
		if c.Storage.Supabase.ServiceKey == "" {
			return fmt.Errorf("storage.supabase.service_key is required for the supabase backend")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be supabase, postgres, or memory (got %q)", c.Storage.Backend)
	}

	if c.Settings.PollInterval <= 0 {
		return fmt.Errorf("settings.poll_interval must be positive")
	}
	if c.Settings.FetchTimeout <= 0 {
		return fmt.Errorf("settings.fetch_timeout must be positive")
	}
	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit.retention_days must not be negative")
	}
	return nil
}
