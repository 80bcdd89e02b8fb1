// Package config loads the registry server configuration from an optional
// YAML file and FACILITY_REGISTRY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, with "." in keys replaced
// by "_" (database.dsn -> FACILITY_REGISTRY_DATABASE_DSN).
const EnvPrefix = "FACILITY_REGISTRY"

// Config holds every setting of the server. It is loaded once at start-up
// and handed to the components that need it.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Identifier IdentifierConfig `mapstructure:"identifier"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Listen            string        `mapstructure:"listen"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins       []string      `mapstructure:"cors_origins"`
	// SeedLevels is an optional YAML file of level names applied to an
	// empty hierarchy at start-up.
	SeedLevels string `mapstructure:"seed_levels"`
}

// DatabaseConfig selects and tunes the database.
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WebhookConfig configures outbound broadcasts and the inbound endpoint.
type WebhookConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	BroadcastTimeout time.Duration `mapstructure:"broadcast_timeout"`
	Concurrency      int           `mapstructure:"concurrency"`
	InboundEvents    []string      `mapstructure:"inbound_events"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
}

// IdentifierConfig shapes public registry identifiers.
type IdentifierConfig struct {
	Prefix string `mapstructure:"prefix"`
	Width  int    `mapstructure:"width"`
}

// AuthConfig maps caller roles to privileges.
type AuthConfig struct {
	Mode          string   `mapstructure:"mode"`
	AdminRoles    []string `mapstructure:"admin_roles"`
	ApproverRoles []string `mapstructure:"approver_roles"`
}

// AuditConfig configures the API audit trail.
type AuditConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	LogDenied     bool `mapstructure:"log_denied"`
	RetentionDays int  `mapstructure:"retention_days"`
}

// CacheConfig configures the hierarchy read cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Listen:            ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			CORSOrigins:       []string{"*"},
		},
		Database: DatabaseConfig{
			Type:            "postgres",
			MaxOpenConns:    20,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Webhook: WebhookConfig{
			Timeout:          15 * time.Second,
			BroadcastTimeout: 60 * time.Second,
			Concurrency:      8,
			InboundEvents:    []string{"facility.created", "facility.updated", "facility.deleted"},
			MaxBodyBytes:     1 << 20,
		},
		Identifier: IdentifierConfig{Prefix: "HF", Width: 6},
		Auth: AuthConfig{
			Mode:          "roles",
			AdminRoles:    []string{"admin"},
			ApproverRoles: []string{"moh", "planning"},
		},
		Audit: AuditConfig{Enabled: true, RetentionDays: 90},
		Cache: CacheConfig{Enabled: true, TTL: 30 * time.Second, MaxSize: 1024},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.read_header_timeout", d.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)
	v.SetDefault("server.seed_levels", d.Server.SeedLevels)

	v.SetDefault("database.type", d.Database.Type)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("database.max_open_conns", d.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.Database.ConnMaxLifetime)

	v.SetDefault("webhook.timeout", d.Webhook.Timeout)
	v.SetDefault("webhook.broadcast_timeout", d.Webhook.BroadcastTimeout)
	v.SetDefault("webhook.concurrency", d.Webhook.Concurrency)
	v.SetDefault("webhook.inbound_events", d.Webhook.InboundEvents)
	v.SetDefault("webhook.max_body_bytes", d.Webhook.MaxBodyBytes)

	v.SetDefault("identifier.prefix", d.Identifier.Prefix)
	v.SetDefault("identifier.width", d.Identifier.Width)

	v.SetDefault("auth.mode", d.Auth.Mode)
	v.SetDefault("auth.admin_roles", d.Auth.AdminRoles)
	v.SetDefault("auth.approver_roles", d.Auth.ApproverRoles)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.log_denied", d.Audit.LogDenied)
	v.SetDefault("audit.retention_days", d.Audit.RetentionDays)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.max_size", d.Cache.MaxSize)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Type {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.type must be postgres, mysql or sqlite, got %q", c.Database.Type))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Server.ReadHeaderTimeout <= 0 {
		errs = append(errs, errors.New("server.read_header_timeout must be positive"))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Webhook.Timeout <= 0 {
		errs = append(errs, errors.New("webhook.timeout must be positive"))
	}
	if c.Webhook.BroadcastTimeout <= 0 {
		errs = append(errs, errors.New("webhook.broadcast_timeout must be positive"))
	}
	if c.Webhook.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("webhook.max_body_bytes must be positive"))
	}
	if c.Identifier.Prefix == "" {
		errs = append(errs, errors.New("identifier.prefix is required"))
	}
	if c.Identifier.Width < 1 {
		errs = append(errs, fmt.Errorf("identifier.width must be at least 1, got %d", c.Identifier.Width))
	}
	if c.Cache.Enabled && (c.Cache.TTL <= 0 || c.Cache.MaxSize <= 0) {
		errs = append(errs, errors.New("cache.ttl and cache.max_size must be positive when the cache is enabled"))
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, errors.New("audit.retention_days must not be negative"))
	}
	return errors.Join(errs...)
}
