package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  type: sqlite
  dsn: file:registry.db
server:
  read_header_timeout: 3s
webhook:
  timeout: 5s
  inbound_events: [facility.created]
identifier:
  prefix: UG
auth:
  approver_roles: [moh]
`), 0o600))

	t.Setenv("FACILITY_REGISTRY_SERVER_LISTEN", ":9090")
	t.Setenv("FACILITY_REGISTRY_IDENTIFIER_WIDTH", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "file:registry.db", cfg.Database.DSN)
	assert.Equal(t, 5*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, []string{"facility.created"}, cfg.Webhook.InboundEvents)
	assert.Equal(t, "UG", cfg.Identifier.Prefix)
	assert.Equal(t, 8, cfg.Identifier.Width)
	assert.Equal(t, ":9090", cfg.Server.Listen)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadHeaderTimeout)
	assert.Equal(t, []string{"moh"}, cfg.Auth.ApproverRoles)

	// Untouched keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, int64(1<<20), cfg.Webhook.MaxBodyBytes)
	assert.Equal(t, []string{"admin"}, cfg.Auth.AdminRoles)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("FACILITY_REGISTRY_DATABASE_DSN", "postgres://registry@localhost/registry")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Type)
	assert.Equal(t, "postgres://registry@localhost/registry", cfg.Database.DSN)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.Database.DSN = "x"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"bad dialect", func(c *Config) { c.Database.Type = "oracle" }, "database.type"},
		{"zero webhook timeout", func(c *Config) { c.Webhook.Timeout = 0 }, "webhook.timeout"},
		{"zero read header timeout", func(c *Config) { c.Server.ReadHeaderTimeout = 0 }, "server.read_header_timeout"},
		{"negative shutdown", func(c *Config) { c.Server.ShutdownTimeout = -time.Second }, "server.shutdown_timeout"},
		{"empty prefix", func(c *Config) { c.Identifier.Prefix = "" }, "identifier.prefix"},
		{"zero width", func(c *Config) { c.Identifier.Width = 0 }, "identifier.width"},
		{"cache without ttl", func(c *Config) { c.Cache.TTL = 0 }, "cache.ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
