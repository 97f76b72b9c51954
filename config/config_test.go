package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"default", func(c *Config) {}, true},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }, false},
		{"mysql without dsn", func(c *Config) { c.Store.Type = "mysql" }, false},
		{"mysql with dsn", func(c *Config) {
			c.Store.Type = "mysql"
			c.Store.DSN = "copy:copy@tcp(localhost:3306)/copydesk?parseTime=true"
		}, true},
		{"unknown store type", func(c *Config) { c.Store.Type = "postgres" }, false},
		{"master enabled without creds", func(c *Config) { c.Master.Enabled = true }, false},
		{"master enabled with creds", func(c *Config) {
			c.Master.Enabled = true
			c.Master.Email = "master@example.com"
			c.Master.Password = "hunter2"
		}, true},
		{"telegram enabled without token", func(c *Config) { c.Telegram.Enabled = true }, false},
		{"zero risk percent", func(c *Config) { c.Risk.DefaultPercent = 0 }, false},
		{"absurd risk percent", func(c *Config) { c.Risk.DefaultPercent = 250 }, false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copydesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level: debug
store:
  type: sqlite
  path: /tmp/test.db
master:
  enabled: true
  email: master@example.com
  password: hunter2
  server: DEMO-1
  poll_interval: 2s
risk:
  default_percent: 0.5
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/test.db", cfg.Store.Path)
	assert.True(t, cfg.Master.Enabled)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.Master.PollInterval))
	assert.InDelta(t, 0.5, cfg.Risk.DefaultPercent, 1e-9)
	// untouched sections keep their defaults
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
}

func TestLoadFromFileEnvOverlay(t *testing.T) {
	t.Setenv("COPYDESK_TELEGRAM_TOKEN", "tok-from-env")

	path := filepath.Join(t.TempDir(), "copydesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
telegram:
  enabled: true
`), 0o600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-from-env", cfg.Telegram.Token)
}

func TestLoadFromFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copydesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`store: {type: "nope"}`), 0o600))

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "copydesk.yaml")
	want := Default()
	want.LogLevel = "warn"
	require.NoError(t, want.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", got.LogLevel)
	assert.Equal(t, want.Store, got.Store)
}
