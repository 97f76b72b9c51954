// Package config loads the service configuration from YAML with an
// optional .env overlay for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration makes human-friendly values like "2s" or "500ms" usable in
// the YAML file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	Type string `yaml:"type"` // "sqlite" or "mysql"
	Path string `yaml:"path"` // sqlite file
	DSN  string `yaml:"dsn"`  // mysql connection string
}

// MasterConfig describes the master account to mirror.
type MasterConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Email        string   `yaml:"email"`
	Password     string   `yaml:"password"`
	Server       string   `yaml:"server"`
	BrokerURL    string   `yaml:"broker_url"`
	PollInterval Duration `yaml:"poll_interval"`
}

// TelegramConfig enables the chat intake.
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// BroadcastConfig enables the dashboard websocket feed.
type BroadcastConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// MetricsConfig enables the Prometheus listener.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// RiskConfig sets the sizing defaults applied when a signal carries no
// risk of its own.
type RiskConfig struct {
	DefaultPercent float64 `yaml:"default_percent"`
	LotStep        float64 `yaml:"lot_step"`
}

// Config is the whole service configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	Store     StoreConfig     `yaml:"store"`
	Master    MasterConfig    `yaml:"master"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Risk      RiskConfig      `yaml:"risk"`
}

// Default returns a configuration that runs out of the box with a
// local SQLite file and everything optional switched off.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Store: StoreConfig{
			Type: "sqlite",
			Path: "copydesk.db",
		},
		Master: MasterConfig{
			PollInterval: Duration(time.Second),
		},
		Broadcast: BroadcastConfig{Addr: ":8090"},
		Metrics:   MetricsConfig{Addr: ":9100"},
		Risk: RiskConfig{
			DefaultPercent: 1.0,
			LotStep:        0.01,
		},
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	case "mysql":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for mysql")
		}
	default:
		return fmt.Errorf("unknown store.type %q", c.Store.Type)
	}

	if c.Master.Enabled {
		if c.Master.Email == "" || c.Master.Password == "" {
			return fmt.Errorf("master.email and master.password are required when master.enabled")
		}
		if c.Master.PollInterval < 0 {
			return fmt.Errorf("master.poll_interval must not be negative")
		}
	}

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required when telegram.enabled")
	}

	if c.Risk.DefaultPercent <= 0 || c.Risk.DefaultPercent > 100 {
		return fmt.Errorf("risk.default_percent must be in (0, 100]")
	}
	return nil
}

// LoadFromFile reads a YAML config, overlays secrets from the
// environment and validates the result. A .env file next to the
// working directory is applied first when present.
func LoadFromFile(path string) (*Config, error) {
	// missing .env is fine, explicit environment still applies
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML, used by `copydesk
// config init`.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// applyEnv lets secrets live outside the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("COPYDESK_TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("COPYDESK_MASTER_EMAIL"); v != "" {
		c.Master.Email = v
	}
	if v := os.Getenv("COPYDESK_MASTER_PASSWORD"); v != "" {
		c.Master.Password = v
	}
	if v := os.Getenv("COPYDESK_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
}
