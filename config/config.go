// Package config loads engine settings with viper: defaults, an optional
// YAML file, then ACTUALS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/warp/actuals-engine/api"
)

// EnvPrefix is prepended to every environment override, e.g. ACTUALS_PORT.
const EnvPrefix = "ACTUALS"

// Config holds all configurable values for the engine.
type Config struct {
	Env         string         `mapstructure:"env"`
	Port        int            `mapstructure:"port"`
	DBPath      string         `mapstructure:"db_path"`
	CORSOrigins []string       `mapstructure:"cors_origins"`
	Matching    MatchingConfig `mapstructure:"matching"`
	Backend     BackendConfig  `mapstructure:"backend"`
}

// MatchingConfig points at the activity-matching oracle. Client
// credentials are optional; without them requests go out unauthenticated.
type MatchingConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	TokenURL     string        `mapstructure:"token_url"`
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// BackendConfig points at a remote persistence API used by the CLI.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether an oracle is configured.
func (m MatchingConfig) Enabled() bool { return m.BaseURL != "" }

// UsesClientCredentials reports whether the oracle calls need a token.
func (m MatchingConfig) UsesClientCredentials() bool {
	return m.TokenURL != "" && m.ClientID != ""
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

// New returns a viper instance with defaults and env bindings applied.
// Callers may bind CLI flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("env", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "./data/actuals.db")
	v.SetDefault("cors_origins", api.DefaultOrigins)
	v.SetDefault("matching.base_url", "")
	v.SetDefault("matching.token_url", "")
	v.SetDefault("matching.client_id", "")
	v.SetDefault("matching.client_secret", "")
	v.SetDefault("matching.timeout", "30s")
	v.SetDefault("backend.base_url", "")
	v.SetDefault("backend.timeout", "10s")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and decodes the
// result. An empty path skips the file; a missing file is an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.Matching.ClientID != "" && c.Matching.TokenURL == "" {
		return errors.New("matching.token_url is required with matching.client_id")
	}
	return nil
}
