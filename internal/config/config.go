// Package config provides application configuration with multi-source
// priority:
//
//  1. Environment variables (CHATCART_*, runtime override)
//  2. Config file (~/.chatcart/config.yaml)
//  3. Defaults
//
// The health thresholds, cool-down, window TTL and retrieval caps are
// operational tuning constants and deliberately configuration, never code.
// Sensitive fields (the Postgres password) are masked in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel errors, checked with errors.Is().
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrNoProviders indicates no completion provider is configured.
	ErrNoProviders = errors.New("no providers configured")

	// ErrInvalidProvider indicates a provider entry is incomplete.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidFailureRate indicates the health failure-rate is out of range.
	ErrInvalidFailureRate = errors.New("invalid failure rate")

	// ErrInvalidWindowTTL indicates the reference-window TTL is out of range.
	ErrInvalidWindowTTL = errors.New("invalid window TTL")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top-k")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max-tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidPostgres indicates the Postgres settings are incomplete.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL configuration")
)

// ProviderConfig is one entry of the tenant's ordered provider list.
// Credentials are resolved by the external secret store via CredentialRef;
// this core never holds raw keys.
type ProviderConfig struct {
	Name             string  `mapstructure:"name" json:"name"`
	Model            string  `mapstructure:"model" json:"model"`
	CostPerToken     float64 `mapstructure:"cost_per_token" json:"cost_per_token"`
	StructuredOutput bool    `mapstructure:"structured_output" json:"structured_output"`
	Priority         int     `mapstructure:"priority" json:"priority"`
	CredentialRef    string  `mapstructure:"credential_ref" json:"credential_ref"`
}

// Config stores the fulfillment-core configuration.
type Config struct {
	// Ordered provider failover chain.
	Providers []ProviderConfig `mapstructure:"providers" json:"providers"`

	// Generation settings.
	Persona           string  `mapstructure:"persona" json:"persona"`
	MaxTokens         int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature       float32 `mapstructure:"temperature" json:"temperature"`
	RequireStructured bool    `mapstructure:"require_structured" json:"require_structured"`

	// Provider health policy.
	HealthWindowSize  int           `mapstructure:"health_window_size" json:"health_window_size"`
	HealthMinSamples  int           `mapstructure:"health_min_samples" json:"health_min_samples"`
	HealthFailureRate float64       `mapstructure:"health_failure_rate" json:"health_failure_rate"`
	HealthCooldown    time.Duration `mapstructure:"health_cooldown" json:"health_cooldown"`

	// Routing.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" json:"attempt_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`

	// Conversation state.
	MaxHistoryMessages int           `mapstructure:"max_history_messages" json:"max_history_messages"`
	HistoryTokenBudget int           `mapstructure:"history_token_budget" json:"history_token_budget"`
	WindowTTL          time.Duration `mapstructure:"window_ttl" json:"window_ttl"`

	// Retrieval.
	SourceTimeout time.Duration `mapstructure:"source_timeout" json:"source_timeout"`
	RetrievalTopK int           `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	EmbedderModel string        `mapstructure:"embedder_model" json:"embedder_model"`

	// Storage (audit records, document index, catalog source).
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Logging.
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// MarshalJSON masks sensitive fields. Keep in sync when adding secrets.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	masked := alias(c)
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "****"
	}
	return json.Marshal(masked)
}

// ConnString renders the pgx connection string.
func (c *Config) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword,
		c.PostgresDBName, c.PostgresSSLMode)
}

// PostgresURL renders the postgres:// URL form used by the migration
// runner.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   c.PostgresDBName,
	}
	q := u.Query()
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Load reads configuration from file, environment, and defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHATCART")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir, err := configDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			// Missing file is fine; defaults and env apply.
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_tokens", 1024)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("require_structured", false)

	v.SetDefault("health_window_size", 20)
	v.SetDefault("health_min_samples", 5)
	v.SetDefault("health_failure_rate", 0.5)
	v.SetDefault("health_cooldown", 5*time.Minute)

	v.SetDefault("attempt_timeout", 30*time.Second)
	v.SetDefault("rate_limit_rps", 0.0) // disabled

	v.SetDefault("max_history_messages", 100)
	v.SetDefault("history_token_budget", 8000)
	v.SetDefault("window_ttl", 5*time.Minute)

	v.SetDefault("source_timeout", 2*time.Second)
	v.SetDefault("retrieval_top_k", 5)
	v.SetDefault("embedder_model", "text-embedding-004")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "chatcart")
	v.SetDefault("postgres_db_name", "chatcart")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// configDir returns ~/.chatcart, creating it with restrictive permissions.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	dir := filepath.Join(home, ".chatcart")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	return dir, nil
}
