package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is read when CONFIG_PATH is unset.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-analyst.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Store   StoreConfig   `yaml:"store"`
	LLM     LLMConfig     `yaml:"llm"`
	Query   QueryConfig   `yaml:"query"`
	Charts  ChartsConfig  `yaml:"charts"`
	Session SessionConfig `yaml:"session"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Store types.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMSSQL    = "mssql"
)

// StoreConfig selects and configures the dataset store. Only the fields of
// the selected type are used.
type StoreConfig struct {
	Type string `yaml:"type" env:"STORE_TYPE" env-default:"sqlite"`

	// SQLite
	Path string `yaml:"path" env:"STORE_PATH" env-default:"data/analyst.db"`

	// PostgreSQL and SQL Server
	Host     string `yaml:"host" env:"STORE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"STORE_PORT"`
	User     string `yaml:"user" env:"STORE_USER"`
	Password string `yaml:"-" env:"STORE_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"STORE_DATABASE"`
	SSLMode  string `yaml:"ssl_mode" env:"STORE_SSL_MODE" env-default:"disable"`

	MaxConns int `yaml:"max_conns" env:"STORE_MAX_CONNS" env-default:"10"`

	// ParameterLimit overrides the dialect's bind-parameter cap when positive.
	ParameterLimit int `yaml:"parameter_limit" env:"STORE_PARAMETER_LIMIT" env-default:"0"`
}

// LLMConfig holds both model tiers, the per-call timeout and the circuit
// breaker applied to each tier.
type LLMConfig struct {
	Primary          ModelConfig   `yaml:"primary" env-prefix:"PRIMARY_"`
	Secondary        ModelConfig   `yaml:"secondary" env-prefix:"SECONDARY_"`
	CallTimeout      time.Duration `yaml:"call_timeout" env:"LLM_CALL_TIMEOUT" env-default:"30s"`
	BreakerThreshold int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerReset     time.Duration `yaml:"breaker_reset" env:"LLM_BREAKER_RESET" env-default:"30s"`
}

// ModelConfig configures one model tier. A tier with no model is disabled.
type ModelConfig struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	BaseURL     string  `yaml:"base_url" env:"LLM_BASE_URL"` // Provider default when empty
	Model       string  `yaml:"model" env:"LLM_MODEL"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.2"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS"` // Provider default when zero
}

// Enabled reports whether the tier has a model configured.
func (m ModelConfig) Enabled() bool {
	return m.Model != ""
}

// QueryConfig bounds execution of generated SQL.
type QueryConfig struct {
	Timeout      time.Duration `yaml:"timeout" env:"QUERY_TIMEOUT" env-default:"5s"`
	CountTimeout time.Duration `yaml:"count_timeout" env:"QUERY_COUNT_TIMEOUT" env-default:"2s"`
	MaxRows      int           `yaml:"max_rows" env:"QUERY_MAX_ROWS" env-default:"10000"`
	// SkipLiteralScreening turns off the injection detector for string
	// literals in generated SQL.
	SkipLiteralScreening bool `yaml:"skip_literal_screening" env:"QUERY_SKIP_LITERAL_SCREENING"`
}

// ChartsConfig bounds chart synthesis.
type ChartsConfig struct {
	MaxPoints        int `yaml:"max_points" env:"CHARTS_MAX_POINTS" env-default:"100"`
	MaxInferred      int `yaml:"max_inferred" env:"CHARTS_MAX_INFERRED" env-default:"4"`
	MaxPieCategories int `yaml:"max_pie_categories" env:"CHARTS_MAX_PIE_CATEGORIES" env-default:"12"`
}

// SessionConfig bounds a whole analysis session.
type SessionConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"SESSION_TIMEOUT" env-default:"60s"`
}

// MetricsConfig toggles the Prometheus endpoint, which is served by default.
type MetricsConfig struct {
	Disabled bool `yaml:"disabled" env:"METRICS_DISABLED"`
}

// Load reads configuration from CONFIG_PATH (default config.yaml) with
// environment variable overrides. A missing file is not an error; the
// environment and defaults are used instead. The version parameter is
// injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := &Config{}
	if _, statErr := os.Stat(path); statErr == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(statErr, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, statErr)
	}
	cfg.Version = version

	cfg.Store.Type = strings.ToLower(strings.TrimSpace(cfg.Store.Type))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	}

	switch c.Store.Type {
	case StoreSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case StorePostgres, StoreMSSQL:
		if c.Store.Host == "" || c.Store.Database == "" {
			errs = append(errs, fmt.Errorf("store.host and store.database are required for %s", c.Store.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.type %q", c.Store.Type))
	}
	if c.Store.ParameterLimit < 0 {
		errs = append(errs, errors.New("store.parameter_limit must not be negative"))
	}

	if !c.LLM.Primary.Enabled() {
		errs = append(errs, errors.New("llm.primary.model is required"))
	}
	for name, tier := range map[string]ModelConfig{"primary": c.LLM.Primary, "secondary": c.LLM.Secondary} {
		if !tier.Enabled() {
			continue
		}
		switch strings.ToLower(tier.Provider) {
		case "", "openai", "anthropic":
		default:
			errs = append(errs, fmt.Errorf("llm.%s.provider %q is not supported", name, tier.Provider))
		}
		if tier.MaxTokens < 0 {
			errs = append(errs, fmt.Errorf("llm.%s.max_tokens must not be negative", name))
		}
		if tier.Temperature < 0 || tier.Temperature > 2 {
			errs = append(errs, fmt.Errorf("llm.%s.temperature must be between 0 and 2", name))
		}
	}

	positive := map[string]int64{
		"llm.call_timeout":          int64(c.LLM.CallTimeout),
		"llm.breaker_threshold":     int64(c.LLM.BreakerThreshold),
		"llm.breaker_reset":         int64(c.LLM.BreakerReset),
		"query.timeout":             int64(c.Query.Timeout),
		"query.count_timeout":       int64(c.Query.CountTimeout),
		"query.max_rows":            int64(c.Query.MaxRows),
		"charts.max_points":         int64(c.Charts.MaxPoints),
		"charts.max_inferred":       int64(c.Charts.MaxInferred),
		"charts.max_pie_categories": int64(c.Charts.MaxPieCategories),
		"session.timeout":           int64(c.Session.Timeout),
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.Session.Timeout > 0 && c.Query.Timeout > c.Session.Timeout {
		errs = append(errs, errors.New("query.timeout must not exceed session.timeout"))
	}

	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}

// StoreMap returns the adapter configuration map for the selected store
// type. Adapters rewrite loopback hosts when running inside Docker.
func (s StoreConfig) StoreMap() map[string]any {
	switch s.Type {
	case StorePostgres, StoreMSSQL:
		m := map[string]any{
			"host":     s.Host,
			"user":     s.User,
			"password": s.Password,
			"database": s.Database,
		}
		if s.Port > 0 {
			m["port"] = s.Port
		}
		if s.Type == StorePostgres {
			m["ssl_mode"] = s.SSLMode
			m["max_conns"] = s.MaxConns
		} else {
			m["max_open_conns"] = s.MaxConns
			m["encrypt"] = s.SSLMode != "disable"
		}
		return m
	default:
		return map[string]any{
			"path":           s.Path,
			"max_open_conns": s.MaxConns,
		}
	}
}
