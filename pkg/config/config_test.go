package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Port:  "3443",
		Store: StoreConfig{Type: StoreSQLite, Path: "data/analyst.db"},
		LLM: LLMConfig{
			Primary:          ModelConfig{Provider: "openai", Model: "gpt-4o", Temperature: 0.2},
			CallTimeout:      30 * time.Second,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Query:   QueryConfig{Timeout: 5 * time.Second, CountTimeout: 2 * time.Second, MaxRows: 10000},
		Charts:  ChartsConfig{MaxPoints: 100, MaxInferred: 4, MaxPieCategories: 12},
		Session: SessionConfig{Timeout: 60 * time.Second},
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
port: "3443"
env: "test"
store:
  type: "postgres"
  host: "db.example.com"
  user: "analyst"
  database: "sales"
llm:
  primary:
    provider: "anthropic"
    model: "claude-sonnet"
  secondary:
    model: "gpt-4o-mini"
query:
  timeout: 3s
charts:
  max_points: 50
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "4443")
	t.Setenv("STORE_PASSWORD", "s3cret")
	t.Setenv("PRIMARY_LLM_API_KEY", "sk-test")

	cfg, err := Load("test-version")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "4443" {
		t.Errorf("expected Port=4443 (from env), got %s", cfg.Port)
	}
	if cfg.Version != "test-version" {
		t.Errorf("expected Version=test-version, got %s", cfg.Version)
	}
	if cfg.Store.Host != "db.example.com" {
		t.Errorf("expected Store.Host from yaml, got %s", cfg.Store.Host)
	}
	if cfg.Store.Password != "s3cret" {
		t.Errorf("expected Store.Password from env, got %q", cfg.Store.Password)
	}
	if cfg.LLM.Primary.Provider != "anthropic" || cfg.LLM.Primary.APIKey != "sk-test" {
		t.Errorf("unexpected primary tier: %+v", cfg.LLM.Primary)
	}
	if !cfg.LLM.Secondary.Enabled() {
		t.Error("expected secondary tier to be enabled")
	}
	if cfg.Query.Timeout != 3*time.Second {
		t.Errorf("expected Query.Timeout=3s, got %s", cfg.Query.Timeout)
	}
	if cfg.Query.MaxRows != 10000 {
		t.Errorf("expected default Query.MaxRows=10000, got %d", cfg.Query.MaxRows)
	}
	if cfg.Charts.MaxPoints != 50 || cfg.Charts.MaxPieCategories != 12 {
		t.Errorf("unexpected charts config: %+v", cfg.Charts)
	}
	if cfg.Session.Timeout != 60*time.Second {
		t.Errorf("expected default Session.Timeout=60s, got %s", cfg.Session.Timeout)
	}
}

func TestLoad_SecretsNotReadFromYAML(t *testing.T) {
	path := writeConfig(t, `
store:
  path: "/tmp/sales.db"
  password: "from-yaml"
llm:
  primary:
    model: "gpt-4o"
    api_key: "from-yaml"
`)
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Password == "from-yaml" {
		t.Error("store password must not be read from yaml")
	}
	if cfg.LLM.Primary.APIKey == "from-yaml" {
		t.Error("api key must not be read from yaml")
	}
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("PRIMARY_LLM_MODEL", "gpt-4o")
	t.Setenv("STORE_PATH", "/srv/data/sales.db")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Store.Type != StoreSQLite {
		t.Errorf("expected default store type sqlite, got %s", cfg.Store.Type)
	}
	if cfg.Store.Path != "/srv/data/sales.db" {
		t.Errorf("expected Store.Path from env, got %s", cfg.Store.Path)
	}
	if cfg.LLM.CallTimeout != 30*time.Second {
		t.Errorf("expected default call timeout 30s, got %s", cfg.LLM.CallTimeout)
	}
	if cfg.LLM.BreakerThreshold != 5 || cfg.LLM.BreakerReset != 30*time.Second {
		t.Errorf("expected default breaker 5/30s, got %d/%s", cfg.LLM.BreakerThreshold, cfg.LLM.BreakerReset)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := writeConfig(t, `
store:
  type: "oracle"
`)
	t.Setenv("CONFIG_PATH", path)

	if _, err := Load("dev"); err == nil {
		t.Fatal("expected error for unknown store type and missing model")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "oracle" }, wantErr: "unknown store.type"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Store.Path = " " }, wantErr: "store.path"},
		{name: "postgres without host", mutate: func(c *Config) {
			c.Store.Type = StorePostgres
			c.Store.Database = "sales"
		}, wantErr: "store.host"},
		{name: "missing model", mutate: func(c *Config) { c.LLM.Primary.Model = "" }, wantErr: "llm.primary.model"},
		{name: "bad provider", mutate: func(c *Config) { c.LLM.Primary.Provider = "cohere" }, wantErr: "not supported"},
		{name: "zero max rows", mutate: func(c *Config) { c.Query.MaxRows = 0 }, wantErr: "query.max_rows"},
		{name: "negative chart points", mutate: func(c *Config) { c.Charts.MaxPoints = -1 }, wantErr: "charts.max_points"},
		{name: "query outlives session", mutate: func(c *Config) { c.Query.Timeout = 2 * time.Minute }, wantErr: "must not exceed"},
		{name: "negative parameter limit", mutate: func(c *Config) { c.Store.ParameterLimit = -5 }, wantErr: "parameter_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStoreMap(t *testing.T) {
	sqlite := StoreConfig{Type: StoreSQLite, Path: "/data/a.db", MaxConns: 4}.StoreMap()
	if sqlite["path"] != "/data/a.db" || sqlite["max_open_conns"] != 4 {
		t.Errorf("unexpected sqlite map: %v", sqlite)
	}

	pg := StoreConfig{
		Type: StorePostgres, Host: "db.example.com", Port: 5433, User: "u",
		Password: "p", Database: "sales", SSLMode: "require", MaxConns: 10,
	}.StoreMap()
	if pg["host"] != "db.example.com" || pg["port"] != 5433 || pg["ssl_mode"] != "require" {
		t.Errorf("unexpected postgres map: %v", pg)
	}

	ms := StoreConfig{Type: StoreMSSQL, Host: "sql.example.com", Database: "sales", SSLMode: "disable"}.StoreMap()
	if _, ok := ms["port"]; ok {
		t.Error("unset port must be left to the adapter default")
	}
	if ms["encrypt"] != false {
		t.Errorf("expected encrypt=false, got %v", ms["encrypt"])
	}
}

func TestAddr(t *testing.T) {
	cfg := &Config{BindAddr: "0.0.0.0", Port: "8080"}
	if got := cfg.Addr(); got != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", got)
	}
}
