package postgres

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

const (
	defaultPort     = 5432
	defaultSSLMode  = "require"
	defaultMaxConns = 10
)

// Config holds PostgreSQL connection options.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string // disable, require, verify-ca, verify-full
	MaxConns int32
}

// FromMap builds a Config from the adapter map.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Host:     datasource.StringOption(m, "host"),
		Port:     datasource.IntOption(m, "port", defaultPort),
		User:     datasource.StringOption(m, "user"),
		Password: datasource.StringOption(m, "password"),
		Database: datasource.StringOption(m, "database"),
		SSLMode:  datasource.StringOption(m, "ssl_mode"),
		MaxConns: int32(datasource.IntOption(m, "max_conns", defaultMaxConns)),
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = defaultSSLMode
	}

	switch {
	case cfg.Host == "":
		return nil, errors.New("host is required")
	case cfg.User == "":
		return nil, errors.New("user is required")
	case cfg.Database == "":
		return nil, errors.New("database is required")
	case cfg.Port <= 0 || cfg.Port > 65535:
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	return cfg, nil
}

// ConnString returns a postgresql:// URL for host. Credentials and database
// name are escaped, so passwords containing @, /, # or ? survive parsing.
func (c *Config) ConnString(host string) string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {sslMode}, "application_name": {"ekaya-analyst"}}.Encode(),
	}
	return u.String()
}
