package mssql

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

// Authentication methods.
const (
	AuthSQL              = "sql"
	AuthServicePrincipal = "service_principal"
	AuthAccessToken      = "access_token"
)

const (
	defaultPort              = 1433
	defaultConnectionTimeout = 30
	defaultMaxOpenConns      = 10
)

// Config holds SQL Server connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	AuthMethod string

	// AuthSQL
	Username string
	Password string

	// AuthServicePrincipal
	TenantID     string
	ClientID     string
	ClientSecret string

	// AuthAccessToken
	AccessToken string

	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int // seconds
	MaxOpenConns           int
}

// FromMap builds a Config from the adapter map. The auth method is taken from
// "auth_method" or inferred from which credentials are present.
func FromMap(m map[string]any) (*Config, error) {
	cfg := &Config{
		Host:                   datasource.StringOption(m, "host"),
		Port:                   datasource.IntOption(m, "port", defaultPort),
		Database:               datasource.StringOption(m, "database"),
		Username:               datasource.StringOption(m, "user"),
		Password:               datasource.StringOption(m, "password"),
		TenantID:               datasource.StringOption(m, "tenant_id"),
		ClientID:               datasource.StringOption(m, "client_id"),
		ClientSecret:           datasource.StringOption(m, "client_secret"),
		AccessToken:            datasource.StringOption(m, "access_token"),
		Encrypt:                encryptOption(m),
		TrustServerCertificate: datasource.BoolOption(m, "trust_server_certificate", false),
		ConnectionTimeout:      datasource.IntOption(m, "connection_timeout", defaultConnectionTimeout),
		MaxOpenConns:           datasource.IntOption(m, "max_open_conns", defaultMaxOpenConns),
		AuthMethod:             datasource.StringOption(m, "auth_method"),
	}

	if cfg.AuthMethod == "" {
		switch {
		case cfg.AccessToken != "":
			cfg.AuthMethod = AuthAccessToken
		case cfg.ClientID != "":
			cfg.AuthMethod = AuthServicePrincipal
		case cfg.Username != "":
			cfg.AuthMethod = AuthSQL
		default:
			return nil, errors.New("no credentials provided: set user, client_id or access_token")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields required by the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host is required")
	}
	if c.Database == "" {
		return errors.New("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case AuthSQL:
		if c.Username == "" {
			return errors.New("user is required for SQL authentication")
		}
	case AuthServicePrincipal:
		if c.TenantID == "" || c.ClientID == "" || c.ClientSecret == "" {
			return errors.New("tenant_id, client_id and client_secret are required for service principal authentication")
		}
	case AuthAccessToken:
		if c.AccessToken == "" {
			return errors.New("access_token is required for token authentication")
		}
	default:
		return fmt.Errorf("invalid auth method %q (want %s, %s or %s)", c.AuthMethod, AuthSQL, AuthServicePrincipal, AuthAccessToken)
	}
	return nil
}

// DSN returns the driver name and connection URL for the auth method. host
// is passed separately so callers can rewrite it for the runtime network.
func (c *Config) DSN(host string) (driver, dsn string) {
	q := url.Values{}
	q.Set("database", c.Database)
	q.Set("encrypt", strconv.FormatBool(c.Encrypt))
	if c.TrustServerCertificate {
		q.Set("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		q.Set("connection timeout", strconv.Itoa(c.ConnectionTimeout))
	}
	q.Set("app name", "ekaya-analyst")
	q.Set("ApplicationIntent", "ReadOnly")

	u := url.URL{Scheme: "sqlserver", Host: fmt.Sprintf("%s:%d", host, c.Port)}
	driver = "sqlserver"
	switch c.AuthMethod {
	case AuthServicePrincipal:
		driver = "azuresql"
		q.Set("fedauth", "ActiveDirectoryServicePrincipal")
		q.Set("user id", c.ClientID+"@"+c.TenantID)
		q.Set("password", c.ClientSecret)
	case AuthAccessToken:
		driver = "azuresql"
		q.Set("fedauth", "ActiveDirectoryServicePrincipalAccessToken")
		q.Set("password", c.AccessToken)
	default:
		u.User = url.UserPassword(c.Username, c.Password)
	}
	u.RawQuery = q.Encode()
	return driver, u.String()
}

// encryptOption also accepts the driver's "strict" mode.
func encryptOption(m map[string]any) bool {
	if datasource.StringOption(m, "encrypt") == "strict" {
		return true
	}
	return datasource.BoolOption(m, "encrypt", true)
}
