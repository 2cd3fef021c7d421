package sqlite

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

// MaxParameters is SQLite's default SQLITE_MAX_VARIABLE_NUMBER.
const MaxParameters = 999

// Config contains SQLite-specific connection options.
type Config struct {
	Path          string
	BusyTimeoutMs int
	MaxOpenConns  int
}

// DefaultBusyTimeoutMs is how long a reader waits on a locked database.
const DefaultBusyTimeoutMs = 5000

const defaultMaxOpenConns = 8

// FromMap builds a Config from the adapter map.
func FromMap(m map[string]any) (*Config, error) {
	path := strings.TrimSpace(datasource.StringOption(m, "path"))
	if path == "" {
		return nil, errors.New("path is required")
	}
	return &Config{
		Path:          path,
		BusyTimeoutMs: datasource.IntOption(m, "busy_timeout_ms", DefaultBusyTimeoutMs),
		MaxOpenConns:  datasource.IntOption(m, "max_open_conns", defaultMaxOpenConns),
	}, nil
}

// buildDSN opens the file read-only and refuses writes at the connection level.
// The path is percent-encoded so ? # and % in file names survive URI parsing.
func buildDSN(cfg *Config) string {
	q := url.Values{}
	q.Set("mode", "ro")
	q.Set("_query_only", "true")
	if cfg.BusyTimeoutMs > 0 {
		q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeoutMs))
	}
	return "file:" + (&url.URL{Path: cfg.Path}).EscapedPath() + "?" + q.Encode()
}
