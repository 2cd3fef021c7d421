// Package sqlite is the embedded store adapter. Files are opened read-only.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

// Adapter provides read-only SQLite connectivity, schema discovery and query
// execution over one pooled handle.
type Adapter struct {
	config *Config
	db     *sqlx.DB
	logger *zap.Logger
}

// NewAdapter opens the database file. The file must exist; a missing file
// would otherwise be created empty by the driver.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db, err := sqlx.Open("sqlite3", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	return &Adapter{config: cfg, db: db, logger: logger}, nil
}

// NewAdapterFromDB wraps an already opened handle. The caller is responsible
// for having opened it read-only.
func NewAdapterFromDB(db *sqlx.DB, cfg *Config, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	return &Adapter{config: cfg, db: db, logger: logger}
}

// TestConnection verifies the database file is readable.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var result int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Dialect reports SQLite's parameter cap.
func (a *Adapter) Dialect() datasource.Dialect {
	return datasource.Dialect{Name: "sqlite", MaxParameters: MaxParameters}
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// readOnlyTx starts a read-only transaction. The caller must roll it back.
func (a *Adapter) readOnlyTx(ctx context.Context) (*sqlx.Tx, error) {
	tx, err := a.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read-only transaction: %w", err)
	}
	return tx, nil
}

// Ensure Adapter implements datasource.Store at compile time.
var _ datasource.Store = (*Adapter)(nil)
