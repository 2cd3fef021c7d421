// Package mssql is the SQL Server store adapter.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-analyst/pkg/config"
)

// MaxParameters is SQL Server's cap on parameters per RPC request.
const MaxParameters = 2100

// Adapter provides SQL Server connectivity, schema discovery and query
// execution. SQL Server has no read-only transaction mode through the driver,
// so writes are kept out by the validator and the login's permissions.
type Adapter struct {
	config *Config
	db     *sql.DB
	logger *zap.Logger
}

// NewAdapter opens and pings a pool for cfg. Azure AD methods go through the
// azuresql driver registered by the azuread package.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	driver, dsn := cfg.DSN(config.ResolveHostForDocker(cfg.Host))
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s connection: %w", cfg.AuthMethod, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(max(cfg.MaxOpenConns/2, 1))

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	logger.Debug("SQL Server pool ready",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
		zap.String("auth_method", cfg.AuthMethod))
	return &Adapter{config: cfg, db: db, logger: logger}, nil
}

// TestConnection checks that the login can still run a query.
func (a *Adapter) TestConnection(ctx context.Context) error {
	var one int
	if err := a.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}
	return nil
}

// Dialect reports SQL Server's parameter cap.
func (a *Adapter) Dialect() datasource.Dialect {
	return datasource.Dialect{Name: "mssql", MaxParameters: MaxParameters}
}

// Close releases the connection pool.
func (a *Adapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

var _ datasource.Store = (*Adapter)(nil)
