// Package postgres is the PostgreSQL store adapter. Every statement runs in a
// read-only transaction.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-analyst/pkg/config"
)

// MaxParameters is the wire protocol's cap on bind parameters (int16 count).
const MaxParameters = 65535

// Adapter provides PostgreSQL connectivity, schema discovery and query
// execution over one pgx pool.
type Adapter struct {
	config *Config
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAdapter creates a pool and verifies it can reach the database.
func NewAdapter(ctx context.Context, cfg *Config, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString(config.ResolveHostForDocker(cfg.Host)))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	// Sessions default to read-only as a second line behind the transaction mode.
	poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	a := &Adapter{config: cfg, pool: pool, logger: logger}
	if err := a.TestConnection(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// TestConnection pings the pool and checks that the session landed in the
// configured database rather than a default one.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	var currentDB string
	if err := a.pool.QueryRow(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("test query failed: %w", err)
	}

	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}
	return nil
}

// Dialect reports PostgreSQL's parameter cap.
func (a *Adapter) Dialect() datasource.Dialect {
	return datasource.Dialect{Name: "postgres", MaxParameters: MaxParameters}
}

// Close releases the pool.
func (a *Adapter) Close() error {
	if a.pool != nil {
		a.pool.Close()
	}
	return nil
}

// readOnly runs fn inside a read-only transaction that is always rolled back.
func (a *Adapter) readOnly(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("begin read-only transaction: %w", err)
	}
	defer tx.Rollback(context.Background())
	return fn(tx)
}

var _ datasource.Store = (*Adapter)(nil)
