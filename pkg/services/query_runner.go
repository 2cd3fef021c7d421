package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-analyst/pkg/logging"
	"github.com/ekaya-inc/ekaya-analyst/pkg/metrics"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-analyst/pkg/sql"
	"github.com/ekaya-inc/ekaya-analyst/pkg/typeinfer"
)

// Defaults for RunnerConfig.
const (
	DefaultQueryTimeout = 5 * time.Second
	DefaultCountTimeout = 2 * time.Second
	DefaultMaxRows      = datasource.MaxQueryLimit
)

// RunnerConfig bounds query execution.
type RunnerConfig struct {
	Timeout      time.Duration
	CountTimeout time.Duration
	MaxRows      int
	// ParameterLimit overrides the store dialect's cap when positive.
	ParameterLimit int
	// ScreenLiterals runs string literals through the injection detector.
	ScreenLiterals bool
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.Timeout <= 0 {
		c.Timeout = DefaultQueryTimeout
	}
	if c.CountTimeout <= 0 {
		c.CountTimeout = DefaultCountTimeout
	}
	c.MaxRows = datasource.EffectiveLimit(c.MaxRows)
	return c
}

// QueryRunner vets a generated query and executes it read-only.
type QueryRunner interface {
	// Validate applies the safety policy without touching the store.
	Validate(sql string, schema *models.SchemaDescriptor) models.ValidationVerdict

	// Run validates and executes the query. Errors are *ExecutionError unless
	// ctx ended.
	Run(ctx context.Context, generated *models.GeneratedQuery, schema *models.SchemaDescriptor) (*models.ResultSet, error)
}

type queryRunner struct {
	executor datasource.QueryExecutor
	config   RunnerConfig
	logger   *zap.Logger
}

// NewQueryRunner creates a runner over a store's query executor.
func NewQueryRunner(executor datasource.QueryExecutor, config RunnerConfig, logger *zap.Logger) QueryRunner {
	return &queryRunner{
		executor: executor,
		config:   config.withDefaults(),
		logger:   logger.Named("query-runner"),
	}
}

var _ QueryRunner = (*queryRunner)(nil)

func (r *queryRunner) policy() sqlpkg.Policy {
	limit := r.executor.Dialect().MaxParameters
	if r.config.ParameterLimit > 0 {
		limit = r.config.ParameterLimit
	}
	return sqlpkg.Policy{MaxParameters: limit, ScreenLiterals: r.config.ScreenLiterals}
}

func (r *queryRunner) Validate(sql string, schema *models.SchemaDescriptor) models.ValidationVerdict {
	return sqlpkg.Validate(sql, schema, r.policy())
}

func (r *queryRunner) Run(ctx context.Context, generated *models.GeneratedQuery, schema *models.SchemaDescriptor) (*models.ResultSet, error) {
	if generated == nil {
		return nil, &ExecutionError{Kind: ExecutionRejected, Reason: models.RejectEmpty, Message: "no query to run"}
	}

	verdict := r.Validate(generated.SQL, schema)
	if !verdict.Accepted {
		metrics.IncrementRejectedQuery(verdict.Reason)
		r.logger.Warn("Generated query rejected",
			zap.String("reason", verdict.Reason),
			zap.String("detail", verdict.Detail),
			zap.String("sql", logging.TruncateSQL(generated.SQL)))
		return nil, &ExecutionError{Kind: ExecutionRejected, Reason: verdict.Reason, Message: verdict.Detail}
	}

	start := time.Now()
	queryCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	res, err := r.executor.Query(queryCtx, verdict.SQL, r.config.MaxRows)
	if err != nil {
		return nil, r.classify(ctx, queryCtx, err)
	}
	elapsed := time.Since(start)

	total := int64(res.RowCount)
	if res.Truncated {
		total = r.countRows(ctx, verdict.SQL, total)
	}

	rs := &models.ResultSet{
		SQL:             verdict.SQL,
		Columns:         resultColumns(res),
		Rows:            res.Rows,
		RowCountTotal:   total,
		ExecutionMillis: elapsed.Milliseconds(),
		Truncated:       res.Truncated,
	}

	r.logger.Debug("Query executed",
		zap.Int("rows", len(rs.Rows)),
		zap.Int64("total", rs.RowCountTotal),
		zap.Duration("elapsed", elapsed))

	return rs, nil
}

// classify maps an executor error to the session error taxonomy. A parent
// context that ended is returned unchanged so the caller sees cancellation.
func (r *queryRunner) classify(parent, queryCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(queryCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &ExecutionError{
			Kind:    ExecutionTimeout,
			Message: "query exceeded " + r.config.Timeout.String(),
			Cause:   err,
		}
	}
	r.logger.Error("Store rejected query", zap.String("error", logging.SanitizeError(err)))
	return &ExecutionError{Kind: ExecutionStoreRejected, Message: err.Error(), Cause: err}
}

// countRows asks the store for the true row count of a truncated result. A
// failed or slow count falls back to the capped length.
func (r *queryRunner) countRows(ctx context.Context, sql string, capped int64) int64 {
	countCtx, cancel := context.WithTimeout(ctx, r.config.CountTimeout)
	defer cancel()

	n, err := r.executor.Count(countCtx, sql)
	if err != nil {
		r.logger.Debug("Row count unavailable, reporting capped length", zap.Error(err))
		return capped
	}
	if n < capped {
		return capped
	}
	return n
}

// resultColumns types each column from its declared store type, falling back
// to the returned values.
func resultColumns(res *datasource.QueryExecutionResult) []models.ResultColumn {
	names := uniqueColumnNames(res.Columns)
	cols := make([]models.ResultColumn, len(res.Columns))
	for i, c := range res.Columns {
		values := make([]any, 0, len(res.Rows))
		for _, row := range res.Rows {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		cols[i] = models.ResultColumn{
			Name:   names[i],
			Type:   typeinfer.InferColumn(c.Type, values),
			DBType: c.Type,
		}
	}
	return cols
}

// uniqueColumnNames keys result columns so rows can be read as records:
// SELECT a.name, b.name yields name and name_2, and unnamed expressions get
// column_<position>. Comparison ignores case.
func uniqueColumnNames(columns []datasource.ColumnInfo) []string {
	taken := make(map[string]bool, len(columns))
	for _, c := range columns {
		taken[strings.ToLower(c.Name)] = true
	}

	used := make(map[string]bool, len(columns))
	names := make([]string, len(columns))
	for i, c := range columns {
		name := c.Name
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if used[strings.ToLower(name)] {
			base := name
			for n := 2; ; n++ {
				name = fmt.Sprintf("%s_%d", base, n)
				if !used[strings.ToLower(name)] && !taken[strings.ToLower(name)] {
					break
				}
			}
		}
		used[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}
