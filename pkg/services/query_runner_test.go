package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

func newFixtureRunner(t *testing.T, cfg RunnerConfig) (QueryRunner, *models.SchemaDescriptor) {
	t.Helper()
	store := openFixtureStore(t)
	sc := loadFixtureSchema(t, store)
	return NewQueryRunner(store, cfg, zap.NewNop()), sc.Current()
}

func newMockRunner(t *testing.T, cfg RunnerConfig) (QueryRunner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := sqlite.NewAdapterFromDB(sqlx.NewDb(db, "sqlmock"), nil, zap.NewNop())
	return NewQueryRunner(store, cfg, zap.NewNop()), mock
}

func TestQueryRunner_RunsAcceptedQuery(t *testing.T) {
	runner, schema := newFixtureRunner(t, RunnerConfig{})

	rs, err := runner.Run(context.Background(), &models.GeneratedQuery{
		SQL: "SELECT name, revenue FROM customers ORDER BY revenue DESC LIMIT 3;",
	}, schema)
	require.NoError(t, err)

	assert.Equal(t, "SELECT name, revenue FROM customers ORDER BY revenue DESC LIMIT 3", rs.SQL)
	require.Len(t, rs.Columns, 2)
	assert.Equal(t, models.SemanticCategorical, rs.Columns[0].Type)
	assert.Equal(t, models.SemanticNumeric, rs.Columns[1].Type)
	require.Len(t, rs.Rows, 3)
	assert.Equal(t, "Stark Industries", rs.Rows[0][0])
	assert.Equal(t, int64(3), rs.RowCountTotal)
	assert.False(t, rs.Truncated)
}

func TestQueryRunner_DuplicateColumnNamesStayDistinct(t *testing.T) {
	runner, schema := newFixtureRunner(t, RunnerConfig{})

	rs, err := runner.Run(context.Background(), &models.GeneratedQuery{
		SQL: "SELECT c.name, o.id, c.id FROM customers c JOIN orders o ON o.customer_id = c.id LIMIT 1",
	}, schema)
	require.NoError(t, err)

	require.Len(t, rs.Columns, 3)
	assert.Equal(t, []string{"name", "id", "id_2"}, []string{rs.Columns[0].Name, rs.Columns[1].Name, rs.Columns[2].Name})
	records := rs.Records()
	require.Len(t, records, 1)
	assert.Len(t, records[0], 3)
}

func TestUniqueColumnNames(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"name", "revenue"}, []string{"name", "revenue"}},
		{[]string{"name", "name", "name"}, []string{"name", "name_2", "name_3"}},
		{[]string{"name", "NAME", "name_2"}, []string{"name", "NAME_3", "name_2"}},
		{[]string{"", "total", ""}, []string{"column_1", "total", "column_3"}},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.in, ","), func(t *testing.T) {
			cols := make([]datasource.ColumnInfo, len(tt.in))
			for i, n := range tt.in {
				cols[i] = datasource.ColumnInfo{Name: n}
			}
			assert.Equal(t, tt.want, uniqueColumnNames(cols))
		})
	}
}

func TestQueryRunner_Rejections(t *testing.T) {
	runner, schema := newFixtureRunner(t, RunnerConfig{})

	bigIn := make([]string, 2000)
	for i := range bigIn {
		bigIn[i] = strconv.Itoa(i)
	}

	tests := []struct {
		name   string
		sql    string
		reason string
	}{
		{name: "write statement", sql: "DELETE FROM customers", reason: models.RejectForbiddenKeyword},
		{name: "stacked statements", sql: "SELECT 1 FROM customers; SELECT 2 FROM orders", reason: models.RejectMultipleStatements},
		{name: "unknown table", sql: "SELECT * FROM invoices", reason: models.RejectUnknownTable},
		{name: "keyword hidden in comment", sql: "SELECT name FROM customers /* drop table customers */", reason: models.RejectForbiddenKeyword},
		{
			name:   "literal-heavy IN list over the 999 cap",
			sql:    "SELECT * FROM orders WHERE id IN (" + strings.Join(bigIn, ", ") + ")",
			reason: models.RejectParameterLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runner.Run(context.Background(), &models.GeneratedQuery{SQL: tt.sql}, schema)
			var execErr *ExecutionError
			require.ErrorAs(t, err, &execErr)
			assert.Equal(t, ExecutionRejected, execErr.Kind)
			assert.Equal(t, tt.reason, execErr.Reason)
			assert.Equal(t, "execution_rejected", execErr.Code())
		})
	}

	// The store is untouched by rejected writes.
	rs, err := runner.Run(context.Background(), &models.GeneratedQuery{SQL: "SELECT COUNT(*) AS n FROM customers"}, schema)
	require.NoError(t, err)
	assert.Equal(t, int64(10), rs.Rows[0][0])
}

func TestQueryRunner_ParameterLimitOverride(t *testing.T) {
	runner, schema := newFixtureRunner(t, RunnerConfig{ParameterLimit: 2})

	_, err := runner.Run(context.Background(), &models.GeneratedQuery{SQL: "SELECT * FROM orders WHERE id IN (1, 2, 3)"}, schema)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, models.RejectParameterLimit, execErr.Reason)
}

func TestQueryRunner_TruncatesAndCounts(t *testing.T) {
	runner, schema := newFixtureRunner(t, RunnerConfig{MaxRows: 7})

	rs, err := runner.Run(context.Background(), &models.GeneratedQuery{SQL: "SELECT id, amount FROM orders ORDER BY id"}, schema)
	require.NoError(t, err)
	assert.Len(t, rs.Rows, 7)
	assert.True(t, rs.Truncated)
	assert.Equal(t, int64(30), rs.RowCountTotal)
}

func TestQueryRunner_StoreRejected(t *testing.T) {
	runner, schema := newFixtureRunner(t, RunnerConfig{})

	_, err := runner.Run(context.Background(), &models.GeneratedQuery{SQL: "SELECT missing_column FROM customers"}, schema)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ExecutionStoreRejected, execErr.Kind)
	assert.Contains(t, execErr.Message, "no such column")
	assert.Equal(t, "execution_store_rejected", ErrorCode(err))
}

func TestQueryRunner_Timeout(t *testing.T) {
	runner, mock := newMockRunner(t, RunnerConfig{Timeout: 30 * time.Millisecond})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name FROM customers").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Acme Corp"))
	mock.ExpectRollback()

	_, err := runner.Run(context.Background(), &models.GeneratedQuery{SQL: "SELECT name FROM customers"}, fixedSchema())
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ExecutionTimeout, execErr.Kind)
	assert.Equal(t, "execution_timeout", execErr.Code())
}

func TestQueryRunner_StoreErrorFromDriver(t *testing.T) {
	runner, mock := newMockRunner(t, RunnerConfig{})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name FROM customers").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	_, err := runner.Run(context.Background(), &models.GeneratedQuery{SQL: "SELECT name FROM customers"}, fixedSchema())
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ExecutionStoreRejected, execErr.Kind)
	assert.Contains(t, execErr.Message, "database is locked")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRunner_CountFailureFallsBackToCapped(t *testing.T) {
	runner, mock := newMockRunner(t, RunnerConfig{MaxRows: 2})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name FROM customers").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("a").AddRow("b").AddRow("c"))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("count not supported"))
	mock.ExpectRollback()

	rs, err := runner.Run(context.Background(), &models.GeneratedQuery{SQL: "SELECT name FROM customers"}, fixedSchema())
	require.NoError(t, err)
	assert.True(t, rs.Truncated)
	assert.Len(t, rs.Rows, 2)
	assert.Equal(t, int64(2), rs.RowCountTotal)
}

func TestQueryRunner_CallerCancellation(t *testing.T) {
	runner, mock := newMockRunner(t, RunnerConfig{Timeout: time.Second})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT name FROM customers").
		WillDelayFor(2 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := runner.Run(ctx, &models.GeneratedQuery{SQL: "SELECT name FROM customers"}, fixedSchema())
	assert.ErrorIs(t, err, context.Canceled)
}
