package datasource

import "context"

// MaxQueryLimit is the upper bound for rows returned by Query.
// A non-positive or larger maxRows is clamped to this value.
const MaxQueryLimit = 10000

// Dialect describes the engine limits the SQL validator must respect.
type Dialect struct {
	// Name is the registered adapter type ("sqlite", "postgres", "mssql").
	Name string
	// MaxParameters is the engine's cap on bound parameters per statement.
	MaxParameters int
}

// ConnectionTester tests database connectivity.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	// Returns nil if connection is healthy, error otherwise.
	TestConnection(ctx context.Context) error

	// Close releases the database connection.
	Close() error
}

// TableMetadata is one user table found by discovery. SchemaName is empty
// for engines without schemas.
type TableMetadata struct {
	SchemaName string
	TableName  string
	RowCount   int64
}

// QualifiedName returns schema.table, or the bare table name when there is
// no schema.
func (t TableMetadata) QualifiedName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// ColumnMetadata is one column of a discovered table. DataType is the
// engine's declared type name as reported.
type ColumnMetadata struct {
	ColumnName      string
	DataType        string
	IsNullable      bool
	OrdinalPosition int
}

// SchemaDiscoverer reads table and column metadata used to build the schema
// descriptor.
type SchemaDiscoverer interface {
	// DiscoverTables returns all user tables with their row counts.
	DiscoverTables(ctx context.Context) ([]TableMetadata, error)

	// DiscoverColumns returns columns for a specific table in ordinal order.
	DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]ColumnMetadata, error)

	// SampleValues returns up to limit non-null values of one column. Used to
	// infer a semantic type when the declared type is ambiguous.
	SampleValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]any, error)

	// Close releases the database connection.
	Close() error
}

// QueryExecutor runs validated read-only statements.
type QueryExecutor interface {
	// Query runs a SELECT inside a read-only scope and returns at most maxRows
	// rows. Truncated is set when the statement produced more. The query is
	// never rewritten, so ORDER BY and LIMIT in it keep their meaning.
	Query(ctx context.Context, sqlQuery string, maxRows int) (*QueryExecutionResult, error)

	// Count returns the number of rows sqlQuery produces.
	Count(ctx context.Context, sqlQuery string) (int64, error)

	// Dialect reports the engine limits.
	Dialect() Dialect

	// Close releases the database connection.
	Close() error
}

// Store is a fully capable adapter: one connection pool serves connectivity
// checks, schema discovery and query execution.
type Store interface {
	ConnectionTester
	SchemaDiscoverer
	QueryExecutor
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult contains the result of a read-only query.
type QueryExecutionResult struct {
	Columns   []ColumnInfo `json:"columns"`
	Rows      [][]any      `json:"rows"`
	RowCount  int          `json:"row_count"`
	Truncated bool         `json:"truncated"`
}

// EffectiveLimit clamps maxRows into (0, MaxQueryLimit].
func EffectiveLimit(maxRows int) int {
	if maxRows <= 0 || maxRows > MaxQueryLimit {
		return MaxQueryLimit
	}
	return maxRows
}

// CountQuery wraps a statement in a row count.
func CountQuery(sqlQuery string) string {
	return "SELECT COUNT(*) FROM (" + sqlQuery + ") AS _counted"
}
