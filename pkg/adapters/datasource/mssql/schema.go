package mssql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

// Row counts come from partition stats of the heap or clustered index, which
// avoids scanning each table.
const tablesQuery = `
SELECT s.name, t.name, COALESCE(SUM(p.rows), 0)
FROM sys.tables AS t
JOIN sys.schemas AS s ON s.schema_id = t.schema_id
LEFT JOIN sys.partitions AS p ON p.object_id = t.object_id AND p.index_id IN (0, 1)
WHERE t.is_ms_shipped = 0
GROUP BY s.name, t.name
ORDER BY s.name, t.name`

const columnsQuery = `
SELECT c.name, ty.name, c.is_nullable, c.column_id
FROM sys.columns AS c
JOIN sys.types AS ty ON ty.user_type_id = c.user_type_id
WHERE c.object_id = OBJECT_ID(QUOTENAME(@schema) + N'.' + QUOTENAME(@table))
ORDER BY c.column_id`

const defaultSampleSize = 10

// DiscoverTables lists user tables with their approximate row counts.
func (a *Adapter) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	rows, err := a.db.QueryContext(ctx, tablesQuery)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var t datasource.TableMetadata
		if err := rows.Scan(&t.SchemaName, &t.TableName, &t.RowCount); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// DiscoverColumns lists a table's columns in ordinal order with their types
// mapped to the shared type names.
func (a *Adapter) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnMetadata, error) {
	rows, err := a.db.QueryContext(ctx, columnsQuery,
		sql.Named("schema", schemaName),
		sql.Named("table", tableName))
	if err != nil {
		return nil, fmt.Errorf("list columns of %s.%s: %w", schemaName, tableName, err)
	}
	defer rows.Close()

	var columns []datasource.ColumnMetadata
	for rows.Next() {
		var (
			c       datasource.ColumnMetadata
			sqlType string
		)
		if err := rows.Scan(&c.ColumnName, &sqlType, &c.IsNullable, &c.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		c.DataType = mapSQLServerType(sqlType)
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

// SampleValues returns up to limit non-null values of a column.
func (a *Adapter) SampleValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]any, error) {
	if limit <= 0 {
		limit = defaultSampleSize
	}
	col := quoteName(columnName)
	query := fmt.Sprintf("SELECT TOP (%d) %s FROM %s WHERE %s IS NOT NULL",
		limit, col, buildFullyQualifiedName(schemaName, tableName), col)

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", columnName, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	dbType := types[0].DatabaseTypeName()

	var values []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		values = append(values, normalizeValue(dbType, v))
	}
	return values, rows.Err()
}
