package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

// qualifiedTableName quotes "schema"."table", or just "table" without a schema.
func qualifiedTableName(schemaName, tableName string) string {
	if schemaName == "" {
		return pgx.Identifier{tableName}.Sanitize()
	}
	return pgx.Identifier{schemaName, tableName}.Sanitize()
}

const tablesQuery = `
SELECT n.nspname, c.relname, GREATEST(c.reltuples, 0)::bigint
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind IN ('r', 'p')
  AND NOT c.relispartition
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
  AND n.nspname NOT LIKE 'pg_toast%'
ORDER BY 1, 2`

const columnsQuery = `
SELECT column_name, data_type, is_nullable = 'YES', ordinal_position
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`

// DiscoverTables lists user tables with row counts from planner statistics.
// Tables the planner has no estimate for are counted exactly.
func (a *Adapter) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	var tables []datasource.TableMetadata
	err := a.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, tablesQuery)
		if err != nil {
			return fmt.Errorf("list tables: %w", err)
		}
		tables, err = pgx.CollectRows(rows, pgx.RowToStructByPos[datasource.TableMetadata])
		if err != nil {
			return fmt.Errorf("scan tables: %w", err)
		}

		for i, t := range tables {
			if t.RowCount > 0 {
				continue
			}
			q := "SELECT COUNT(*) FROM " + qualifiedTableName(t.SchemaName, t.TableName)
			if err := tx.QueryRow(ctx, q).Scan(&tables[i].RowCount); err != nil {
				return fmt.Errorf("count %s: %w", t.QualifiedName(), err)
			}
		}
		return nil
	})
	return tables, err
}

// DiscoverColumns lists a table's columns in ordinal order.
func (a *Adapter) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnMetadata, error) {
	var columns []datasource.ColumnMetadata
	err := a.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, columnsQuery, schemaName, tableName)
		if err != nil {
			return fmt.Errorf("list columns of %s.%s: %w", schemaName, tableName, err)
		}
		columns, err = pgx.CollectRows(rows, pgx.RowToStructByPos[datasource.ColumnMetadata])
		if err != nil {
			return fmt.Errorf("scan columns: %w", err)
		}
		return nil
	})
	return columns, err
}

// SampleValues returns up to limit non-null values of a column.
func (a *Adapter) SampleValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]any, error) {
	if limit <= 0 {
		limit = 10
	}
	col := pgx.Identifier{columnName}.Sanitize()
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d",
		col, qualifiedTableName(schemaName, tableName), col, limit)

	var values []any
	err := a.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, query)
		if err != nil {
			return fmt.Errorf("sample values: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			row, err := rows.Values()
			if err != nil {
				return fmt.Errorf("scan sample: %w", err)
			}
			values = append(values, normalizeValue(row[0]))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}
