package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

// quoteIdentifier returns a double-quoted identifier with embedded quotes doubled.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DiscoverTables returns all user tables with exact row counts.
func (a *Adapter) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	tx, err := a.readOnlyTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var names []string
	if err := tx.SelectContext(ctx, &names, `
		SELECT name
		FROM sqlite_master
		WHERE type = 'table'
		  AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`); err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}

	tables := make([]datasource.TableMetadata, 0, len(names))
	for _, name := range names {
		var count int64
		if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+quoteIdentifier(name)); err != nil {
			return nil, fmt.Errorf("count rows in %s: %w", name, err)
		}
		tables = append(tables, datasource.TableMetadata{
			SchemaName: "main",
			TableName:  name,
			RowCount:   count,
		})
	}
	return tables, nil
}

type pragmaColumn struct {
	CID     int    `db:"cid"`
	Name    string `db:"name"`
	Type    string `db:"type"`
	NotNull bool   `db:"notnull"`
}

// DiscoverColumns returns columns for a table via pragma_table_info.
func (a *Adapter) DiscoverColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnMetadata, error) {
	tx, err := a.readOnlyTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var cols []pragmaColumn
	if err := tx.SelectContext(ctx, &cols,
		`SELECT cid, name, type, "notnull" FROM pragma_table_info(?) ORDER BY cid`, tableName); err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	columns := make([]datasource.ColumnMetadata, len(cols))
	for i, c := range cols {
		columns[i] = datasource.ColumnMetadata{
			ColumnName:      c.Name,
			DataType:        c.Type,
			IsNullable:      !c.NotNull,
			OrdinalPosition: c.CID + 1,
		}
	}
	return columns, nil
}

// SampleValues returns up to limit non-null values of a column.
func (a *Adapter) SampleValues(ctx context.Context, schemaName, tableName, columnName string, limit int) ([]any, error) {
	if limit <= 0 {
		limit = 10
	}
	tx, err := a.readOnlyTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	col := quoteIdentifier(columnName)
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d", col, quoteIdentifier(tableName), col, limit)
	rows, err := tx.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample values: %w", err)
	}
	defer rows.Close()

	var values []any
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		values = append(values, normalizeValue(row[0]))
	}
	return values, rows.Err()
}
