package sqlite

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

// Query runs a SELECT in a read-only transaction and returns at most maxRows
// rows. One extra row is read to detect truncation.
func (a *Adapter) Query(ctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error) {
	limit := datasource.EffectiveLimit(maxRows)

	tx, err := a.readOnlyTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, sqlQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}
	columns := make([]datasource.ColumnInfo, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = datasource.ColumnInfo{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	result := &datasource.QueryExecutionResult{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if len(result.Rows) == limit {
			result.Truncated = true
			break
		}
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i := range values {
			values[i] = normalizeValue(values[i])
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// Count returns how many rows sqlQuery produces.
func (a *Adapter) Count(ctx context.Context, sqlQuery string) (int64, error) {
	tx, err := a.readOnlyTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var n int64
	if err := tx.GetContext(ctx, &n, datasource.CountQuery(sqlQuery)); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return n, nil
}

// normalizeValue turns driver byte slices into strings.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
