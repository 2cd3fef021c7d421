package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/ekaya-inc/ekaya-analyst/pkg/adapters/datasource"
)

// Query runs a SELECT in a read-only transaction and returns at most maxRows
// rows. One extra row is read to detect truncation.
func (a *Adapter) Query(ctx context.Context, sqlQuery string, maxRows int) (*datasource.QueryExecutionResult, error) {
	limit := datasource.EffectiveLimit(maxRows)

	var result *datasource.QueryExecutionResult
	err := a.readOnly(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sqlQuery)
		if err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		defer rows.Close()

		fieldDescs := rows.FieldDescriptions()
		columns := make([]datasource.ColumnInfo, len(fieldDescs))
		for i, fd := range fieldDescs {
			columns[i] = datasource.ColumnInfo{
				Name: fd.Name,
				Type: pgTypeNameFromOID(fd.DataTypeOID),
			}
		}

		res := &datasource.QueryExecutionResult{Columns: columns, Rows: make([][]any, 0)}
		for rows.Next() {
			if len(res.Rows) == limit {
				res.Truncated = true
				break
			}
			values, err := rows.Values()
			if err != nil {
				return fmt.Errorf("failed to read row values: %w", err)
			}
			for i := range values {
				values[i] = normalizeValue(values[i])
			}
			res.Rows = append(res.Rows, values)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating rows: %w", err)
		}

		res.RowCount = len(res.Rows)
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Count returns how many rows sqlQuery produces.
func (a *Adapter) Count(ctx context.Context, sqlQuery string) (int64, error) {
	var n int64
	err := a.readOnly(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, datasource.CountQuery(sqlQuery)).Scan(&n); err != nil {
			return fmt.Errorf("count rows: %w", err)
		}
		return nil
	})
	return n, err
}

// normalizeValue converts pgx wire types into plain Go values the chart and
// JSON layers understand.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	default:
		return v
	}
}

// pgTypeNameFromOID maps common PostgreSQL type OIDs to type names.
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case 16:
		return "BOOL"
	case 17:
		return "BYTEA"
	case 18:
		return "CHAR"
	case 20:
		return "INT8"
	case 21:
		return "INT2"
	case 23:
		return "INT4"
	case 25:
		return "TEXT"
	case 114:
		return "JSON"
	case 700:
		return "FLOAT4"
	case 701:
		return "FLOAT8"
	case 790:
		return "MONEY"
	case 1042:
		return "BPCHAR"
	case 1043:
		return "VARCHAR"
	case 1082:
		return "DATE"
	case 1083:
		return "TIME"
	case 1114:
		return "TIMESTAMP"
	case 1184:
		return "TIMESTAMPTZ"
	case 1186:
		return "INTERVAL"
	case 1700:
		return "NUMERIC"
	case 2950:
		return "UUID"
	case 3802:
		return "JSONB"
	default:
		return ""
	}
}
