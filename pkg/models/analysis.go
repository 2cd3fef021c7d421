package models

import "strings"

// Question is the inbound analysis request. DataFile optionally scopes the question
// to a single table.
type Question struct {
	Text     string `json:"query"`
	DataFile string `json:"dataFile,omitempty"`
}

// GeneratedQuery is the structured result extracted from a model response.
// Answer and Recommendations are optional extras some models return alongside the SQL.
type GeneratedQuery struct {
	SQL             string      `json:"sql"`
	ChartHints      []ChartHint `json:"chart_hints,omitempty"`
	Answer          string      `json:"answer,omitempty"`
	Recommendations []string    `json:"recommendations,omitempty"`
	Model           string      `json:"model,omitempty"`
}

// ValidationVerdict is the outcome of static SQL vetting. When Accepted is false,
// Reason holds a stable rejection code and SQL is empty.
type ValidationVerdict struct {
	Accepted bool   `json:"accepted"`
	SQL      string `json:"sql,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Accepted builds an accepting verdict for the sanitized SQL.
func Accepted(sql string) ValidationVerdict {
	return ValidationVerdict{Accepted: true, SQL: sql}
}

// Rejected builds a rejecting verdict.
func Rejected(reason, detail string) ValidationVerdict {
	return ValidationVerdict{Reason: reason, Detail: detail}
}

// Rejection reason codes.
const (
	RejectEmpty              = "empty"
	RejectMultipleStatements = "multiple_statements"
	RejectNotSelect          = "not_select"
	RejectForbiddenKeyword   = "forbidden_keyword"
	RejectUnknownTable       = "unknown_table"
	RejectParameterLimit     = "parameter_limit"
	RejectSuspiciousLiteral  = "suspicious_literal"
	RejectUnterminated       = "unterminated"
)

// ResultColumn describes one column of a result set.
type ResultColumn struct {
	Name   string       `json:"name"`
	Type   SemanticType `json:"type"`
	DBType string       `json:"db_type,omitempty"`
}

// ResultSet holds the SQL that was executed and the capped rows it returned.
// RowCountTotal may exceed len(Rows) when the row ceiling was hit. Treat as
// immutable once returned.
type ResultSet struct {
	SQL             string         `json:"sql"`
	Columns         []ResultColumn `json:"columns"`
	Rows            [][]any        `json:"rows"`
	RowCountTotal   int64          `json:"row_count_total"`
	ExecutionMillis int64          `json:"execution_ms"`
	Truncated       bool           `json:"truncated"`
}

// ColumnIndex returns the index of the named column, matching case-insensitively,
// or -1.
func (r *ResultSet) ColumnIndex(name string) int {
	if r == nil || name == "" {
		return -1
	}
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	for i, c := range r.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Records returns the rows as column-keyed maps.
func (r *ResultSet) Records() []map[string]any {
	if r == nil {
		return nil
	}
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for j, c := range r.Columns {
			if j < len(row) {
				rec[c.Name] = row[j]
			}
		}
		out[i] = rec
	}
	return out
}

// Narrative is the composer's output.
type Narrative struct {
	Answer          string   `json:"answer"`
	TextSummary     string   `json:"text_summary,omitempty"`
	Recommendations []string `json:"recommendations"`
	FromModel       bool     `json:"-"`
}

// AnalysisPayload is the body of a completed session.
type AnalysisPayload struct {
	SessionID       string            `json:"session_id,omitempty"`
	Answer          string            `json:"answer"`
	TextSummary     string            `json:"text_summary,omitempty"`
	SQLQuery        string            `json:"sql_query"`
	Columns         []ResultColumn    `json:"columns"`
	TableData       []map[string]any  `json:"table_data"`
	RowCount        int64             `json:"row_count"`
	ExecutionTime   float64           `json:"execution_time"`
	Truncated       bool              `json:"truncated"`
	Visualizations  []ChartDescriptor `json:"visualizations"`
	Recommendations []string          `json:"recommendations"`
}
