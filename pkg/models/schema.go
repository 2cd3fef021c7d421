package models

import (
	"sort"
	"strings"
)

// SemanticType is the coarse type used for prompting and chart inference.
type SemanticType string

const (
	SemanticNumeric     SemanticType = "numeric"
	SemanticDate        SemanticType = "date"
	SemanticCategorical SemanticType = "categorical"
	SemanticText        SemanticType = "text"
)

// SchemaColumn is a single column of a discovered table.
type SchemaColumn struct {
	Name         string       `json:"name"`
	DataType     string       `json:"data_type"`
	SemanticType SemanticType `json:"semantic_type"`
	IsNullable   bool         `json:"is_nullable"`
}

// SchemaTable is a discovered table with its ordered columns. Schema is the
// owning namespace (public, dbo, main), empty when the store has none.
type SchemaTable struct {
	Name     string         `json:"name"`
	Schema   string         `json:"schema,omitempty"`
	Columns  []SchemaColumn `json:"columns"`
	RowCount int64          `json:"row_count"`
}

// ColumnNames returns the table's column names in ordinal order.
func (t SchemaTable) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// SchemaDescriptor is the read-only description of the dataset used as generation
// context. It is built once and never mutated; a reload produces a new descriptor.
type SchemaDescriptor struct {
	tables []SchemaTable
	index  map[string]int
}

// NewSchemaDescriptor copies tables into an immutable descriptor, ordered by name.
func NewSchemaDescriptor(tables []SchemaTable) *SchemaDescriptor {
	cp := make([]SchemaTable, len(tables))
	for i, t := range tables {
		cols := make([]SchemaColumn, len(t.Columns))
		copy(cols, t.Columns)
		cp[i] = SchemaTable{Name: t.Name, Schema: t.Schema, Columns: cols, RowCount: t.RowCount}
	}
	sort.Slice(cp, func(i, j int) bool { return cp[i].Name < cp[j].Name })

	index := make(map[string]int, len(cp))
	for i, t := range cp {
		index[strings.ToLower(t.Name)] = i
	}
	return &SchemaDescriptor{tables: cp, index: index}
}

// Tables returns a copy of the descriptor's tables.
func (d *SchemaDescriptor) Tables() []SchemaTable {
	if d == nil {
		return nil
	}
	out := make([]SchemaTable, len(d.tables))
	for i, t := range d.tables {
		cols := make([]SchemaColumn, len(t.Columns))
		copy(cols, t.Columns)
		out[i] = SchemaTable{Name: t.Name, Schema: t.Schema, Columns: cols, RowCount: t.RowCount}
	}
	return out
}

// Table looks up a table by name, case-insensitively.
func (d *SchemaDescriptor) Table(name string) (SchemaTable, bool) {
	if d == nil {
		return SchemaTable{}, false
	}
	i, ok := d.index[strings.ToLower(name)]
	if !ok {
		return SchemaTable{}, false
	}
	t := d.tables[i]
	cols := make([]SchemaColumn, len(t.Columns))
	copy(cols, t.Columns)
	return SchemaTable{Name: t.Name, Schema: t.Schema, Columns: cols, RowCount: t.RowCount}, true
}

// HasTable reports whether name is a known table (case-insensitive).
func (d *SchemaDescriptor) HasTable(name string) bool {
	if d == nil {
		return false
	}
	_, ok := d.index[strings.ToLower(name)]
	return ok
}

// TableSchema returns the schema owning a known table, or "" when the table is
// unknown or unqualified.
func (d *SchemaDescriptor) TableSchema(name string) string {
	if d == nil {
		return ""
	}
	i, ok := d.index[strings.ToLower(name)]
	if !ok {
		return ""
	}
	return d.tables[i].Schema
}

// TableCount returns the number of tables.
func (d *SchemaDescriptor) TableCount() int {
	if d == nil {
		return 0
	}
	return len(d.tables)
}

// TotalRows sums the row counts of all tables.
func (d *SchemaDescriptor) TotalRows() int64 {
	if d == nil {
		return 0
	}
	var total int64
	for _, t := range d.tables {
		total += t.RowCount
	}
	return total
}

// Narrow returns a descriptor containing only the named table when it exists,
// otherwise the receiver itself.
func (d *SchemaDescriptor) Narrow(table string) *SchemaDescriptor {
	if d == nil || table == "" {
		return d
	}
	t, ok := d.Table(table)
	if !ok {
		return d
	}
	return NewSchemaDescriptor([]SchemaTable{t})
}
