// Package typeinfer maps store column types and sampled values onto the coarse
// semantic types used for prompting and chart inference.
package typeinfer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

// textLengthThreshold separates free text from categorical labels by mean length.
const textLengthThreshold = 64

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006/01/02",
}

// normalizeType lower-cases a declared type and strips length/precision, so
// "NUMERIC(10,2)" and "varchar(255)" compare as "numeric" and "varchar".
func normalizeType(dataType string) string {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	return t
}

// FromDeclaredType classifies a declared column type. ok is false when the type
// says nothing useful (empty, text-like, or unknown) and values must be sampled.
func FromDeclaredType(dataType string) (models.SemanticType, bool) {
	t := normalizeType(dataType)
	switch t {
	case "":
		return "", false
	case "integer", "int", "int2", "int4", "int8", "tinyint", "smallint", "mediumint", "bigint",
		"serial", "bigserial", "smallserial",
		"numeric", "decimal", "real", "double", "double precision", "float", "float4", "float8",
		"money", "smallmoney":
		return models.SemanticNumeric, true
	case "date", "datetime", "datetime2", "smalldatetime", "datetimeoffset",
		"timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone":
		return models.SemanticDate, true
	case "bool", "boolean", "bit", "uuid", "uniqueidentifier":
		return models.SemanticCategorical, true
	}
	switch {
	case strings.Contains(t, "int"):
		return models.SemanticNumeric, true
	case strings.HasPrefix(t, "timestamp"):
		return models.SemanticDate, true
	}
	return "", false
}

// InferColumn decides a column's semantic type from its declared type, falling
// back to the sampled values when the declaration is missing or text-like.
func InferColumn(dataType string, values []any) models.SemanticType {
	if st, ok := FromDeclaredType(dataType); ok {
		return st
	}
	return FromValues(values)
}

// FromValues infers a semantic type from sampled values. Nil values are ignored;
// a column with no non-nil values is categorical.
func FromValues(values []any) models.SemanticType {
	var (
		seen     int
		numeric  = true
		dates    = true
		totalLen int
	)
	for _, v := range values {
		if v == nil {
			continue
		}
		seen++
		if _, ok := ToFloat(v); !ok {
			numeric = false
		}
		if !IsDate(v) {
			dates = false
		}
		totalLen += len(Label(v))
	}
	switch {
	case seen == 0:
		return models.SemanticCategorical
	case numeric:
		return models.SemanticNumeric
	case dates:
		return models.SemanticDate
	case totalLen/seen > textLengthThreshold:
		return models.SemanticText
	default:
		return models.SemanticCategorical
	}
}

// ToFloat coerces a value to float64. Strings are coerced when they parse as a
// finite number; booleans and times are not numeric.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		f := float64(n)
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case []byte:
		return parseFloat(string(n))
	case string:
		return parseFloat(n)
	}
	return 0, false
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsDate reports whether v is a time or a string in a recognised date layout.
func IsDate(v any) bool {
	switch d := v.(type) {
	case time.Time:
		return true
	case []byte:
		return isDateString(string(d))
	case string:
		return isDateString(d)
	}
	return false
}

func isDateString(s string) bool {
	s = strings.TrimSpace(s)
	// Cheap shape check before trying layouts: dates start with a 4-digit year.
	if len(s) < 7 || s[4] != '-' && s[4] != '/' {
		return false
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// Label renders a value as an axis label.
func Label(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	case time.Time:
		if s.Hour() == 0 && s.Minute() == 0 && s.Second() == 0 && s.Nanosecond() == 0 {
			return s.Format("2006-01-02")
		}
		return s.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	if f, ok := ToFloat(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// Normalize converts driver-specific values into JSON-friendly ones: byte slices
// become strings, times are formatted and NaN or infinite floats become nil.
func Normalize(v any) any {
	switch s := v.(type) {
	case []byte:
		return string(s)
	case time.Time:
		return Label(s)
	case float64:
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return nil
		}
	case float32:
		if f := float64(s); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
	}
	return v
}
