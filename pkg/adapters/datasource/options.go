package datasource

import "strconv"

// Adapter config maps come from the server config in Go types or from
// decoded JSON. These readers accept both and fall back to def.

// StringOption returns m[key] when it is a string.
func StringOption(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// IntOption reads an int, int64, float64 or numeric string.
func IntOption(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// BoolOption reads a bool or a strconv.ParseBool string.
func BoolOption(m map[string]any, key string, def bool) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
