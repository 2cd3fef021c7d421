// Package jsonutil decodes loosely typed JSON produced by language models.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexibleStringValue converts a json.RawMessage to a string. Models sometimes
// return numbers or booleans where a string was asked for. Null and empty input
// yield "".
func FlexibleStringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == float64(int64(n)) {
			return strconv.FormatInt(int64(n), 10)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	}

	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}

	return string(raw)
}

// FlexibleStringList converts a json.RawMessage into a list of non-empty
// strings. It accepts an array of scalars, a single scalar, or a newline
// separated string; objects inside an array contribute their "text" or
// "recommendation" field.
func FlexibleStringList(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		var out []string
		for _, line := range strings.Split(FlexibleStringValue(raw), "\n") {
			if line = strings.TrimSpace(strings.TrimLeft(line, "-*• ")); line != "" {
				out = append(out, line)
			}
		}
		return out
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err == nil {
			s = FlexibleStringValue(obj["text"])
			if s == "" {
				s = FlexibleStringValue(obj["recommendation"])
			}
		} else {
			s = FlexibleStringValue(item)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
