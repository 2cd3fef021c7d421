package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern matches <think>...</think> tags that may appear at the start of LLM responses.
var thinkTagPattern = regexp.MustCompile(`(?s)^[\s]*<think>.*?</think>[\s]*`)

// ExtractJSONObject returns the first syntactically balanced JSON object in the
// response. Candidates that balance but do not parse (prose such as "{n} rows")
// are skipped, so surrounding commentary and code fences are tolerated.
func ExtractJSONObject(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	for from := 0; from < len(cleaned); {
		idx := strings.IndexByte(cleaned[from:], '{')
		if idx < 0 {
			break
		}
		start := from + idx
		if jsonStr, ok := balancedFrom(cleaned, start, '{', '}'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
		from = start + 1
	}

	return "", fmt.Errorf("no valid JSON object found in response")
}

// balancedFrom scans from s[start] (which must be openChar) to the matching
// closeChar, counting depth outside string literals.
func balancedFrom(s string, start int, openChar, closeChar byte) (string, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}

		if c == '\\' && inString {
			escaped = true
			continue
		}

		if c == '"' {
			inString = !inString
			continue
		}

		if inString {
			continue
		}

		if c == openChar {
			depth++
		} else if c == closeChar {
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}

// ParseJSONObject extracts the first JSON object from a response and unmarshals it.
func ParseJSONObject[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSONObject(response)
	if err != nil {
		return result, err
	}

	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return result, nil
}
