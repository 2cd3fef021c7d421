package llm

import (
	"testing"
)

func TestExtractJSONObject_PlainObject(t *testing.T) {
	input := `{"sql": "SELECT 1", "charts": []}`
	result, err := ExtractJSONObject(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != input {
		t.Errorf("expected %q, got %q", input, result)
	}
}

func TestExtractJSONObject_NestedObject(t *testing.T) {
	input := `{"sql": "SELECT 1", "charts": [{"type": "bar", "chart_config": {"xAxis": "city"}}]}`
	result, err := ExtractJSONObject(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != input {
		t.Errorf("expected %q, got %q", input, result)
	}
}

func TestExtractJSONObject_CodeFenceAndProse(t *testing.T) {
	input := "Here is the query you asked for:\n```json\n{\"sql\": \"SELECT name FROM customers\"}\n```\nLet me know if you need more."
	expected := `{"sql": "SELECT name FROM customers"}`
	result, err := ExtractJSONObject(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestExtractJSONObject_WithThinkTags(t *testing.T) {
	input := `<think>
The user wants revenue per city. {maybe group by city}
</think>
{"sql": "SELECT city, SUM(revenue) FROM sales GROUP BY city"}`

	expected := `{"sql": "SELECT city, SUM(revenue) FROM sales GROUP BY city"}`
	result, err := ExtractJSONObject(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestExtractJSONObject_SkipsBalancedProseBraces(t *testing.T) {
	input := `The template is {n} rows. Result: {"sql": "SELECT 1"} done`
	expected := `{"sql": "SELECT 1"}`
	result, err := ExtractJSONObject(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestExtractJSONObject_BracesInsideStrings(t *testing.T) {
	input := `{"sql": "SELECT '}' AS brace, '{' AS other FROM t", "note": "escaped \" quote"}`
	result, err := ExtractJSONObject(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != input {
		t.Errorf("expected %q, got %q", input, result)
	}
}

func TestExtractJSONObject_ReturnsFirstObject(t *testing.T) {
	input := `{"sql": "SELECT 1"} and also {"sql": "SELECT 2"}`
	expected := `{"sql": "SELECT 1"}`
	result, err := ExtractJSONObject(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestExtractJSONObject_NoJSON(t *testing.T) {
	for _, input := range []string{"", "I cannot help with that.", `{"sql": "SELECT 1"`, `[1, 2, 3]`} {
		if _, err := ExtractJSONObject(input); err == nil {
			t.Errorf("expected error for input %q", input)
		}
	}
}

func TestParseJSONObject(t *testing.T) {
	type response struct {
		SQL string `json:"sql"`
	}

	got, err := ParseJSONObject[response]("Sure!\n{\"sql\": \"SELECT 2\"}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SQL != "SELECT 2" {
		t.Errorf("expected SELECT 2, got %q", got.SQL)
	}

	if _, err := ParseJSONObject[response](`{"sql": 42}`); err == nil {
		t.Error("expected unmarshal error for wrong field type")
	}
}
