package sql

import (
	"testing"
)

func TestCheckLiteralForInjection(t *testing.T) {
	tests := []struct {
		name            string
		value           string
		expectInjection bool
	}{
		// Clean values
		{name: "numeric string", value: "12345"},
		{name: "email address", value: "user@example.com"},
		{name: "date string", value: "2024-01-15"},
		{name: "UUID", value: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "search term", value: "laptop computers"},
		{name: "city name", value: "San Francisco"},
		{name: "empty", value: ""},
		{name: "apostrophe in name", value: "O'Brien"},
		{name: "natural language", value: "SELECT the best option from the menu"},

		// Injection attempts
		{name: "classic OR", value: "' OR '1'='1", expectInjection: true},
		{name: "stacked drop", value: "'; DROP TABLE users--", expectInjection: true},
		{name: "union select", value: "1 UNION SELECT * FROM passwords", expectInjection: true},
		{name: "comment truncation", value: "admin'--", expectInjection: true},
		{name: "tautology with comment", value: "' OR 1=1--", expectInjection: true},
		{name: "time based", value: "1' AND SLEEP(5)--", expectInjection: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckLiteralForInjection(tt.value)

			if tt.expectInjection {
				if result == nil {
					t.Fatalf("expected injection to be detected for %q", tt.value)
				}
				if !result.IsSQLi {
					t.Error("expected IsSQLi to be true")
				}
				if result.Fingerprint == "" {
					t.Error("expected a fingerprint")
				}
				if result.Value != tt.value {
					t.Errorf("expected value %q, got %q", tt.value, result.Value)
				}
			} else if result != nil {
				t.Errorf("expected no injection for %q, got fingerprint %s", tt.value, result.Fingerprint)
			}
		})
	}
}
