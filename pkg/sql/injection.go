package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a literal.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Value       string // The literal content that was checked
}

// CheckLiteralForInjection uses libinjection to detect SQL injection patterns
// in the content of a string literal. A model that was steered by a hostile
// question tends to smuggle payloads such as `x' OR '1'='1` inside literals.
//
// Returns nil if no injection is detected.
//
// Example:
//
//	CheckLiteralForInjection("Berlin")                // nil
//	CheckLiteralForInjection("'; DROP TABLE users--") // IsSQLi == true, Fingerprint "s&1c" (or similar)
func CheckLiteralForInjection(value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Value:       value,
		}
	}

	return nil
}
