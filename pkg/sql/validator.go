// Package sql statically vets model-generated SQL before it reaches a store.
package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
)

// TableSet reports which tables exist and the schema owning each.
// *models.SchemaDescriptor satisfies it.
type TableSet interface {
	HasTable(name string) bool
	// TableSchema returns the schema of a known table, empty when the store
	// has none.
	TableSchema(name string) string
}

// Policy bounds what an accepted query may contain.
type Policy struct {
	// MaxParameters caps placeholders plus literals; zero disables the check.
	MaxParameters int
	// ScreenLiterals runs string literals through libinjection.
	ScreenLiterals bool
}

// forbiddenKeywords reject a query wherever they appear, including inside
// comments and string literals. Matching is on word boundaries, so columns such
// as updated_at or created_by are unaffected.
var forbiddenKeywords = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|ATTACH|DETACH|PRAGMA|ALTER|CREATE|TRUNCATE|GRANT|REVOKE|MERGE|VACUUM|REINDEX|UPSERT|EXEC|EXECUTE|CALL|COPY|LOAD_EXTENSION|REPLACE\s+INTO)\b`)

// normalize rebuilds the query without comments or the trailing semicolon and
// returns the remaining significant tokens.
func normalize(query string, tokens []token) (string, []token) {
	sig := significant(tokens)
	if n := len(sig); n > 0 && sig[n-1].kind == tokenSemicolon {
		sig = sig[:n-1]
	}
	if len(sig) == 0 {
		return "", nil
	}

	var sb strings.Builder
	prevEnd := sig[0].start
	for _, t := range sig {
		if t.start > prevEnd {
			// Gaps holding a comment collapse to one space.
			if gap := query[prevEnd:t.start]; strings.TrimSpace(gap) == "" {
				sb.WriteString(gap)
			} else {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.text)
		prevEnd = t.end
	}
	return strings.TrimSpace(sb.String()), sig
}

// Validate applies the read-only safety policy to a generated query. The
// returned verdict carries the sanitized SQL on acceptance or a stable reason
// code on rejection.
func Validate(query string, tables TableSet, policy Policy) models.ValidationVerdict {
	query = strings.TrimSpace(query)
	if query == "" {
		return models.Rejected(models.RejectEmpty, "query is empty")
	}

	if m := forbiddenKeywords.FindString(query); m != "" {
		return models.Rejected(models.RejectForbiddenKeyword,
			fmt.Sprintf("keyword %q is not allowed", strings.ToUpper(strings.Join(strings.Fields(m), " "))))
	}

	tokens, err := tokenize(query)
	if err != nil {
		return models.Rejected(models.RejectUnterminated, err.Error())
	}

	sanitized, sig := normalize(query, tokens)
	if len(sig) == 0 {
		return models.Rejected(models.RejectEmpty, "query contains no statement")
	}
	for _, t := range sig {
		if t.kind == tokenSemicolon {
			return models.Rejected(models.RejectMultipleStatements, ErrMultipleStatements.Error())
		}
	}

	if !isSelect(sig) {
		return models.Rejected(models.RejectNotSelect, "only SELECT statements are allowed")
	}
	for _, t := range sig {
		if t.upper() == "INTO" {
			return models.Rejected(models.RejectForbiddenKeyword, `keyword "INTO" is not allowed`)
		}
	}

	refs, ctes := tableReferences(sig)
	for _, ref := range refs {
		if len(ref.qualifiers) == 0 && ctes[strings.ToLower(ref.name)] {
			continue
		}
		if !knownTable(tables, ref) {
			return models.Rejected(models.RejectUnknownTable, fmt.Sprintf("table %q is not part of the dataset", ref))
		}
	}

	if policy.MaxParameters > 0 {
		if n := countParameters(sig); n > policy.MaxParameters {
			return models.Rejected(models.RejectParameterLimit,
				fmt.Sprintf("query uses %d parameters and literals; the store allows %d", n, policy.MaxParameters))
		}
	}

	if policy.ScreenLiterals {
		for _, t := range sig {
			if t.kind != tokenString {
				continue
			}
			if res := CheckLiteralForInjection(t.value); res != nil {
				return models.Rejected(models.RejectSuspiciousLiteral,
					fmt.Sprintf("string literal matches injection pattern %s", res.Fingerprint))
			}
		}
	}

	return models.Accepted(sanitized)
}

// isSelect reports whether the statement is a SELECT, optionally preceded by
// opening parentheses or a WITH clause.
func isSelect(sig []token) bool {
	for _, t := range sig {
		if t.isPunct("(") {
			continue
		}
		switch t.upper() {
		case "SELECT", "WITH":
			return true
		}
		return false
	}
	return false
}

// knownTable accepts a bare dataset table, or one qualified by the schema that
// owns it. Catalog-qualified names reach outside the connected database.
func knownTable(tables TableSet, ref tableRef) bool {
	if tables == nil || len(ref.qualifiers) > 1 || !tables.HasTable(ref.name) {
		return false
	}
	if len(ref.qualifiers) == 1 {
		return strings.EqualFold(ref.qualifiers[0], tables.TableSchema(ref.name))
	}
	return true
}

// countParameters counts placeholders and literal values.
func countParameters(sig []token) int {
	n := 0
	for _, t := range sig {
		switch t.kind {
		case tokenPlaceholder, tokenString, tokenNumber:
			n++
		}
	}
	return n
}

// ReferencedTables returns the table names a query reads from, excluding names
// defined by its own WITH clause.
func ReferencedTables(query string) ([]string, error) {
	tokens, err := tokenize(query)
	if err != nil {
		return nil, err
	}
	refs, ctes := tableReferences(significant(tokens))
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if len(r.qualifiers) > 0 || !ctes[strings.ToLower(r.name)] {
			out = append(out, r.name)
		}
	}
	return out, nil
}
