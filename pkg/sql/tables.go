package sql

import "strings"

// clauseKeywords end a table reference or cannot be a table name.
var clauseKeywords = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true, "OFFSET": true,
	"FETCH": true, "UNION": true, "EXCEPT": true, "INTERSECT": true, "WINDOW": true,
	"JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true,
	"CROSS": true, "NATURAL": true, "ON": true, "USING": true, "AS": true, "SELECT": true,
	"FROM": true, "WITH": true, "LATERAL": true, "ONLY": true, "TABLESAMPLE": true, "QUALIFY": true,
	"INDEXED": true, "NOT": true, "FOR": true, "OPTION": true, "PIVOT": true, "UNPIVOT": true,
	"VALUES": true, "RETURNING": true,
}

// listBreakers end a comma-separated FROM list.
var listBreakers = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true, "OFFSET": true,
	"FETCH": true, "UNION": true, "EXCEPT": true, "INTERSECT": true, "WINDOW": true,
	"QUALIFY": true, "SELECT": true, "FOR": true, "OPTION": true, "RETURNING": true,
}

// tableRef is a name read in table position. Qualifiers holds the dotted
// prefix, outermost first (catalog, schema).
type tableRef struct {
	qualifiers []string
	name       string
}

func (r tableRef) String() string {
	return strings.Join(append(append([]string(nil), r.qualifiers...), r.name), ".")
}

type scopeKind int

const (
	scopeQuery  scopeKind = iota // statement or subquery
	scopeTables                  // parenthesized table group: FROM (a JOIN b)
	scopeExpr                    // function arguments, IN lists, column lists
)

type scope struct {
	kind        scopeKind
	expectTable bool // the next name is a table reference
	inFromList  bool // a comma starts another table reference
}

// tableReferences walks the significant tokens and returns every name read in
// table position plus the set of names declared by WITH clauses, lower-cased.
//
// Each open paren starts a scope. Parens in table position open a subquery or
// a table group; other parens open an expression, where FROM belongs to
// EXTRACT(YEAR FROM d) or SUBSTRING(x FROM 1) rather than a table list.
func tableReferences(sig []token) ([]tableRef, map[string]bool) {
	var refs []tableRef
	ctes := make(map[string]bool)
	scopes := []*scope{{kind: scopeQuery}}

	for i := 0; i < len(sig); i++ {
		t := sig[i]
		cur := scopes[len(scopes)-1]

		switch {
		case t.isPunct("("):
			next := &scope{kind: scopeExpr}
			switch {
			case i+1 < len(sig) && startsQuery(sig[i+1]):
				next.kind = scopeQuery
			case cur.kind != scopeExpr && cur.expectTable:
				next = &scope{kind: scopeTables, expectTable: true, inFromList: true}
			}
			cur.expectTable = false
			scopes = append(scopes, next)
			continue
		case t.isPunct(")"):
			if len(scopes) > 1 {
				scopes = scopes[:len(scopes)-1]
			}
			continue
		}
		if cur.kind == scopeExpr {
			continue
		}

		kw := t.upper()
		switch {
		case t.isPunct(","):
			cur.expectTable = cur.inFromList
		case kw == "WITH":
			collectCTENames(sig, i+1, ctes)
			cur.expectTable = false
		case kw == "FROM":
			if isDistinctFrom(sig, i) {
				continue
			}
			cur.expectTable = true
			cur.inFromList = true
		case kw == "JOIN":
			cur.expectTable = true
		case kw == "LATERAL" || kw == "ONLY":
			// Modifiers in table position; the reference follows.
		case listBreakers[kw]:
			cur.expectTable = false
			cur.inFromList = false
		case clauseKeywords[kw]:
			cur.expectTable = false
		case cur.expectTable:
			ref, next, ok := readTableName(sig, i)
			cur.expectTable = false
			if !ok {
				continue
			}
			// A table-valued function's arguments open an expression scope
			// on the next pass; its name is still checked as a table.
			refs = append(refs, ref)
			i = next - 1
		}
	}
	return refs, ctes
}

// startsQuery reports whether a paren opening before t holds a query.
func startsQuery(t token) bool {
	switch t.upper() {
	case "SELECT", "WITH", "VALUES":
		return true
	}
	return false
}

// isDistinctFrom reports whether the FROM at sig[i] is part of
// IS [NOT] DISTINCT FROM.
func isDistinctFrom(sig []token, i int) bool {
	if i < 2 || sig[i-1].upper() != "DISTINCT" {
		return false
	}
	prev := sig[i-2].upper()
	return prev == "IS" || prev == "NOT"
}

// readTableName reads a possibly qualified name starting at sig[i] and returns
// it with the index of the first token after it. String literals count as
// names since SQLite resolves FROM 't' to table t.
func readTableName(sig []token, i int) (tableRef, int, bool) {
	part := func(t token) (string, bool) {
		if t.kind == tokenString {
			return t.value, true
		}
		n := t.name()
		return n, n != ""
	}

	name, ok := part(sig[i])
	if !ok {
		return tableRef{}, i, false
	}
	var ref tableRef
	i++
	for i+1 < len(sig) && sig[i].isPunct(".") {
		n, ok := part(sig[i+1])
		if !ok {
			break
		}
		ref.qualifiers = append(ref.qualifiers, name)
		name = n
		i += 2
	}
	ref.name = name
	return ref, i, true
}

// collectCTENames records the names declared by the WITH clause starting at
// sig[i]: `[RECURSIVE] name [(cols)] AS [NOT] [MATERIALIZED] (body)`, repeated
// with commas. Bodies are skipped here; the main walk descends into them.
func collectCTENames(sig []token, i int, ctes map[string]bool) {
	if i < len(sig) && sig[i].upper() == "RECURSIVE" {
		i++
	}
	for i < len(sig) {
		name := sig[i].name()
		if name == "" {
			return
		}
		ctes[strings.ToLower(name)] = true
		i++
		if i < len(sig) && sig[i].isPunct("(") {
			i = skipParens(sig, i)
		}
		if i >= len(sig) || sig[i].upper() != "AS" {
			return
		}
		i++
		for i < len(sig) && (sig[i].upper() == "NOT" || sig[i].upper() == "MATERIALIZED") {
			i++
		}
		if i >= len(sig) || !sig[i].isPunct("(") {
			return
		}
		i = skipParens(sig, i)
		if i >= len(sig) || !sig[i].isPunct(",") {
			return
		}
		i++
	}
}

// skipParens returns the index just past the paren group opening at sig[i].
func skipParens(sig []token, i int) int {
	depth := 0
	for ; i < len(sig); i++ {
		switch {
		case sig[i].isPunct("("):
			depth++
		case sig[i].isPunct(")"):
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}
