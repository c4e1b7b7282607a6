// Copyright (C) 2026 Sports-See Maintainers
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sqlgen

import (
	"strings"

	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/datatypes"
	"github.com/shah-data-scientist/Sports-See-sub000/services/orchestrator/stats"
)

// forbiddenKeywords are rejected anywhere in the statement, not only in
// first position, so "SELECT ...; DROP ..." variants die in the sniff even
// before the store's multi-statement guard sees them.
var forbiddenKeywords = map[string]struct{}{
	"insert": {}, "update": {}, "delete": {}, "drop": {},
	"alter": {}, "attach": {}, "pragma": {},
}

// sqlKeywords and sqlFunctions are the identifier-shaped tokens the
// semantic sniff must not mistake for schema references.
var sqlKeywords = map[string]struct{}{
	"select": {}, "from": {}, "where": {}, "group": {}, "by": {}, "order": {},
	"having": {}, "limit": {}, "offset": {}, "as": {}, "on": {}, "join": {},
	"inner": {}, "left": {}, "right": {}, "outer": {}, "cross": {}, "and": {},
	"or": {}, "not": {}, "in": {}, "is": {}, "null": {}, "distinct": {},
	"all": {}, "union": {}, "between": {}, "like": {}, "glob": {}, "case": {},
	"when": {}, "then": {}, "else": {}, "end": {}, "exists": {}, "asc": {},
	"desc": {}, "collate": {}, "nocase": {},
}

var sqlFunctions = map[string]struct{}{
	"count": {}, "sum": {}, "avg": {}, "min": {}, "max": {}, "total": {},
	"round": {}, "abs": {}, "cast": {}, "coalesce": {}, "ifnull": {},
	"nullif": {}, "length": {}, "lower": {}, "upper": {}, "substr": {},
	"printf": {}, "integer": {}, "real": {}, "text": {}, "numeric": {},
}

// SniffSyntax is the first validation stage: the statement must start
// with SELECT, keep parentheses balanced outside string literals, and
// contain no forbidden keyword.
func SniffSyntax(sqlText string) error {
	toks := tokenize(sqlText)
	if len(toks) == 0 || toks[0] != "select" {
		return datatypes.NewError(datatypes.KindSQLSyntaxInvalid, "statement does not begin with SELECT")
	}
	for _, tok := range toks {
		if _, bad := forbiddenKeywords[tok]; bad {
			return datatypes.Errorf(datatypes.KindSQLForbiddenStatement,
				"forbidden keyword %q", strings.ToUpper(tok))
		}
	}
	if !parensBalanced(sqlText) {
		return datatypes.NewError(datatypes.KindSQLSyntaxInvalid, "unbalanced parentheses")
	}
	return nil
}

// SniffIdentifiers is the second validation stage: every identifier-shaped
// token must be a schema table, a schema column, a declared alias, or a
// known keyword/function. Anything else is a hallucination and the
// statement is rejected before it can touch the store.
func SniffIdentifiers(sqlText string, schema stats.SchemaDescription) error {
	ids := schema.Identifiers()
	tables := make(map[string]struct{}, len(schema.Tables))
	for _, t := range schema.Tables {
		tables[strings.ToLower(t.Name)] = struct{}{}
	}

	toks := tokenize(sqlText)
	aliases := collectAliases(toks, tables, ids)
	for _, tok := range toks {
		if tok[0] >= '0' && tok[0] <= '9' {
			continue
		}
		if _, ok := sqlKeywords[tok]; ok {
			continue
		}
		if _, ok := sqlFunctions[tok]; ok {
			continue
		}
		if _, ok := ids[tok]; ok {
			continue
		}
		if _, ok := aliases[tok]; ok {
			continue
		}
		return datatypes.Errorf(datatypes.KindSQLSyntaxInvalid,
			"identifier %q is not part of the schema", tok)
	}
	return nil
}

// collectAliases finds alias declarations: any token following AS, and any
// non-keyword token directly following a table name (the "FROM players p"
// shape).
func collectAliases(toks []string, tables, ids map[string]struct{}) map[string]struct{} {
	aliases := make(map[string]struct{})
	for i, tok := range toks {
		if i+1 >= len(toks) {
			break
		}
		next := toks[i+1]
		if tok == "as" {
			aliases[next] = struct{}{}
			continue
		}
		if _, isTable := tables[tok]; !isTable {
			continue
		}
		if _, isKeyword := sqlKeywords[next]; isKeyword {
			continue
		}
		if _, isSchema := ids[next]; isSchema {
			continue
		}
		if next[0] >= '0' && next[0] <= '9' {
			continue
		}
		aliases[next] = struct{}{}
	}
	return aliases
}

// tokenize lowercases identifier-shaped tokens in order, skipping string
// literals. Dots split qualified names so "p.pts" yields "p" and "pts".
func tokenize(sqlText string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	inString := false
	for i := 0; i < len(sqlText); i++ {
		c := sqlText[i]
		switch {
		case inString:
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			flush()
			inString = true
		case isIdentByte(c):
			cur.WriteByte(c)
		default:
			flush()
		}
	}
	flush()
	return toks
}

func isIdentByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// parensBalanced checks nesting outside string literals.
func parensBalanced(sqlText string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(sqlText); i++ {
		switch sqlText[i] {
		case '\'':
			inString = !inString
		case '(':
			if !inString {
				depth++
			}
		case ')':
			if !inString {
				depth--
				if depth < 0 {
					return false
				}
			}
		}
	}
	return depth == 0 && !inString
}
