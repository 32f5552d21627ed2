package sqlguard

import (
	"regexp"
	"strings"
)

var sqlToken = regexp.MustCompile(`"[^"]*"(?:\.(?:"[^"]*"|[A-Za-z_][\w$]*))?|[A-Za-z_][\w$]*(?:\.(?:"[^"]*"|[A-Za-z_][\w$]*))?|[(),;]`)

var clauseWords = map[string]bool{
	"WHERE": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true, "FULL": true,
	"CROSS": true, "OUTER": true, "NATURAL": true, "ON": true, "USING": true, "GROUP": true,
	"ORDER": true, "LIMIT": true, "OFFSET": true, "UNION": true, "HAVING": true, "SET": true,
	"VALUES": true, "RETURNING": true, "WINDOW": true, "FETCH": true, "FOR": true,
	"SELECT": true, "LATERAL": true, "ONLY": true, "EXCEPT": true, "INTERSECT": true,
}

// Words that may precede a parenthesised subquery or list without making
// it a function call.
var nonCallWords = map[string]bool{
	"FROM": true, "JOIN": true, "IN": true, "EXISTS": true, "AS": true, "ANY": true,
	"ALL": true, "SOME": true, "ON": true, "WHERE": true, "AND": true, "OR": true,
	"NOT": true, "SELECT": true, "LATERAL": true, "VALUES": true, "USING": true,
	"WITH": true, "UNION": true, "EXCEPT": true, "INTERSECT": true, "THEN": true,
	"ELSE": true, "WHEN": true, "RETURNING": true,
}

// scanTables is the token-level fallback for ExtractTables. FROM inside a
// function call, as in EXTRACT(YEAR FROM ts), does not start a table list.
func scanTables(sql string) []string {
	tokens := sqlToken.FindAllString(sql, -1)

	// inCall[i] is true when token i sits directly inside the parentheses of
	// a function call.
	inCall := make([]bool, len(tokens))
	var parens []bool
	for i, tok := range tokens {
		switch tok {
		case "(":
			call := i > 0 && isWord(tokens[i-1]) && !nonCallWords[strings.ToUpper(tokens[i-1])]
			parens = append(parens, call)
		case ")":
			if len(parens) > 0 {
				parens = parens[:len(parens)-1]
			}
		}
		inCall[i] = len(parens) > 0 && parens[len(parens)-1]
	}

	ctes := map[string]bool{}
	for i := 0; i+2 < len(tokens); i++ {
		if !isWord(tokens[i]) || !strings.EqualFold(tokens[i+1], "AS") || tokens[i+2] != "(" || i == 0 {
			continue
		}
		prev := strings.ToUpper(tokens[i-1])
		if prev == "WITH" || prev == "RECURSIVE" || prev == "," {
			ctes[strings.ToLower(tableName(tokens[i]))] = true
		}
	}

	seen := map[string]bool{}
	var tables []string
	add := func(tok string) {
		name := tableName(tok)
		if name == "" || seen[name] || ctes[strings.ToLower(name)] {
			return
		}
		seen[name] = true
		tables = append(tables, name)
	}
	isIdent := func(i int) bool {
		if i >= len(tokens) {
			return false
		}
		return isWord(tokens[i]) && !clauseWords[strings.ToUpper(tokens[i])]
	}

	for i := 0; i < len(tokens); i++ {
		kw := strings.ToUpper(tokens[i])
		switch kw {
		case "FROM", "JOIN", "INTO", "UPDATE":
		default:
			continue
		}
		if inCall[i] {
			continue
		}
		j := i + 1
		for isIdent(j) {
			add(tokens[j])
			j++
			if kw != "FROM" {
				break
			}
			if j < len(tokens) && strings.EqualFold(tokens[j], "AS") {
				j++
			}
			if isIdent(j) {
				j++
			}
			if j >= len(tokens) || tokens[j] != "," {
				break
			}
			j++
		}
	}
	return tables
}

func isWord(tok string) bool {
	switch tok {
	case "(", ")", ",", ";":
		return false
	}
	return true
}
