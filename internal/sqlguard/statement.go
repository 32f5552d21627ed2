package sqlguard

import (
	"strings"
	"unicode"
)

type StatementType int

const (
	Unknown StatementType = iota
	Select
	Insert
	Update
	Delete
	DDL
)

func (t StatementType) String() string {
	switch t {
	case Select:
		return "SELECT"
	case Insert:
		return "INSERT"
	case Update:
		return "UPDATE"
	case Delete:
		return "DELETE"
	case DDL:
		return "DDL"
	default:
		return "UNKNOWN"
	}
}

// QueryType classifies a statement by its leading keyword. WITH counts as a
// SELECT; anything that is not DML is DDL.
func QueryType(sql string) StatementType {
	switch leadingKeyword(sql) {
	case "":
		return Unknown
	case "SELECT", "WITH":
		return Select
	case "INSERT":
		return Insert
	case "UPDATE":
		return Update
	case "DELETE":
		return Delete
	default:
		return DDL
	}
}

// leadingKeyword returns the first word of sql in upper case, skipping
// whitespace and comments.
func leadingKeyword(sql string) string {
	s := skipSpaceAndComments(sql)
	end := strings.IndexFunc(s, func(r rune) bool {
		return !(unicode.IsLetter(r) || r == '_')
	})
	if end == -1 {
		end = len(s)
	}
	return strings.ToUpper(s[:end])
}

func skipSpaceAndComments(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"):
			nl := strings.IndexByte(s, '\n')
			if nl == -1 {
				return ""
			}
			s = s[nl+1:]
		case strings.HasPrefix(s, "/*"):
			end := strings.Index(s[2:], "*/")
			if end == -1 {
				return ""
			}
			s = s[end+4:]
		default:
			return s
		}
	}
}

// SplitStatements splits sql on semicolons that sit outside quotes and
// comments, dropping empty statements.
func SplitStatements(sql string) []string {
	var (
		out     []string
		current strings.Builder
		quote   rune
		line    bool
		block   bool
	)
	runes := []rune(sql)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		switch {
		case line:
			if r == '\n' {
				line = false
			}
		case block:
			if r == '*' && next == '/' {
				block = false
				current.WriteRune(r)
				i++
				r = next
			}
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '-' && next == '-':
			line = true
		case r == '/' && next == '*':
			block = true
		case r == ';':
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return out
}
