// Package sqlguard inspects SQL text before it is allowed anywhere near a
// database. All checks are text level; nothing here parses SQL properly.
package sqlguard

import (
	"fmt"
	"regexp"
	"strings"
)

type Mode int

const (
	ReadOnly Mode = iota
	Privileged
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case Privileged:
		return "dba"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the names used in audit records and request payloads.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "readonly", "read-only", "read_only":
		return ReadOnly, nil
	case "dba", "privileged":
		return Privileged, nil
	default:
		return ReadOnly, fmt.Errorf("unknown mode %q", s)
	}
}

// Verdict is the outcome of Check. IsSafe is true iff Issues is empty.
type Verdict struct {
	IsSafe bool     `json:"is_safe"`
	Issues []string `json:"issues"`
}

const (
	IssueEmpty           = "Empty query"
	IssueReadOnly        = "Only SELECT queries allowed in read-only mode"
	IssueInjection       = "Potential SQL injection detected"
	IssueUnbalancedParen = "Unbalanced parentheses"
	IssueUnbalancedQuote = "Unbalanced single quotes"
)

var destructiveKeywords = []string{"DROP", "TRUNCATE", "ALTER", "CREATE", "RENAME"}

var destructivePatterns = compileWords(destructiveKeywords)

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);.*DROP`),
	regexp.MustCompile(`(?i);.*DELETE`),
	regexp.MustCompile(`(?i);.*UPDATE`),
	regexp.MustCompile(`(?i)UNION.*SELECT`),
	regexp.MustCompile(`(?im)--.*$`),
	regexp.MustCompile(`(?is)/\*.*\*/`),
	regexp.MustCompile(`(?i)xp_cmdshell`),
	regexp.MustCompile(`(?i)exec\s*\(`),
}

var (
	whereClause    = regexp.MustCompile(`(?i)\bWHERE\b`)
	cteMutation    = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE)\b`)
	containsSelect = regexp.MustCompile(`(?i)\bSELECT\b`)
)

func compileWords(words []string) map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(words))
	for _, w := range words {
		out[w] = regexp.MustCompile(`(?i)\b` + w + `\b`)
	}
	return out
}

// Check runs every rule for the given mode and collects all issues found.
// It is pure: the same input always yields the same verdict.
func Check(sql string, mode Mode) Verdict {
	if strings.TrimSpace(sql) == "" {
		return Verdict{IsSafe: false, Issues: []string{IssueEmpty}}
	}

	var issues []string

	if mode == ReadOnly && !isSelectOnly(sql) {
		issues = append(issues, IssueReadOnly)
	}

	issues = append(issues, CheckDestructive(sql)...)

	if HasInjection(sql) {
		issues = append(issues, IssueInjection)
	}

	if !parensBalanced(sql) {
		issues = append(issues, IssueUnbalancedParen)
	}
	if strings.Count(sql, "'")%2 != 0 {
		issues = append(issues, IssueUnbalancedQuote)
	}

	if mode == Privileged {
		qt := QueryType(sql)
		if (qt == Update || qt == Delete) && !HasWhereClause(sql) {
			issues = append(issues, fmt.Sprintf("%s query without WHERE clause - affects all rows!", qt))
		}
	}

	return Verdict{IsSafe: len(issues) == 0, Issues: issues}
}

// CheckDestructive reports one issue per destructive keyword found as a
// whole word anywhere in sql.
func CheckDestructive(sql string) []string {
	var issues []string
	for _, kw := range destructiveKeywords {
		if destructivePatterns[kw].MatchString(sql) {
			issues = append(issues, "Destructive operation detected: "+kw)
		}
	}
	return issues
}

// HasInjection reports whether sql matches a known injection shape or holds
// more than one statement.
func HasInjection(sql string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(sql) {
			return true
		}
	}
	return len(SplitStatements(sql)) > 1
}

func HasWhereClause(sql string) bool {
	return whereClause.MatchString(sql)
}

// isSelectOnly treats WITH as read-only only when no mutating keyword shows
// up anywhere in the text, string literals and comments included.
func isSelectOnly(sql string) bool {
	switch leadingKeyword(sql) {
	case "SELECT":
		return true
	case "WITH":
		return containsSelect.MatchString(sql) && !cteMutation.MatchString(sql)
	default:
		return false
	}
}

func parensBalanced(sql string) bool {
	depth := 0
	for _, r := range sql {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}
