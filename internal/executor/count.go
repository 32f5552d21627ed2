package executor

import (
	"regexp"
	"strings"

	"nl2sql/internal/sqlguard"
)

var (
	updateTarget = regexp.MustCompile(`(?is)^\s*UPDATE\s+(.+?)\s+SET\b(.*)$`)
	deleteTarget = regexp.MustCompile(`(?is)^\s*DELETE\s+FROM\s+(.+)$`)
	wherePos     = regexp.MustCompile(`(?i)\bWHERE\b`)
	fromWord     = regexp.MustCompile(`(?i)\bFROM\b`)
	usingWord    = regexp.MustCompile(`(?i)\bUSING\b`)
	returning    = regexp.MustCompile(`(?is)\s+RETURNING\b.*$`)
)

// CountQueryFor rewrites an UPDATE or DELETE into the SELECT COUNT(*) that
// matches the same rows. Statements joining other tables are not rewritten.
func CountQueryFor(sql string) (string, bool) {
	sql = returning.ReplaceAllString(strings.TrimSuffix(strings.TrimSpace(sql), ";"), "")

	switch sqlguard.QueryType(sql) {
	case sqlguard.Update:
		m := updateTarget.FindStringSubmatch(sql)
		if m == nil {
			return "", false
		}
		target, rest := m[1], m[2]
		where := ""
		if loc := wherePos.FindStringIndex(rest); loc != nil {
			where = rest[loc[0]:]
			rest = rest[:loc[0]]
		}
		if fromWord.MatchString(rest) {
			return "", false
		}
		return strings.TrimSpace("SELECT COUNT(*) FROM " + strings.TrimSpace(target) + " " + where), true
	case sqlguard.Delete:
		m := deleteTarget.FindStringSubmatch(sql)
		if m == nil || usingWord.MatchString(m[1]) {
			return "", false
		}
		return "SELECT COUNT(*) FROM " + strings.TrimSpace(m[1]), true
	default:
		return "", false
	}
}
