package sqlguard

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	fenceOpen  = regexp.MustCompile("(?i)```sql\\n?")
	fenceClose = regexp.MustCompile("```\\n?")

	responsePrefixes   = []string{"SQL:", "Query:", "Answer:", "Here is the SQL:"}
	explanationMarkers = []string{"\n\nThis query", "\n\nThe above", "\n\nNote:", "\n\nExplanation:"}
)

// ExtractSQL pulls the bare statement out of a model response: code fences,
// answer prefixes, a trailing semicolon and any explanation that follows the
// query are removed.
func ExtractSQL(response string) string {
	sql := fenceOpen.ReplaceAllString(response, "")
	sql = fenceClose.ReplaceAllString(sql, "")

	for _, prefix := range responsePrefixes {
		trimmed := strings.TrimSpace(sql)
		if strings.HasPrefix(trimmed, prefix) {
			sql = strings.TrimPrefix(trimmed, prefix)
		}
	}

	sql = strings.TrimSpace(sql)
	for _, marker := range explanationMarkers {
		if idx := strings.Index(sql, marker); idx >= 0 {
			sql = strings.TrimSpace(sql[:idx])
		}
	}
	return strings.TrimSpace(strings.TrimSuffix(sql, ";"))
}

var (
	joinWord      = regexp.MustCompile(`\bJOIN\b`)
	aggregateWord = regexp.MustCompile(`\b(SUM|COUNT|AVG|MAX|MIN)\b`)
)

// Complexity is a rough cost score: joins weigh 2, subqueries 3, each
// aggregate 1, GROUP BY 2 and ORDER BY 1.
func Complexity(sql string) int {
	upper := strings.ToUpper(sql)
	score := len(joinWord.FindAllStringIndex(upper, -1)) * 2
	score += strings.Count(upper, "(SELECT") * 3
	score += len(aggregateWord.FindAllStringIndex(upper, -1))
	if strings.Contains(upper, "GROUP BY") {
		score += 2
	}
	if strings.Contains(upper, "ORDER BY") {
		score++
	}
	return score
}

var limitClause = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)`)

// LimitOf returns the LIMIT value of sql, if it has one.
func LimitOf(sql string) (int, bool) {
	m := limitClause.FindStringSubmatch(sql)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
