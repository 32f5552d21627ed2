package classify

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var guidance = map[Kind]string{
	ColumnName: `The query references a column that doesn't exist.

Error: {error}

Please review the schema below and use only the columns that actually exist.
Ensure column names are spelled correctly and match the case if necessary.

Available Schema:
{schema}`,

	TableName: `The query references a table that doesn't exist.

Error: {error}

Please review the schema below and use only the tables that actually exist.
Ensure table names are spelled correctly.

Available Schema:
{schema}`,

	Syntax: `There's a SQL syntax error in the query.

Error: {error}

Common syntax issues:
- Missing or extra commas
- Unmatched parentheses
- Incorrect keyword order
- Missing required clauses

Please fix the syntax according to PostgreSQL standards.

Schema for reference:
{schema}`,

	TypeMismatch: `There's a data type mismatch in the query.

Error: {error}

Common type issues:
- Comparing incompatible types (e.g., text vs integer)
- Missing type casts (use ::type or CAST(column AS type))
- Incorrect aggregate function usage

Please ensure proper type casting and compatible comparisons.

Schema for reference:
{schema}`,

	Permission: `The query requires elevated permissions.

Error: {error}

The query is attempting an operation that requires DBA privileges.
If in read-only mode, revise the query to use only SELECT operations.

Schema for reference:
{schema}`,

	Timeout: `The query exceeded the timeout limit.

Error: {error}

The query is taking too long to execute. Consider:
- Adding WHERE clause to limit rows
- Simplifying complex joins or subqueries
- Using indexes effectively

Schema for reference:
{schema}`,

	Other: `An error occurred while executing the query.

Error: {error}

Please review the error message and schema to correct the query.

Schema for reference:
{schema}`,
}

// BuildCorrectionContext expands the guidance paragraph for kind with the
// original message and the schema. Unknown kinds use the Other template.
func BuildCorrectionContext(kind Kind, msg, schema string) string {
	tmpl, ok := guidance[kind]
	if !ok {
		tmpl = guidance[Other]
	}
	return strings.NewReplacer("{error}", msg, "{schema}", schema).Replace(tmpl)
}

var userMessages = map[Kind]string{
	ColumnName:   "The query references a column that doesn't exist in the database. Please check the column names.",
	TableName:    "The query references a table that doesn't exist in the database. Please check the table names.",
	Syntax:       "There's a syntax error in the generated SQL query. This is usually due to incorrect SQL formatting.",
	TypeMismatch: "There's a data type mismatch in the query. The query is trying to compare incompatible data types.",
	Permission:   "This operation requires DBA privileges. Please switch to DBA mode or revise your request.",
	Timeout:      "The query took too long to execute and was cancelled. Try narrowing down your request.",
	Other:        "An error occurred while executing the query.",
}

// UserMessage is the text shown to an end user for a failure: a fixed
// sentence per kind plus a sanitized excerpt of the raw message.
func UserMessage(kind Kind, msg string) string {
	base, ok := userMessages[kind]
	if !ok {
		base = userMessages[Other]
	}
	return base + "\n\nTechnical details: " + Excerpt(msg)
}

// MaxExcerpt bounds the length of raw error text shown to users.
const MaxExcerpt = 200

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s:/@]+:[^\s@]+@[^\s]+`),
	regexp.MustCompile(`(?i)\b(password|passwd|pwd|token|api[_-]?key|secret)\s*[=:]\s*\S+`),
	regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._~+/-]+=*`),
}

// Excerpt redacts connection strings and credentials from msg and truncates
// it to MaxExcerpt runes.
func Excerpt(msg string) string {
	out := strings.TrimSpace(msg)
	for _, p := range secretPatterns {
		out = p.ReplaceAllString(out, "[REDACTED]")
	}
	if utf8.RuneCountInString(out) <= MaxExcerpt {
		return out
	}
	runes := []rune(out)
	return string(runes[:MaxExcerpt])
}
