package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nl2sql/internal/audit"
	"nl2sql/internal/pipeline"
)

func TestAnswerMarkdown(t *testing.T) {
	md := answerMarkdown(pipeline.Answer{
		Status:        pipeline.StatusAnswered,
		SQL:           "SELECT region, SUM(amount) AS total FROM sales GROUP BY region",
		Attempts:      2,
		Columns:       []string{"region", "total"},
		Rows:          []map[string]any{{"region": "EU", "total": 120.5}, {"region": "US", "total": 98.0}},
		RowCount:      2,
		ExecutionTime: 450 * time.Millisecond,
		Explanation:   "EU leads with 120.5.",
	})

	assert.True(t, strings.HasPrefix(md, "```sql\nSELECT region"))
	assert.Contains(t, md, "2 rows in 450 ms after 2 attempts")
	assert.Contains(t, md, "| region | total |")
	assert.Contains(t, md, "| EU | 120.5 |")
	assert.True(t, strings.HasSuffix(md, "EU leads with 120.5."))
}

func TestAnswerMarkdownInsights(t *testing.T) {
	md := answerMarkdown(pipeline.Answer{
		Status:      pipeline.StatusAnswered,
		SQL:         "SELECT COUNT(*) FROM orders",
		Columns:     []string{"count"},
		Rows:        []map[string]any{{"count": int64(12)}},
		RowCount:    1,
		Explanation: "There are 12 orders.",
		Insights:    []string{"Total records: 1", "count: min=12, max=12, avg=12.00"},
	})
	assert.True(t, strings.HasSuffix(md, "There are 12 orders.\n\n### Key Insights\n\n- Total records: 1\n- count: min=12, max=12, avg=12.00"))
}

func TestAnswerMarkdownFailure(t *testing.T) {
	md := answerMarkdown(pipeline.Answer{
		Status:  pipeline.StatusFailed,
		Message: "The query took too long to execute and was cancelled.",
		SQL:     "SELECT * FROM events",
	})
	assert.Equal(t, "The query took too long to execute and was cancelled.\n\n```sql\nSELECT * FROM events\n```", md)

	md = answerMarkdown(pipeline.Answer{Status: pipeline.StatusGreeting, Message: "Hello!"})
	assert.Equal(t, "Hello!", md)
}

func TestPrintMarkdownWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printMarkdown(&buf, "**bold**", false))
	assert.Equal(t, "**bold**\n", buf.String())
}

func TestWriteTrail(t *testing.T) {
	ok, failed := true, false
	rows := int64(3)
	ts := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	entries := []audit.Entry{
		{ID: "a", Kind: audit.KindQuery, Timestamp: ts, SQL: "SELECT 1", Success: &ok, RowsReturned: &rows},
		{ID: "b", Kind: audit.KindQuery, Timestamp: ts, SQL: "SELECT nope", Success: &failed},
		{ID: "dba_c", Kind: audit.KindDBAAction, Timestamp: ts, SQL: "DELETE FROM t WHERE id = 1", Action: audit.ActionProposed},
		{ID: "d", Kind: audit.KindQuery, Timestamp: ts, SQL: "SELECT 2"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeTrail(&buf, entries))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5)
	assert.Regexp(t, `^ID\s+TIME\s+TYPE\s+STATUS\s+ROWS\s+SQL$`, lines[0])
	assert.Regexp(t, `^a\s+2024-05-01 10:30:00\s+QUERY\s+ok\s+3\s+SELECT 1$`, lines[1])
	assert.Regexp(t, `\sfailed\s+-\s`, lines[2])
	assert.Regexp(t, `\sPROPOSED\s`, lines[3])
	assert.Regexp(t, `\spending\s`, lines[4])
}

func TestValidateCommand(t *testing.T) {
	var out bytes.Buffer
	validateCmd.SetOut(&out)
	t.Cleanup(func() { validateCmd.SetOut(nil) })

	require.NoError(t, validateCmd.RunE(validateCmd, []string{"SELECT id FROM orders"}))
	assert.Contains(t, out.String(), "type: SELECT")
	assert.Contains(t, out.String(), "tables: orders")
	assert.Contains(t, out.String(), "OK")

	out.Reset()
	err := validateCmd.RunE(validateCmd, []string{"DROP TABLE orders"})
	require.Error(t, err)
	assert.Contains(t, out.String(), "Destructive operation detected: DROP")
}
