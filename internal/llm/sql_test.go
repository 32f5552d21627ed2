package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"nl2sql/internal/classify"
	"nl2sql/internal/resolve"
)

func TestSQLAgentGenerate(t *testing.T) {
	model := &scriptedModel{replies: []string{"```sql\nSELECT region, SUM(amount) AS total FROM sales GROUP BY region;\n```\n\nThis query sums sales."}}
	agent := NewSQLAgent(model, WithRetryPolicy(fastRetry))

	sql, err := agent.Generate(context.Background(), resolve.GenerationRequest{
		Question:        "show total sales by region",
		SchemaContext:   "CREATE TABLE sales (region text, amount numeric);",
		ExamplesContext: ExampleQueries,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT region, SUM(amount) AS total FROM sales GROUP BY region", sql)

	require.Len(t, model.calls, 1)
	call := model.calls[0]
	assert.InDelta(t, 0.2, call.options.Temperature, 1e-9)
	assert.Equal(t, 500, call.options.MaxTokens)
	require.Len(t, call.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, call.messages[0].Role)
	assert.Equal(t, string(SQLGenerationInstruction), textOf(call.messages[0]))
	prompt := textOf(call.messages[1])
	assert.Contains(t, prompt, "Database Schema:\nCREATE TABLE sales")
	assert.Contains(t, prompt, "User Question: show total sales by region")
	assert.Contains(t, prompt, "Example 1:")
}

func TestSQLAgentCorrect(t *testing.T) {
	model := &scriptedModel{replies: []string{"SQL: SELECT region FROM sales"}}
	agent := NewSQLAgent(model, WithRetryPolicy(fastRetry))

	ctxText := classify.BuildCorrectionContext(classify.ColumnName, `column "regoin" does not exist`, "CREATE TABLE sales (region text);")
	sql, err := agent.Correct(context.Background(), resolve.CorrectionRequest{
		Question:          "list regions",
		FailedSQL:         "SELECT regoin FROM sales",
		ErrorMessage:      `column "regoin" does not exist`,
		ErrorKind:         classify.ColumnName,
		CorrectionContext: ctxText,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT region FROM sales", sql)

	call := model.calls[0]
	assert.InDelta(t, 0.1, call.options.Temperature, 1e-9)
	assert.Equal(t, string(ErrorCorrectionInstruction), textOf(call.messages[0]))
	prompt := textOf(call.messages[1])
	assert.Contains(t, prompt, "Error Type: column_name")
	assert.Contains(t, prompt, "Failed SQL Query:\nSELECT regoin FROM sales")
	assert.Contains(t, prompt, "Available Schema:\nCREATE TABLE sales (region text);")
}

func TestSQLAgentRetriesTransportErrors(t *testing.T) {
	model := &scriptedModel{
		errs:    []error{errors.New("502 bad gateway"), nil},
		replies: []string{"", "SELECT 1"},
	}
	agent := NewSQLAgent(model, WithRetryPolicy(fastRetry))

	sql, err := agent.Generate(context.Background(), resolve.GenerationRequest{Question: "one"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", sql)
	assert.Len(t, model.calls, 2)
}

func TestSQLAgentGivesUpAfterMaxTries(t *testing.T) {
	model := &scriptedModel{replies: []string{"", "   ", "```sql\n```"}}
	agent := NewSQLAgent(model, WithRetryPolicy(fastRetry))

	_, err := agent.Generate(context.Background(), resolve.GenerationRequest{Question: "anything"})
	require.Error(t, err)
	assert.Len(t, model.calls, 3)
}

func TestSQLAgentSurfacesDeadline(t *testing.T) {
	model := &scriptedModel{errs: []error{errors.New("dial tcp: i/o timeout")}}
	agent := NewSQLAgent(model, WithRetryPolicy(RetryPolicy{MaxTries: 3, InitialInterval: time.Second, MaxInterval: time.Second}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := agent.Generate(ctx, resolve.GenerationRequest{Question: "slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, model.calls, 1)
}
