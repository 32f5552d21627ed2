package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var regionRows = []map[string]any{
	{"region": "east", "total": 120.5},
	{"region": "west", "total": 79.5},
}

func TestExplainerUsesModel(t *testing.T) {
	chat := &scriptedChat{replies: []string{"East leads with **120.5**."}}
	e := NewExplainer(chat, "", nil, WithExplainerRetry(fastRetry))

	rows := make([]map[string]any, 25)
	for i := range rows {
		rows[i] = map[string]any{"n": i}
	}
	got := e.Explain(context.Background(), "count things", "SELECT n FROM t", []string{"n"}, rows)
	assert.Equal(t, "East leads with **120.5**.", got)

	require.Len(t, chat.requests, 1)
	req := chat.requests[0]
	assert.InDelta(t, 0.5, req.Temperature, 1e-6)
	assert.Equal(t, 800, req.MaxTokens)
	prompt := req.Messages[1].Content
	assert.Contains(t, prompt, "Results (25 rows total, showing sample):")
	assert.Contains(t, prompt, `"n": 9`)
	assert.NotContains(t, prompt, `"n": 10`)
}

func TestExplainerFallsBackOnError(t *testing.T) {
	chat := &scriptedChat{errs: []error{errors.New("x"), errors.New("x"), errors.New("x")}}
	e := NewExplainer(chat, "", nil, WithExplainerRetry(fastRetry))
	got := e.Explain(context.Background(), "sales by region", "SELECT ...", []string{"region", "total"}, regionRows)
	assert.Equal(t, FallbackExplanation("sales by region", []string{"region", "total"}, regionRows), got)
	assert.Len(t, chat.requests, 3)
}

func TestFallbackExplanation(t *testing.T) {
	got := FallbackExplanation("sales by region", []string{"region", "total"}, regionRows)
	want := "### Query Results\n\n" +
		"Found **2** results for your question: \"sales by region\"\n\n" +
		"**Columns:** region, total\n\n" +
		"**Key Insights:**\n" +
		"- Total records returned: 2\n" +
		"- Total total: 200.00\n" +
		"- Average total: 100.00\n"
	assert.Equal(t, want, got)

	empty := FallbackExplanation("nothing", nil, nil)
	assert.Contains(t, empty, "Found **0** results")
	assert.Contains(t, empty, "No results found matching your criteria.")
}

func TestInsights(t *testing.T) {
	rows := []map[string]any{
		{"name": "a", "qty": int64(3), "price": 2.5},
		{"name": "b", "qty": int64(7), "price": nil},
	}
	got := Insights([]string{"name", "qty", "price"}, rows)
	assert.Equal(t, []string{
		"Total records: 2",
		"qty: min=3, max=7, avg=5.00",
		"price: min=2.5, max=2.5, avg=2.50",
	}, got)

	assert.Equal(t, []string{"No data available for analysis"}, Insights(nil, nil))

	formatted := FormatExplanation("Summary.", got[:1])
	assert.Equal(t, "Summary.\n\n### Key Insights\n\n- Total records: 2", formatted)
	assert.Equal(t, "Summary.", FormatExplanation("Summary.", nil))
	assert.Equal(t, "### Key Insights\n\n- a\n- b", FormatExplanation("", []string{"a", "b"}))
}
