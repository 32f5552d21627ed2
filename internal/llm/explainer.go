package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const explanationSampleRows = 10

// Explainer writes a business-friendly markdown summary of query results.
type Explainer struct {
	client ChatCompleter
	model  string
	policy RetryPolicy
	logger *zap.Logger
}

type ExplainerOption func(*Explainer)

func WithExplainerRetry(p RetryPolicy) ExplainerOption {
	return func(e *Explainer) { e.policy = p }
}

// NewExplainer returns an Explainer. A nil client always produces the
// fallback summary.
func NewExplainer(client ChatCompleter, model string, logger *zap.Logger, opts ...ExplainerOption) *Explainer {
	if model == "" {
		model = DefaultGatekeeperModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Explainer{client: client, model: model, policy: DefaultRetryPolicy(), logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Explain never fails; the fallback summary is used when the model cannot
// be reached.
func (e *Explainer) Explain(ctx context.Context, question, sql string, columns []string, rows []map[string]any) string {
	if e.client == nil {
		return FallbackExplanation(question, columns, rows)
	}
	ctx, span := tracer.Start(ctx, "llm.explain_results")
	defer span.End()

	sample := rows
	if len(sample) > explanationSampleRows {
		sample = sample[:explanationSampleRows]
	}
	resultsJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		e.logger.Error("failed to encode result sample", zap.Error(err))
		return FallbackExplanation(question, columns, rows)
	}

	prompt := resultsExplanationPrompt(question, sql, string(resultsJSON), len(rows))
	explanation, err := retry(ctx, e.policy, e.logger, "explain results", func() (string, error) {
		resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: e.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: string(ResultsExplanationInstruction)},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			Temperature: 0.5,
			MaxTokens:   800,
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return "", errEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		e.logger.Error("failed to generate explanation", zap.Error(err))
		span.RecordError(err)
		return FallbackExplanation(question, columns, rows)
	}
	e.logger.Info("generated results explanation")
	return explanation
}

// FallbackExplanation summarises rows without a model: the column list, the
// row count and the total and average of the first numeric column.
func FallbackExplanation(question string, columns []string, rows []map[string]any) string {
	var b strings.Builder
	b.WriteString("### Query Results\n\n")
	fmt.Fprintf(&b, "Found **%d** results for your question: \"%s\"\n\n", len(rows), question)

	if len(rows) == 0 {
		b.WriteString("No results found matching your criteria.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "**Columns:** %s\n\n", strings.Join(columns, ", "))
	b.WriteString("**Key Insights:**\n")
	fmt.Fprintf(&b, "- Total records returned: %d\n", len(rows))

	for _, col := range columns {
		if _, ok := toFloat(rows[0][col]); !ok {
			continue
		}
		var total float64
		for _, row := range rows {
			if v, ok := toFloat(row[col]); ok {
				total += v
			}
		}
		fmt.Fprintf(&b, "- Total %s: %.2f\n", col, total)
		fmt.Fprintf(&b, "- Average %s: %.2f\n", col, total/float64(len(rows)))
		break
	}
	return b.String()
}

// Insights lists the record count and min, max and mean of every numeric
// column, judged by the first row.
func Insights(columns []string, rows []map[string]any) []string {
	if len(rows) == 0 {
		return []string{"No data available for analysis"}
	}
	insights := []string{fmt.Sprintf("Total records: %d", len(rows))}
	for _, col := range columns {
		if _, ok := toFloat(rows[0][col]); !ok {
			continue
		}
		var values []float64
		for _, row := range rows {
			if v, ok := toFloat(row[col]); ok {
				values = append(values, v)
			}
		}
		lo, hi, sum := values[0], values[0], 0.0
		for _, v := range values {
			lo = min(lo, v)
			hi = max(hi, v)
			sum += v
		}
		insights = append(insights, fmt.Sprintf("%s: min=%s, max=%s, avg=%.2f",
			col, formatNumber(lo), formatNumber(hi), sum/float64(len(values))))
	}
	return insights
}

// FormatExplanation appends insights as a markdown list under summary.
func FormatExplanation(summary string, insights []string) string {
	if len(insights) == 0 {
		return summary
	}
	var b strings.Builder
	if summary != "" {
		b.WriteString(summary)
		b.WriteString("\n\n")
	}
	b.WriteString("### Key Insights\n")
	for _, in := range insights {
		b.WriteString("\n- " + in)
	}
	return b.String()
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
