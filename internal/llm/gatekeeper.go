package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	DefaultGatekeeperModel = "llama-3.1-8b-instant"
	greetingResponse       = "Hello! I'm your SQL assistant. I can help you query your database using natural language. What would you like to know about your data?"
)

// Gatekeeper classifies user intent before any SQL work happens.
type Gatekeeper struct {
	client ChatCompleter
	model  string
	policy RetryPolicy
	logger *zap.Logger
	now    func() time.Time
}

type GatekeeperOption func(*Gatekeeper)

func WithGatekeeperClock(now func() time.Time) GatekeeperOption {
	return func(g *Gatekeeper) { g.now = now }
}

func WithGatekeeperRetry(p RetryPolicy) GatekeeperOption {
	return func(g *Gatekeeper) { g.policy = p }
}

// NewGatekeeper returns a Gatekeeper. A nil client uses the rule-based
// classifier only.
func NewGatekeeper(client ChatCompleter, model string, logger *zap.Logger, opts ...GatekeeperOption) *Gatekeeper {
	if model == "" {
		model = DefaultGatekeeperModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gatekeeper{client: client, model: model, policy: DefaultRetryPolicy(), logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Classify never fails: API errors and malformed replies fall back to
// FallbackClassification.
func (g *Gatekeeper) Classify(ctx context.Context, message string) Classification {
	if g.client == nil {
		return FallbackClassification(message)
	}
	ctx, span := tracer.Start(ctx, "llm.classify_intent")
	defer span.End()

	content, err := retry(ctx, g.policy, g.logger, "classify intent", func() (string, error) {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: g.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: string(GatekeeperInstruction)},
				{Role: openai.ChatMessageRoleUser, Content: message},
			},
			Temperature:    0.3,
			MaxTokens:      500,
			ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		})
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", errEmptyResponse
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		g.logger.Error("intent classification call failed", zap.Error(err))
		span.RecordError(err)
		return FallbackClassification(message)
	}

	var c Classification
	if err := json.Unmarshal([]byte(content), &c); err != nil || !c.Intent.Valid() {
		g.logger.Error("failed to parse intent classification", zap.Error(err), zap.String("intent", string(c.Intent)))
		return FallbackClassification(message)
	}
	span.SetAttributes(attribute.String("intent", string(c.Intent)))
	g.logger.Info("intent classified",
		zap.String("intent", string(c.Intent)),
		zap.Float64("confidence", c.Confidence))
	return c
}

var (
	wordPattern    = regexp.MustCompile(`[a-z0-9']+`)
	greetingWords  = []string{"hello", "hi", "hey"}
	greetingPhrase = []string{"good morning", "good afternoon", "good evening"}
	dataKeywords   = []string{"show", "get", "find", "list", "count", "total", "sum", "average",
		"select", "query", "data", "table", "records", "customers", "orders", "sales", "revenue", "users"}
)

// FallbackClassification is the rule-based classifier used without a model.
// Keywords match whole words so that "this" is not read as "hi".
func FallbackClassification(message string) Classification {
	lower := strings.ToLower(strings.TrimSpace(message))
	words := map[string]bool{}
	for _, w := range wordPattern.FindAllString(lower, -1) {
		words[w] = true
	}

	greeting := false
	for _, w := range greetingWords {
		greeting = greeting || words[w]
	}
	for _, p := range greetingPhrase {
		greeting = greeting || strings.Contains(lower, p)
	}
	if greeting {
		return Classification{Intent: IntentGreeting, Confidence: 0.8, Response: greetingResponse}
	}

	for _, kw := range dataKeywords {
		if !words[kw] {
			continue
		}
		if len(strings.Fields(message)) < 4 {
			return Classification{
				Intent:             IntentVague,
				Confidence:         0.7,
				NeedsClarification: true,
				Response:           "Could you be more specific? Please provide more details about what data you're looking for.",
			}
		}
		return Classification{Intent: IntentDataQuery, Confidence: 0.7, Response: "I'll help you with that query."}
	}

	return Classification{
		Intent:     IntentOffTopic,
		Confidence: 0.6,
		Response:   "I can only help with database queries. Please ask a question about your data.",
	}
}

var dataIndicators = []string{"show", "get", "find", "list", "count", "how many", "what",
	"which", "total", "sum", "average", "display"}

// ValidateQuestion reports whether q is specific enough for generation and,
// if not, what to ask the user.
func ValidateQuestion(q string) (bool, string) {
	q = strings.TrimSpace(q)
	if len(q) < 10 {
		return false, "Your question seems too short. Could you provide more details?"
	}
	lower := strings.ToLower(q)
	for _, g := range greetingWords {
		if lower == g {
			return false, "Please ask a specific question about your data."
		}
	}
	for _, ind := range dataIndicators {
		if strings.Contains(lower, ind) {
			return true, ""
		}
	}
	return false, "Please rephrase your question to be more specific. For example: 'Show me total sales by region' or 'How many active customers do we have?'"
}

var abbreviations = []struct {
	pattern *regexp.Regexp
	full    string
}{
	{regexp.MustCompile(`(?i)\bqty\b`), "quantity"},
	{regexp.MustCompile(`(?i)\bamt\b`), "amount"},
	{regexp.MustCompile(`(?i)\btot\b`), "total"},
	{regexp.MustCompile(`(?i)\bavg\b`), "average"},
	{regexp.MustCompile(`(?i)\bpct\b`), "percent"},
}

// Preprocess trims q, expands common abbreviations and pins relative dates
// to the gatekeeper's clock.
func (g *Gatekeeper) Preprocess(q string) string {
	return Preprocess(q, g.now())
}

func Preprocess(q string, now time.Time) string {
	q = strings.TrimSpace(q)
	for _, a := range abbreviations {
		q = a.pattern.ReplaceAllString(q, a.full)
	}
	return resolveTimeReferences(q, now)
}

func resolveTimeReferences(q string, now time.Time) string {
	const day = "2006-01-02"
	replacements := []struct{ ref, value string }{
		{"today", now.Format(day)},
		{"yesterday", now.AddDate(0, 0, -1).Format(day)},
		{"last week", fmt.Sprintf("between '%s' and '%s'", now.AddDate(0, 0, -7).Format(day), now.Format(day))},
		{"last month", "in " + now.AddDate(0, 0, -30).Format("2006-01")},
		{"this month", "in " + now.Format("2006-01")},
		{"this year", "in " + now.Format("2006")},
	}
	for _, r := range replacements {
		pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(r.ref))
		q = pattern.ReplaceAllLiteralString(q, r.value)
	}
	return q
}
