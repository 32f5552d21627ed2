package llm

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"nl2sql/internal/resolve"
	"nl2sql/internal/sqlguard"
)

const (
	generationTemperature = 0.2
	correctionTemperature = 0.1
	sqlMaxTokens          = 500
)

var errNoSQL = errors.New("model response contained no SQL")

// SQLAgent generates and repairs SQL through a langchaingo model. It
// satisfies resolve.Generator and resolve.Corrector.
type SQLAgent struct {
	model  llms.Model
	policy RetryPolicy
	logger *zap.Logger
}

var (
	_ resolve.Generator = (*SQLAgent)(nil)
	_ resolve.Corrector = (*SQLAgent)(nil)
)

type SQLAgentOption func(*SQLAgent)

func WithRetryPolicy(p RetryPolicy) SQLAgentOption {
	return func(a *SQLAgent) { a.policy = p }
}

func WithLogger(l *zap.Logger) SQLAgentOption {
	return func(a *SQLAgent) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewSQLAgent(model llms.Model, opts ...SQLAgentOption) *SQLAgent {
	a := &SQLAgent{model: model, policy: DefaultRetryPolicy(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *SQLAgent) Generate(ctx context.Context, req resolve.GenerationRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.generate_sql")
	defer span.End()

	sql, err := a.complete(ctx, "generate sql", SQLGenerationInstruction, sqlGenerationPrompt(req), generationTemperature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return "", err
	}
	span.SetAttributes(attribute.Int("sql.length", len(sql)))
	a.logger.Info("generated sql", zap.String("sql", truncateString(sql, 100)))
	return sql, nil
}

func (a *SQLAgent) Correct(ctx context.Context, req resolve.CorrectionRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.correct_sql")
	defer span.End()
	span.SetAttributes(attribute.String("error.kind", req.ErrorKind.String()))

	sql, err := a.complete(ctx, "correct sql", ErrorCorrectionInstruction, errorCorrectionPrompt(req), correctionTemperature)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "correction failed")
		return "", err
	}
	a.logger.Info("corrected sql",
		zap.Stringer("kind", req.ErrorKind),
		zap.String("sql", truncateString(sql, 100)))
	return sql, nil
}

func (a *SQLAgent) complete(ctx context.Context, name string, system Instruction, prompt string, temperature float64) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, string(system)),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	return retry(ctx, a.policy, a.logger, name, func() (string, error) {
		resp, err := a.model.GenerateContent(ctx, messages,
			llms.WithTemperature(temperature),
			llms.WithMaxTokens(sqlMaxTokens))
		if err != nil {
			return "", err
		}
		text, err := firstChoice(resp)
		if err != nil {
			return "", err
		}
		sql := sqlguard.ExtractSQL(text)
		if sql == "" {
			return "", errNoSQL
		}
		return sql, nil
	})
}
