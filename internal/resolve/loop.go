// Package resolve drives the generate, check, probe and correct cycle that
// turns a question into a statement the engine accepts.
package resolve

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"nl2sql/internal/classify"
	"nl2sql/internal/sqlguard"
)

var tracer = otel.Tracer("nl2sql/resolve")

// Loop is safe for concurrent use: all per-question state lives on the stack
// of Resolve.
type Loop struct {
	gen   Generator
	corr  Corrector
	probe PlanProber
	cfg   loopConfig
}

func New(gen Generator, corr Corrector, probe PlanProber, opts ...Option) *Loop {
	cfg := loopConfig{
		budget:     Budget{MaxAttempts: DefaultMaxAttempts},
		mode:       sqlguard.ReadOnly,
		classifier: classify.Default(),
		observer:   BaseObserver{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	if cfg.observer == nil {
		cfg.observer = BaseObserver{}
	}
	cfg.budget = cfg.budget.Normalize()
	return &Loop{gen: gen, corr: corr, probe: probe, cfg: cfg}
}

// Resolve runs attempts until one is accepted or the budget is spent.
// maxAttempts <= 0 uses the loop's configured budget; a positive value is
// honoured exactly.
func (l *Loop) Resolve(ctx context.Context, req GenerationRequest, maxAttempts int) Result {
	budget := l.cfg.budget
	if maxAttempts > 0 {
		budget = Budget{MaxAttempts: maxAttempts}.Normalize()
	}

	ctx, span := tracer.Start(ctx, "resolve")
	defer span.End()
	span.SetAttributes(attribute.Int("resolve.max_attempts", budget.MaxAttempts))

	start := l.cfg.clock()
	l.cfg.observer.OnStart(ctx, req, budget)

	var (
		attempts []Attempt
		lastSQL  string
		lastErr  *AttemptError
	)

	for n := 1; n <= budget.MaxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			lastErr = &AttemptError{Kind: classify.Timeout, Message: "resolve interrupted before attempt: " + err.Error()}
			break
		}

		a := l.attempt(ctx, n, req, lastSQL, lastErr)
		attempts = append(attempts, a)
		l.cfg.observer.OnAttempt(ctx, a)

		if a.Outcome == Accepted {
			res := Result{
				SQL:          a.SQL,
				AttemptsMade: n,
				State:        StateAccepted,
				Attempts:     attempts,
				Duration:     l.cfg.clock().Sub(start),
			}
			span.SetAttributes(attribute.Int("resolve.attempts", n))
			l.cfg.logger.Info("sql accepted", zap.Int("attempts", n))
			l.cfg.observer.OnAccepted(ctx, res)
			return res
		}

		lastErr = a.Err
		switch {
		case a.Outcome == GenerationFailed:
			lastSQL = ""
		case a.SQL != "":
			lastSQL = a.SQL
		}
		l.cfg.logger.Warn("attempt failed",
			zap.Int("attempt", n),
			zap.Stringer("outcome", a.Outcome),
			zap.Stringer("kind", a.Err.Kind),
			zap.String("error", classify.Excerpt(a.Err.Message)))

		if !classify.ShouldRetry(a.Err.Kind, n, budget.MaxAttempts) {
			break
		}
	}

	res := Result{
		AttemptsMade: len(attempts),
		LastError:    lastErr,
		State:        StateExhausted,
		Attempts:     attempts,
		Duration:     l.cfg.clock().Sub(start),
	}
	span.SetAttributes(attribute.Int("resolve.attempts", res.AttemptsMade))
	span.SetStatus(codes.Error, "no acceptable sql")
	l.cfg.logger.Error("failed to produce valid sql", zap.Int("attempts", res.AttemptsMade))
	l.cfg.observer.OnExhausted(ctx, res)
	return res
}

func (l *Loop) attempt(ctx context.Context, n int, req GenerationRequest, lastSQL string, lastErr *AttemptError) Attempt {
	ctx, span := tracer.Start(ctx, "resolve.attempt")
	defer span.End()
	span.SetAttributes(attribute.Int("attempt", n))

	a := Attempt{Number: n, Started: l.cfg.clock()}
	finish := func(o Outcome, e *AttemptError) Attempt {
		a.Outcome = o
		a.Err = e
		a.Finished = l.cfg.clock()
		span.SetAttributes(attribute.String("outcome", o.String()))
		if e != nil {
			span.SetAttributes(attribute.String("error.kind", e.Kind.String()))
		}
		return a
	}

	sql, err := l.candidate(ctx, n, req, lastSQL, lastErr)
	if err != nil {
		span.RecordError(err)
		return finish(GenerationFailed, l.classifyErr(err))
	}
	a.SQL = strings.TrimSpace(sql)

	if verdict := sqlguard.Check(a.SQL, l.cfg.mode); !verdict.IsSafe {
		msg := "invalid syntax: " + strings.Join(verdict.Issues, "; ")
		return finish(RejectedSyntax, &AttemptError{Kind: l.cfg.classifier.Classify(msg), Message: msg})
	}

	probe := l.probe.Probe(ctx, a.SQL)
	if !probe.Accepted {
		msg := probe.ErrorMessage
		if msg == "" {
			msg = "plan probe rejected the statement"
		}
		return finish(RejectedPlan, &AttemptError{Kind: l.cfg.classifier.Classify(msg), Message: msg})
	}
	a.Plan = probe.Detail
	return finish(Accepted, nil)
}

// candidate generates on the first attempt and corrects afterwards. Without
// a previous candidate to repair there is nothing to correct, so the loop
// generates again.
func (l *Loop) candidate(ctx context.Context, n int, req GenerationRequest, lastSQL string, lastErr *AttemptError) (string, error) {
	if n == 1 || lastSQL == "" || lastErr == nil {
		return l.gen.Generate(ctx, req)
	}
	return l.corr.Correct(ctx, CorrectionRequest{
		Question:          req.Question,
		FailedSQL:         lastSQL,
		ErrorMessage:      lastErr.Message,
		ErrorKind:         lastErr.Kind,
		CorrectionContext: classify.BuildCorrectionContext(lastErr.Kind, lastErr.Message, req.SchemaContext),
	})
}

func (l *Loop) classifyErr(err error) *AttemptError {
	msg := strings.TrimSpace(err.Error())
	if errors.Is(err, context.DeadlineExceeded) {
		return &AttemptError{Kind: classify.Timeout, Message: "timeout: " + msg}
	}
	return &AttemptError{Kind: l.cfg.classifier.Classify(msg), Message: msg}
}
