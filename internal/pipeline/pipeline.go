// Package pipeline answers a natural-language question end to end: intent
// gate, retrieval, SQL resolution, guarded execution, audit and explanation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"nl2sql/internal/audit"
	"nl2sql/internal/classify"
	"nl2sql/internal/executor"
	"nl2sql/internal/llm"
	"nl2sql/internal/metrics"
	"nl2sql/internal/resolve"
	"nl2sql/internal/retrieval"
	"nl2sql/internal/sqlguard"
)

var tracer = otel.Tracer("nl2sql/pipeline")

var ErrEmptyQuestion = errors.New("question is empty")

const (
	defaultGreeting = "Hello! I can help you explore your data. Ask me a question about your database."
	offTopicMessage = "I can only help with data queries. Please ask a question about your database."
)

type Gatekeeper interface {
	Classify(ctx context.Context, message string) llm.Classification
	Preprocess(q string) string
}

type Retriever interface {
	Retrieve(ctx context.Context, question string) (retrieval.Context, error)
	StoreSuccessfulQuery(ctx context.Context, question, sql string, elapsed time.Duration, rows int64)
}

type Resolver interface {
	Resolve(ctx context.Context, req resolve.GenerationRequest, maxAttempts int) resolve.Result
}

type Executor interface {
	ExecuteReadOnly(ctx context.Context, sql string) executor.Result
}

type Explainer interface {
	Explain(ctx context.Context, question, sql string, columns []string, rows []map[string]any) string
}

// Deps are the collaborators of a Service. Audit may be nil.
type Deps struct {
	Gatekeeper  Gatekeeper
	Retriever   Retriever
	Resolver    Resolver
	Executor    Executor
	Explainer   Explainer
	Audit       *audit.Logger
	Classifier  *classify.Classifier
	MaxAttempts int
	Logger      *zap.Logger
}

type Service struct {
	Deps
	now func() time.Time
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Audit == nil {
		d.Audit = audit.New(nil, d.Logger)
	}
	if d.Classifier == nil {
		d.Classifier = classify.Default()
	}
	return &Service{Deps: d, now: time.Now}
}

// Status says how far a question got.
type Status string

const (
	StatusAnswered      Status = "answered"
	StatusGreeting      Status = "greeting"
	StatusClarification Status = "clarification"
	StatusOffTopic      Status = "off_topic"
	StatusFailed        Status = "failed"
)

type Answer struct {
	SessionID     string           `json:"session_id"`
	Question      string           `json:"question"`
	Processed     string           `json:"processed_question,omitempty"`
	Intent        llm.Intent       `json:"intent"`
	Status        Status           `json:"status"`
	Message       string           `json:"message,omitempty"`
	SQL           string           `json:"sql,omitempty"`
	Attempts      int              `json:"attempts"`
	Resolution    *resolve.Result  `json:"resolution,omitempty"`
	Columns       []string         `json:"columns,omitempty"`
	Rows          []map[string]any `json:"rows,omitempty"`
	RowCount      int64            `json:"row_count"`
	Truncated     bool             `json:"truncated"`
	Explanation   string           `json:"explanation,omitempty"`
	Insights      []string         `json:"insights,omitempty"`
	ExecutionTime time.Duration    `json:"execution_time"`
	AuditID       string           `json:"audit_id,omitempty"`
}

// Ask runs the whole pipeline for one question. Failures along the way are
// reported in the Answer; an error means the question could not be handled
// at all.
func (s *Service) Ask(ctx context.Context, session, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}
	if session == "" {
		session = audit.NewSessionID(s.now())
	}
	ctx, span := tracer.Start(ctx, "pipeline.ask")
	defer span.End()

	ans := Answer{SessionID: session, Question: question}

	intent := s.Gatekeeper.Classify(ctx, question)
	ans.Intent = intent.Intent
	metrics.ObserveIntent(string(intent.Intent))
	span.SetAttributes(attribute.String("intent", string(intent.Intent)))

	switch {
	case intent.Intent == llm.IntentGreeting:
		ans.Status = StatusGreeting
		ans.Message = intent.Response
		if ans.Message == "" {
			ans.Message = defaultGreeting
		}
		return ans, nil
	case intent.NeedsClarification:
		ans.Status = StatusClarification
		ans.Message = intent.Response
		return ans, nil
	case intent.Intent != llm.IntentDataQuery:
		ans.Status = StatusOffTopic
		ans.Message = offTopicMessage
		return ans, nil
	}

	if ok, msg := llm.ValidateQuestion(question); !ok {
		ans.Status = StatusClarification
		ans.Message = msg
		return ans, nil
	}

	ans.Processed = s.Gatekeeper.Preprocess(question)
	rc, err := s.Retriever.Retrieve(ctx, ans.Processed)
	if err != nil {
		return ans, fmt.Errorf("failed to retrieve context: %w", err)
	}

	res := s.Resolver.Resolve(ctx, rc.Request(ans.Processed), s.MaxAttempts)
	ans.Resolution = &res
	ans.Attempts = res.AttemptsMade
	if !res.Accepted() {
		return s.fail(ans, res.Failure()), nil
	}
	ans.SQL = res.SQL

	if v := sqlguard.Check(res.SQL, sqlguard.ReadOnly); !v.IsSafe {
		return s.fail(ans, "Query validation failed:\n\n- "+strings.Join(v.Issues, "\n- ")), nil
	}

	ans.AuditID = s.Audit.LogAttempt(ctx, session, ans.Processed, res.SQL, sqlguard.ReadOnly)
	out := s.Executor.ExecuteReadOnly(ctx, res.SQL)
	s.Audit.LogResult(ctx, ans.AuditID, out.Success, out.Error, out.ExecutionTime, out.RowCount)
	ans.ExecutionTime = out.ExecutionTime
	if !out.Success {
		kind := s.Classifier.Classify(out.Error)
		return s.fail(ans, classify.UserMessage(kind, out.Error)), nil
	}

	ans.Status = StatusAnswered
	ans.Columns = out.Columns
	ans.Rows = out.Rows
	ans.RowCount = out.RowCount
	ans.Truncated = out.Truncated
	if out.RowCount > 0 {
		s.Retriever.StoreSuccessfulQuery(ctx, ans.Processed, res.SQL, out.ExecutionTime, out.RowCount)
	}
	ans.Explanation = s.Explainer.Explain(ctx, ans.Processed, res.SQL, out.Columns, out.Rows)
	if out.RowCount > 0 {
		ans.Insights = llm.Insights(out.Columns, out.Rows)
	}

	s.Logger.Info("question answered",
		zap.String("session", session),
		zap.Int("attempts", ans.Attempts),
		zap.Int64("rows", ans.RowCount),
		zap.Duration("elapsed", ans.ExecutionTime))
	return ans, nil
}

func (s *Service) fail(ans Answer, msg string) Answer {
	ans.Status = StatusFailed
	ans.Message = msg
	s.Logger.Warn("question failed", zap.String("session", ans.SessionID), zap.Int("attempts", ans.Attempts))
	return ans
}

// Resolve only produces SQL for question; nothing is executed. maxAttempts
// <= 0 uses the service default.
func (s *Service) Resolve(ctx context.Context, question string, maxAttempts int) (resolve.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return resolve.Result{}, ErrEmptyQuestion
	}
	processed := s.Gatekeeper.Preprocess(question)
	rc, err := s.Retriever.Retrieve(ctx, processed)
	if err != nil {
		return resolve.Result{}, fmt.Errorf("failed to retrieve context: %w", err)
	}
	if maxAttempts <= 0 {
		maxAttempts = s.MaxAttempts
	}
	return s.Resolver.Resolve(ctx, rc.Request(processed), maxAttempts), nil
}
