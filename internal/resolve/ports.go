package resolve

import (
	"context"

	"nl2sql/internal/classify"
)

// GenerationRequest is the input bundle for one question. It is passed
// through the loop untouched.
type GenerationRequest struct {
	Question        string `json:"question"`
	SchemaContext   string `json:"schema_context"`
	ExamplesContext string `json:"examples_context"`
}

// CorrectionRequest carries everything a correction model needs to repair
// the previous candidate.
type CorrectionRequest struct {
	Question          string        `json:"question"`
	FailedSQL         string        `json:"failed_sql"`
	ErrorMessage      string        `json:"error_message"`
	ErrorKind         classify.Kind `json:"error_kind"`
	CorrectionContext string        `json:"correction_context"`
}

type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

type Corrector interface {
	Correct(ctx context.Context, req CorrectionRequest) (string, error)
}

// ProbeResult is the engine's verdict on a candidate. Detail holds plan lines
// when accepted; ErrorMessage holds the raw engine error otherwise.
type ProbeResult struct {
	Accepted     bool     `json:"accepted"`
	Detail       []string `json:"detail,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

type PlanProber interface {
	Probe(ctx context.Context, sql string) ProbeResult
}

type GeneratorFunc func(ctx context.Context, req GenerationRequest) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	return f(ctx, req)
}

type CorrectorFunc func(ctx context.Context, req CorrectionRequest) (string, error)

func (f CorrectorFunc) Correct(ctx context.Context, req CorrectionRequest) (string, error) {
	return f(ctx, req)
}

type ProbeFunc func(ctx context.Context, sql string) ProbeResult

func (f ProbeFunc) Probe(ctx context.Context, sql string) ProbeResult {
	return f(ctx, sql)
}
