package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nl2sql/internal/classify"
	"nl2sql/internal/sqlguard"
)

// script hands out canned candidates and probe verdicts in order and keeps
// a record of every call.
type script struct {
	mu          sync.Mutex
	generated   []string
	corrected   []string
	probes      []ProbeResult
	genErrs     []error
	corrErrs    []error
	genCalls    int
	corrCalls   int
	probed      []string
	corrections []CorrectionRequest
}

func (s *script) Generate(_ context.Context, _ GenerationRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.genCalls
	s.genCalls++
	if i < len(s.genErrs) && s.genErrs[i] != nil {
		return "", s.genErrs[i]
	}
	return s.generated[i], nil
}

func (s *script) Correct(_ context.Context, req CorrectionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.corrCalls
	s.corrCalls++
	s.corrections = append(s.corrections, req)
	if i < len(s.corrErrs) && s.corrErrs[i] != nil {
		return "", s.corrErrs[i]
	}
	return s.corrected[i], nil
}

func (s *script) Probe(_ context.Context, sql string) ProbeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.probed)
	s.probed = append(s.probed, sql)
	return s.probes[i]
}

func newLoop(s *script, opts ...Option) *Loop {
	return New(s, s, s, opts...)
}

var salesReq = GenerationRequest{
	Question:        "show total sales by region",
	SchemaContext:   "CREATE TABLE sales (region text, amount numeric);",
	ExamplesContext: "No similar examples found.",
}

func TestResolveCorrectsSyntaxErrorOnce(t *testing.T) {
	fixed := "SELECT region, SUM(amount) AS total_sales FROM sales GROUP BY region"
	s := &script{
		generated: []string{"SELECT region, SUM(amount) AS total_sales WHERE amount > 0 GROUP BY region"},
		corrected: []string{fixed},
		probes: []ProbeResult{
			{ErrorMessage: `ERROR: syntax error at or near "WHERE" (SQLSTATE 42601)`},
			{Accepted: true, Detail: []string{"HashAggregate"}},
		},
	}

	res := newLoop(s).Resolve(context.Background(), salesReq, 3)

	require.True(t, res.Accepted())
	assert.Equal(t, fixed, res.SQL)
	assert.Equal(t, 2, res.AttemptsMade)
	assert.Nil(t, res.LastError)
	assert.Equal(t, StateAccepted, res.State)
	assert.Empty(t, res.Failure())

	require.Len(t, res.Attempts, 2)
	assert.Equal(t, RejectedPlan, res.Attempts[0].Outcome)
	assert.Equal(t, classify.Syntax, res.Attempts[0].Err.Kind)
	assert.Equal(t, Accepted, res.Attempts[1].Outcome)
	assert.Equal(t, []string{"HashAggregate"}, res.Attempts[1].Plan)

	require.Len(t, s.corrections, 1)
	corr := s.corrections[0]
	assert.Equal(t, classify.Syntax, corr.ErrorKind)
	assert.Contains(t, corr.ErrorMessage, `syntax error at or near "WHERE"`)
	assert.Contains(t, corr.CorrectionContext, "Error: ERROR: syntax error")
	assert.Contains(t, corr.CorrectionContext, salesReq.SchemaContext)
	assert.Equal(t, s.generated[0], corr.FailedSQL)
	assert.Equal(t, 1, s.genCalls)
}

func TestResolveExhaustsOnRepeatedSyntaxErrors(t *testing.T) {
	bad := ProbeResult{ErrorMessage: `syntax error at or near "FROM"`}
	s := &script{
		generated: []string{"SELECT a FROM FROM t"},
		corrected: []string{"SELECT b FROM FROM t", "SELECT c FROM FROM t"},
		probes:    []ProbeResult{bad, bad, bad},
	}

	res := newLoop(s).Resolve(context.Background(), salesReq, 3)

	assert.False(t, res.Accepted())
	assert.Empty(t, res.SQL)
	assert.Equal(t, StateExhausted, res.State)
	assert.Equal(t, 3, res.AttemptsMade)
	assert.Equal(t, 1, s.genCalls)
	assert.Equal(t, 2, s.corrCalls)
	require.NotNil(t, res.LastError)
	assert.Equal(t, classify.Syntax, res.LastError.Kind)
	for i, a := range res.Attempts {
		assert.Equal(t, i+1, a.Number)
	}
	failure := res.Failure()
	assert.Contains(t, failure, "3 attempts")
	assert.Contains(t, failure, "syntax")
	assert.Contains(t, failure, `syntax error at or near "FROM"`)
}

func TestResolveStopsOnNonRetryableKinds(t *testing.T) {
	for _, msg := range []string{"permission denied for table payroll", "canceling statement due to statement timeout"} {
		s := &script{
			generated: []string{"SELECT * FROM payroll"},
			probes:    []ProbeResult{{ErrorMessage: msg}},
		}
		res := newLoop(s).Resolve(context.Background(), salesReq, 3)
		assert.Equal(t, 1, res.AttemptsMade, msg)
		assert.Equal(t, 0, s.corrCalls, msg)
		assert.Equal(t, StateExhausted, res.State, msg)
	}
}

func TestResolveOtherKindGetsOneRetry(t *testing.T) {
	odd := ProbeResult{ErrorMessage: "server closed the connection unexpectedly"}
	s := &script{
		generated: []string{"SELECT 1"},
		corrected: []string{"SELECT 2", "SELECT 3"},
		probes:    []ProbeResult{odd, odd, odd},
	}
	res := newLoop(s).Resolve(context.Background(), salesReq, 3)
	assert.Equal(t, 2, res.AttemptsMade)
	assert.Equal(t, classify.Other, res.LastError.Kind)
}

func TestResolveNeverProbesRejectedSyntax(t *testing.T) {
	s := &script{
		generated: []string{"DROP TABLE sales"},
		corrected: []string{"SELECT COUNT(* FROM sales", "SELECT COUNT(*) FROM sales"},
		probes:    []ProbeResult{{Accepted: true}},
	}

	res := newLoop(s).Resolve(context.Background(), salesReq, 3)

	require.True(t, res.Accepted())
	assert.Equal(t, 3, res.AttemptsMade)
	assert.Equal(t, []string{"SELECT COUNT(*) FROM sales"}, s.probed)
	assert.Equal(t, RejectedSyntax, res.Attempts[0].Outcome)
	assert.Equal(t, RejectedSyntax, res.Attempts[1].Outcome)
	assert.Equal(t, classify.Syntax, res.Attempts[0].Err.Kind)
	assert.Contains(t, res.Attempts[0].Err.Message, "Destructive operation detected: DROP")
	assert.Contains(t, s.corrections[1].ErrorMessage, "Unbalanced parentheses")
}

func TestResolvePrivilegedModeAllowsGuardedUpdate(t *testing.T) {
	s := &script{
		generated: []string{"UPDATE accounts SET active = false WHERE last_login < now() - interval '1 year'"},
		probes:    []ProbeResult{{Accepted: true}},
	}
	res := newLoop(s, WithMode(sqlguard.Privileged)).Resolve(context.Background(), salesReq, 0)
	assert.True(t, res.Accepted())

	s = &script{
		generated: []string{"UPDATE accounts SET active = false WHERE id = 1"},
		corrected: []string{"SELECT 1", "SELECT 1"},
		probes:    []ProbeResult{{Accepted: true}},
	}
	res = newLoop(s).Resolve(context.Background(), salesReq, 0)
	assert.Equal(t, RejectedSyntax, res.Attempts[0].Outcome)
	assert.True(t, res.Accepted())
}

func TestResolveRegeneratesAfterGenerationFailure(t *testing.T) {
	s := &script{
		generated: []string{"", "SELECT 1"},
		genErrs:   []error{errors.New("upstream returned malformed output")},
		probes:    []ProbeResult{{Accepted: true}},
	}
	res := newLoop(s).Resolve(context.Background(), salesReq, 3)
	require.True(t, res.Accepted())
	assert.Equal(t, 2, res.AttemptsMade)
	assert.Equal(t, 2, s.genCalls)
	assert.Equal(t, 0, s.corrCalls)
	assert.Equal(t, GenerationFailed, res.Attempts[0].Outcome)
}

func TestResolveRegeneratesAfterFailedCorrection(t *testing.T) {
	s := &script{
		generated: []string{"SELECT nme FROM customers", "SELECT name FROM customers"},
		corrected: []string{""},
		corrErrs:  []error{errors.New("decode model response: invalid syntax in JSON body")},
		probes: []ProbeResult{
			{ErrorMessage: `column "nme" does not exist`},
			{Accepted: true},
		},
	}
	res := newLoop(s).Resolve(context.Background(), salesReq, 3)

	require.True(t, res.Accepted())
	assert.Equal(t, "SELECT name FROM customers", res.SQL)
	assert.Equal(t, 3, res.AttemptsMade)
	assert.Equal(t, GenerationFailed, res.Attempts[1].Outcome)
	assert.Equal(t, 2, s.genCalls)
	assert.Equal(t, 1, s.corrCalls)
	assert.Equal(t, []string{"SELECT nme FROM customers", "SELECT name FROM customers"}, s.probed)
}

func TestResolveGenerationTimeoutIsTerminal(t *testing.T) {
	s := &script{
		generated: []string{""},
		genErrs:   []error{fmt.Errorf("calling model: %w", context.DeadlineExceeded)},
	}
	res := newLoop(s).Resolve(context.Background(), salesReq, 3)
	assert.Equal(t, 1, res.AttemptsMade)
	assert.Equal(t, classify.Timeout, res.LastError.Kind)
}

func TestResolveBudgetDefaultsAndClamps(t *testing.T) {
	bad := ProbeResult{ErrorMessage: `column "x" does not exist`}
	probes := make([]ProbeResult, 20)
	corrected := make([]string, 20)
	for i := range probes {
		probes[i] = bad
		corrected[i] = "SELECT x FROM t"
	}

	s := &script{generated: []string{"SELECT x FROM t"}, corrected: corrected, probes: probes}
	res := newLoop(s).Resolve(context.Background(), salesReq, 0)
	assert.Equal(t, DefaultMaxAttempts, res.AttemptsMade)

	s = &script{generated: []string{"SELECT x FROM t"}, corrected: corrected, probes: probes}
	res = newLoop(s, WithMaxAttempts(5)).Resolve(context.Background(), salesReq, 0)
	assert.Equal(t, 5, res.AttemptsMade)

	s = &script{generated: []string{"SELECT x FROM t"}, corrected: corrected, probes: probes}
	res = newLoop(s).Resolve(context.Background(), salesReq, 12)
	assert.Equal(t, 12, res.AttemptsMade)

	s = &script{generated: []string{"SELECT x FROM t"}, corrected: corrected, probes: probes}
	res = newLoop(s).Resolve(context.Background(), salesReq, 1)
	assert.Equal(t, 1, res.AttemptsMade)
	assert.Equal(t, classify.ColumnName, res.LastError.Kind)
}

func TestResolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &script{}
	res := newLoop(s).Resolve(ctx, salesReq, 3)
	assert.Equal(t, 0, res.AttemptsMade)
	assert.Equal(t, 0, s.genCalls)
	assert.Equal(t, StateExhausted, res.State)
	require.NotNil(t, res.LastError)
}

type recordingObserver struct {
	BaseObserver
	mu       sync.Mutex
	started  int
	attempts []Attempt
	accepted []Result
	failed   []Result
}

func (o *recordingObserver) OnStart(context.Context, GenerationRequest, Budget) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) OnAttempt(_ context.Context, a Attempt) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, a)
}

func (o *recordingObserver) OnAccepted(_ context.Context, r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepted = append(o.accepted, r)
}

func (o *recordingObserver) OnExhausted(_ context.Context, r Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, r)
}

func TestResolveNotifiesObservers(t *testing.T) {
	first, second := &recordingObserver{}, &recordingObserver{}
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	s := &script{
		generated: []string{"SELECT * FROM salez"},
		corrected: []string{"SELECT * FROM sales"},
		probes:    []ProbeResult{{ErrorMessage: `relation "salez" does not exist`}, {Accepted: true}},
	}
	loop := newLoop(s, WithObserver(MultiObserver{Observers: []Observer{first, nil, second}}), WithClock(clock))

	res := loop.Resolve(context.Background(), salesReq, 3)

	require.True(t, res.Accepted())
	assert.Positive(t, res.Duration)
	for _, o := range []*recordingObserver{first, second} {
		assert.Equal(t, 1, o.started)
		require.Len(t, o.attempts, 2)
		assert.Equal(t, classify.TableName, o.attempts[0].Err.Kind)
		assert.True(t, o.attempts[0].Finished.After(o.attempts[0].Started))
		assert.Len(t, o.accepted, 1)
		assert.Empty(t, o.failed)
	}
}

func TestResolveConcurrentQuestionsShareNoState(t *testing.T) {
	gen := GeneratorFunc(func(_ context.Context, req GenerationRequest) (string, error) {
		return "SELECT '" + req.Question + "' AS q FROM t", nil
	})
	corr := CorrectorFunc(func(_ context.Context, req CorrectionRequest) (string, error) {
		return req.FailedSQL + " LIMIT 1", nil
	})
	probe := ProbeFunc(func(_ context.Context, sql string) ProbeResult {
		if _, ok := sqlguard.LimitOf(sql); ok {
			return ProbeResult{Accepted: true}
		}
		return ProbeResult{ErrorMessage: "syntax error"}
	})
	loop := New(gen, corr, probe)

	var wg sync.WaitGroup
	results := make([]Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = loop.Resolve(context.Background(), GenerationRequest{Question: fmt.Sprintf("q%d", i)}, 3)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		require.True(t, res.Accepted(), i)
		assert.Equal(t, 2, res.AttemptsMade)
		assert.Equal(t, fmt.Sprintf("SELECT 'q%d' AS q FROM t LIMIT 1", i), res.SQL)
	}
}
