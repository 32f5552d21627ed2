package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Explainer asks the engine for a plan without executing the statement.
type Explainer interface {
	Explain(ctx context.Context, sql string) ([]string, error)
}

// PlanProbe turns an Explainer into a PlanProber with a bounded wait.
type PlanProbe struct {
	explainer Explainer
	timeout   time.Duration
}

// NewPlanProbe wraps e. A zero timeout leaves the caller's deadline alone.
func NewPlanProbe(e Explainer, timeout time.Duration) *PlanProbe {
	return &PlanProbe{explainer: e, timeout: timeout}
}

// Probe never returns rows. A deadline hit while waiting is reported with a
// message that classifies as a timeout.
func (p *PlanProbe) Probe(ctx context.Context, sql string) ProbeResult {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	plan, err := p.explainer.Explain(ctx, sql)
	if err != nil {
		msg := strings.TrimSpace(err.Error())
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("timeout: plan probe exceeded %s: %s", p.timeout, msg)
		}
		return ProbeResult{ErrorMessage: msg}
	}
	return ProbeResult{Accepted: true, Detail: plan}
}
