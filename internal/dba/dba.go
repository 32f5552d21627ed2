// Package dba holds privileged statements until a human approves them.
// Proposals live in memory and expire after a fixed window.
package dba

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nl2sql/internal/audit"
	"nl2sql/internal/executor"
	"nl2sql/internal/sqlguard"
)

var (
	ErrUnknownProposal = errors.New("unknown proposal")
	ErrProposalExpired = errors.New("proposal expired")
	ErrAlreadyDecided  = errors.New("proposal already decided")
	ErrUnsafeStatement = errors.New("statement failed validation")
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"

	statusDeciding Status = "deciding"
)

type Proposal struct {
	ID            string           `json:"id"`
	Question      string           `json:"question,omitempty"`
	SQL           string           `json:"sql"`
	QueryType     string           `json:"query_type"`
	Complexity    int              `json:"complexity"`
	Plan          []string         `json:"plan,omitempty"`
	PlanError     string           `json:"plan_error,omitempty"`
	EstimatedRows int64            `json:"estimated_rows"`
	Requester     string           `json:"requester,omitempty"`
	Status        Status           `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
	ExpiresAt     time.Time        `json:"expires_at"`
	DecidedBy     string           `json:"decided_by,omitempty"`
	DecidedAt     time.Time        `json:"decided_at,omitempty"`
	Result        *executor.Result `json:"result,omitempty"`
}

// Executor is the slice of *executor.Executor the approval flow needs.
type Executor interface {
	ExplainPrivileged(ctx context.Context, sql string) ([]string, error)
	EstimateAffectedRows(ctx context.Context, sql string) int64
	ExecuteDBA(ctx context.Context, sql string, approved bool) executor.Result
}

type Service struct {
	exec   Executor
	audit  *audit.Logger
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu        sync.Mutex
	proposals map[string]*Proposal
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New builds the service. ttl <= 0 means one hour.
func New(exec Executor, auditLog *audit.Logger, ttl time.Duration, logger *zap.Logger, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = audit.New(nil, logger)
	}
	s := &Service{
		exec:      exec,
		audit:     auditLog,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger,
		proposals: map[string]*Proposal{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Propose validates sql in privileged mode, plans it and parks it for
// approval.
func (s *Service) Propose(ctx context.Context, question, sql, requester string) (Proposal, error) {
	sql = strings.TrimSpace(sqlguard.ExtractSQL(sql))
	if v := sqlguard.Check(sql, sqlguard.Privileged); !v.IsSafe {
		s.audit.LogDBAAction(ctx, audit.ActionRejected, sql, false, requester)
		return Proposal{}, fmt.Errorf("%w: %s", ErrUnsafeStatement, strings.Join(v.Issues, "; "))
	}
	if !proposable(sql) {
		s.audit.LogDBAAction(ctx, audit.ActionRejected, sql, false, requester)
		return Proposal{}, fmt.Errorf("%w: only INSERT, UPDATE or DELETE statements can be proposed", ErrUnsafeStatement)
	}

	now := s.now()
	p := &Proposal{
		ID:         uuid.NewString(),
		Question:   question,
		SQL:        sql,
		QueryType:  sqlguard.QueryType(sql).String(),
		Complexity: sqlguard.Complexity(sql),
		Requester:  requester,
		Status:     StatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.ttl),
	}
	plan, err := s.exec.ExplainPrivileged(ctx, sql)
	if err != nil {
		p.PlanError = err.Error()
		s.logger.Warn("failed to plan proposal", zap.String("proposal", p.ID), zap.Error(err))
	}
	p.Plan = plan
	p.EstimatedRows = s.exec.EstimateAffectedRows(ctx, sql)

	s.mu.Lock()
	s.expireLocked(now)
	s.proposals[p.ID] = p
	s.mu.Unlock()

	s.audit.LogDBAAction(ctx, audit.ActionProposed, sql, false, requester)
	s.logger.Info("dba proposal created",
		zap.String("proposal", p.ID),
		zap.String("query_type", p.QueryType),
		zap.Int64("estimated_rows", p.EstimatedRows))
	return *p, nil
}

// proposable reports whether sql is plain DML. Anything else, including
// EXPLAIN ANALYZE wrappers, would run while being planned.
func proposable(sql string) bool {
	switch sqlguard.QueryType(sql) {
	case sqlguard.Insert, sqlguard.Update, sqlguard.Delete:
		return true
	default:
		return false
	}
}

// Approve executes a pending proposal on the privileged pool.
func (s *Service) Approve(ctx context.Context, id, approver string) (Proposal, error) {
	p, err := s.decide(id)
	if err != nil {
		return Proposal{}, err
	}
	s.audit.LogDBAAction(ctx, audit.ActionApproved, p.SQL, true, approver)

	res := s.exec.ExecuteDBA(ctx, p.SQL, true)

	s.mu.Lock()
	p.DecidedBy = approver
	p.DecidedAt = s.now()
	p.Result = &res
	if res.Success {
		p.Status = StatusExecuted
	} else {
		p.Status = StatusFailed
	}
	out := *p
	s.mu.Unlock()

	s.audit.LogDBAAction(ctx, audit.ActionExecuted, p.SQL, true, approver)
	if !res.Success {
		s.logger.Error("approved statement failed", zap.String("proposal", id), zap.String("error", res.Error))
	}
	return out, nil
}

func (s *Service) Reject(ctx context.Context, id, approver string) (Proposal, error) {
	p, err := s.decide(id)
	if err != nil {
		return Proposal{}, err
	}
	s.mu.Lock()
	p.Status = StatusRejected
	p.DecidedBy = approver
	p.DecidedAt = s.now()
	out := *p
	s.mu.Unlock()

	s.audit.LogDBAAction(ctx, audit.ActionRejected, p.SQL, false, approver)
	return out, nil
}

// decide claims a pending proposal so only one caller can act on it.
func (s *Service) decide(id string) (*Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.proposals[id]
	if !ok {
		return nil, ErrUnknownProposal
	}
	s.expireLocked(s.now())
	switch p.Status {
	case StatusPending:
		p.Status = statusDeciding
		return p, nil
	case StatusExpired:
		return nil, ErrProposalExpired
	default:
		return nil, ErrAlreadyDecided
	}
}

func (s *Service) Get(id string) (Proposal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now())
	p, ok := s.proposals[id]
	if !ok {
		return Proposal{}, false
	}
	return *p, true
}

// Pending lists proposals awaiting a decision, oldest first.
func (s *Service) Pending() []Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.now())
	var out []Proposal
	for _, p := range s.proposals {
		if p.Status == StatusPending {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Service) expireLocked(now time.Time) {
	for _, p := range s.proposals {
		if p.Status == StatusPending && !now.Before(p.ExpiresAt) {
			p.Status = StatusExpired
		}
	}
}
