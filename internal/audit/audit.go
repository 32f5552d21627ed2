// Package audit records every query attempt and DBA action. Recording never
// fails the caller: store errors are logged and dropped.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nl2sql/internal/sqlguard"
)

type Kind string

const (
	KindQuery     Kind = "QUERY"
	KindDBAAction Kind = "DBA_ACTION"
)

// Action is the step of a DBA approval being recorded.
type Action string

const (
	ActionProposed Action = "PROPOSED"
	ActionApproved Action = "APPROVED"
	ActionRejected Action = "REJECTED"
	ActionExecuted Action = "EXECUTED"
)

type Entry struct {
	ID               string    `json:"log_id"`
	Kind             Kind      `json:"log_type"`
	Timestamp        time.Time `json:"timestamp"`
	SessionID        string    `json:"session_id,omitempty"`
	Mode             string    `json:"mode,omitempty"`
	Question         string    `json:"question,omitempty"`
	SQL              string    `json:"sql"`
	Success          *bool     `json:"execution_success"`
	Error            string    `json:"error_message,omitempty"`
	ExecutionSeconds *float64  `json:"execution_time_seconds"`
	RowsReturned     *int64    `json:"rows_returned"`
	Action           Action    `json:"action,omitempty"`
	Approved         bool      `json:"dba_approved"`
	ApproverID       string    `json:"approver_id,omitempty"`
}

// Filter narrows Trail. Limit <= 0 means 100.
type Filter struct {
	Limit       int
	Mode        string
	SuccessOnly bool
}

func (f Filter) Matches(e Entry) bool {
	if f.Mode != "" && e.Mode != f.Mode {
		return false
	}
	if f.SuccessOnly && (e.Success == nil || !*e.Success) {
		return false
	}
	return true
}

type Stats struct {
	TotalQueries      int     `json:"total_queries"`
	SuccessfulQueries int     `json:"successful_queries"`
	FailedQueries     int     `json:"failed_queries"`
	SuccessRate       float64 `json:"success_rate"`
	DBAActions        int     `json:"dba_actions"`
}

// Store persists entries. List returns newest first.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	Update(ctx context.Context, e Entry) error
	Get(ctx context.Context, id string) (Entry, bool, error)
	List(ctx context.Context, f Filter) ([]Entry, error)
	Stats(ctx context.Context) (Stats, error)
}

type Logger struct {
	store   Store
	enabled bool
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Logger)

func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// Disabled turns every Log call into a no-op that still returns an id.
func Disabled() Option {
	return func(l *Logger) { l.enabled = false }
}

func New(store Store, logger *zap.Logger, opts ...Option) *Logger {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Logger{store: store, enabled: true, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogAttempt opens an entry for a generated statement and returns its id.
func (l *Logger) LogAttempt(ctx context.Context, session, question, sql string, mode sqlguard.Mode) string {
	now := l.now()
	id := NewID(now)
	if !l.enabled {
		return id
	}
	e := Entry{
		ID:        id,
		Kind:      KindQuery,
		Timestamp: now,
		SessionID: session,
		Mode:      mode.String(),
		Question:  question,
		SQL:       sql,
	}
	if err := l.store.Insert(ctx, e); err != nil {
		l.logger.Error("failed to write audit entry", zap.String("log_id", id), zap.Error(err))
		return id
	}
	l.logger.Info("logged query attempt", zap.String("log_id", id))
	return id
}

// LogResult completes the entry opened by LogAttempt.
func (l *Logger) LogResult(ctx context.Context, id string, success bool, errMsg string, elapsed time.Duration, rows int64) {
	if !l.enabled {
		return
	}
	e, ok, err := l.store.Get(ctx, id)
	if err != nil || !ok {
		l.logger.Warn("audit entry not found", zap.String("log_id", id), zap.Error(err))
		return
	}
	secs := elapsed.Seconds()
	e.Success = &success
	e.Error = errMsg
	e.ExecutionSeconds = &secs
	e.RowsReturned = &rows
	if err := l.store.Update(ctx, e); err != nil {
		l.logger.Error("failed to update audit entry", zap.String("log_id", id), zap.Error(err))
		return
	}
	l.logger.Info("updated query result", zap.String("log_id", id), zap.Bool("success", success))
}

// LogDBAAction records one step of a privileged statement's lifecycle.
func (l *Logger) LogDBAAction(ctx context.Context, action Action, sql string, approved bool, approver string) string {
	now := l.now()
	id := "dba_" + NewID(now)
	if !l.enabled {
		return id
	}
	e := Entry{
		ID:         id,
		Kind:       KindDBAAction,
		Timestamp:  now,
		SQL:        sql,
		Action:     action,
		Approved:   approved,
		ApproverID: approver,
	}
	if err := l.store.Insert(ctx, e); err != nil {
		l.logger.Error("failed to write audit entry", zap.String("log_id", id), zap.Error(err))
		return id
	}
	l.logger.Info("logged dba action", zap.String("log_id", id), zap.String("action", string(action)))
	return id
}

// Trail returns matching entries, newest first.
func (l *Logger) Trail(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	return l.store.List(ctx, f)
}

func (l *Logger) Statistics(ctx context.Context) (Stats, error) {
	return l.store.Stats(ctx)
}

// NewID formats YYYYMMDD_HHMMSS_<6 hex>.
func NewID(now time.Time) string {
	return now.Format("20060102_150405") + "_" + randomHex(6)
}

// NewSessionID formats session_YYYYMMDD_HHMMSS_<8 hex>.
func NewSessionID(now time.Time) string {
	return "session_" + now.Format("20060102_150405") + "_" + randomHex(8)
}

func randomHex(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// ComputeStats derives Stats from a full set of entries.
func ComputeStats(entries []Entry) Stats {
	var s Stats
	for _, e := range entries {
		if e.Kind == KindDBAAction {
			s.DBAActions++
			continue
		}
		s.TotalQueries++
		switch {
		case e.Success == nil:
		case *e.Success:
			s.SuccessfulQueries++
		default:
			s.FailedQueries++
		}
	}
	if s.TotalQueries > 0 {
		s.SuccessRate = float64(s.SuccessfulQueries) / float64(s.TotalQueries) * 100
	}
	return s
}
