// Package executor runs statements against the target database through two
// pools: a read-only role for answers and a privileged role for approved
// DBA work.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"nl2sql/internal/metrics"
	"nl2sql/internal/resolve"
	"nl2sql/internal/sqlguard"
)

const DefaultMaxRows = 10000

// ErrNotApprovedMessage is the Result.Error of an unapproved DBA call.
const ErrNotApprovedMessage = "Query must be approved before execution"

var tracer = otel.Tracer("nl2sql/executor")

// Result is the outcome of running a statement. Failures are values, not
// errors.
type Result struct {
	Success       bool             `json:"success"`
	Columns       []string         `json:"columns"`
	Rows          []map[string]any `json:"data"`
	RowCount      int64            `json:"row_count"`
	Truncated     bool             `json:"truncated"`
	ExecutionTime time.Duration    `json:"execution_time"`
	Error         string           `json:"error,omitempty"`
}

type Options struct {
	QueryTimeout   time.Duration
	ExplainTimeout time.Duration
	MaxRows        int
}

func (o Options) withDefaults() Options {
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
	if o.ExplainTimeout <= 0 {
		o.ExplainTimeout = 10 * time.Second
	}
	if o.MaxRows <= 0 {
		o.MaxRows = DefaultMaxRows
	}
	return o
}

type Executor struct {
	readonly *pgxpool.Pool
	dba      *pgxpool.Pool
	opts     Options
	logger   *zap.Logger
}

// Connect opens the read-only pool and, when dbaDSN is set, the DBA pool.
func Connect(ctx context.Context, readonlyDSN, dbaDSN string, opts Options, logger *zap.Logger) (*Executor, error) {
	readonly, err := pgxpool.New(ctx, readonlyDSN)
	if err != nil {
		return nil, fmt.Errorf("connect read-only database: %w", err)
	}
	if err := readonly.Ping(ctx); err != nil {
		readonly.Close()
		return nil, fmt.Errorf("ping read-only database: %w", err)
	}

	var dba *pgxpool.Pool
	if dbaDSN != "" {
		dba, err = pgxpool.New(ctx, dbaDSN)
		if err != nil {
			readonly.Close()
			return nil, fmt.Errorf("connect dba database: %w", err)
		}
	}
	return New(readonly, dba, opts, logger), nil
}

func New(readonly, dba *pgxpool.Pool, opts Options, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{readonly: readonly, dba: dba, opts: opts.withDefaults(), logger: logger}
}

// ReadOnlyPool is shared with the schema manager.
func (e *Executor) ReadOnlyPool() *pgxpool.Pool {
	return e.readonly
}

func (e *Executor) Close() {
	if e.readonly != nil {
		e.readonly.Close()
	}
	if e.dba != nil {
		e.dba.Close()
	}
}

// ExecuteReadOnly runs sql inside a read-only transaction with a statement
// timeout and returns at most MaxRows rows.
func (e *Executor) ExecuteReadOnly(ctx context.Context, sql string) Result {
	if v := sqlguard.Check(sql, sqlguard.ReadOnly); !v.IsSafe {
		return Result{Error: "Query rejected: " + strings.Join(v.Issues, "; ")}
	}
	if e.readonly == nil {
		return Result{Error: "read-only connection not configured"}
	}
	return e.run(ctx, e.readonly, sqlguard.ReadOnly, sql, pgx.TxOptions{AccessMode: pgx.ReadOnly})
}

// ExecuteDBA runs an approved statement on the privileged pool.
func (e *Executor) ExecuteDBA(ctx context.Context, sql string, approved bool) Result {
	if !approved {
		return Result{Error: ErrNotApprovedMessage}
	}
	if e.dba == nil {
		return Result{Error: "DBA connection not configured"}
	}
	return e.run(ctx, e.dba, sqlguard.Privileged, sql, pgx.TxOptions{AccessMode: pgx.ReadWrite})
}

func (e *Executor) run(ctx context.Context, pool *pgxpool.Pool, mode sqlguard.Mode, sql string, txOpts pgx.TxOptions) Result {
	ctx, span := tracer.Start(ctx, "executor.execute")
	defer span.End()
	span.SetAttributes(attribute.String("mode", mode.String()))

	start := time.Now()
	res, err := e.execute(ctx, pool, sql, txOpts, e.opts.QueryTimeout)
	res.ExecutionTime = time.Since(start)
	if err != nil {
		res = Result{Error: strings.TrimSpace(err.Error()), ExecutionTime: res.ExecutionTime}
		span.RecordError(err)
		span.SetStatus(codes.Error, "execution failed")
		e.logger.Error("query execution failed", zap.Stringer("mode", mode), zap.Error(err))
	} else {
		res.Success = true
		e.logger.Info("query executed",
			zap.Stringer("mode", mode),
			zap.Int64("rows", res.RowCount),
			zap.Duration("elapsed", res.ExecutionTime))
	}
	metrics.ObserveQuery(mode.String(), res.Success, res.ExecutionTime, int(res.RowCount))
	return res
}

func (e *Executor) execute(ctx context.Context, pool *pgxpool.Pool, sql string, txOpts pgx.TxOptions, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := pool.BeginTx(ctx, txOpts)
	if err != nil {
		return Result{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if _, err := tx.Exec(ctx, "SELECT set_config('statement_timeout', $1, true)", strconv.FormatInt(timeout.Milliseconds(), 10)); err != nil {
		return Result{}, fmt.Errorf("set statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return Result{}, err
	}
	res, err := collect(rows, e.opts.MaxRows)
	if err != nil {
		return Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// collect drains rows into maps, keeping at most max of them. Statements
// without a result set report the affected row count instead.
func collect(rows pgx.Rows, max int) (Result, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	res := Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		if len(res.Rows) >= max {
			res.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return Result{}, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = NormalizeValue(values[i])
		}
		res.Rows = append(res.Rows, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Result{}, err
	}

	if len(fields) == 0 {
		res.RowCount = rows.CommandTag().RowsAffected()
	} else {
		res.RowCount = int64(len(res.Rows))
	}
	return res, nil
}

// NormalizeValue converts driver types that do not render well as JSON.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		return string(t)
	default:
		return v
	}
}

// Explain returns the plan of sql as seen by the read-only role.
func (e *Executor) Explain(ctx context.Context, sql string) ([]string, error) {
	return e.explain(ctx, e.readonly, sql)
}

// ExplainPrivileged plans sql as the DBA role. EXPLAIN without ANALYZE never
// runs the statement.
func (e *Executor) ExplainPrivileged(ctx context.Context, sql string) ([]string, error) {
	if e.dba == nil {
		return nil, errors.New("DBA connection not configured")
	}
	return e.explain(ctx, e.dba, sql)
}

// Explainer returns the plan source for the given guard mode.
func (e *Executor) Explainer(mode sqlguard.Mode) resolve.Explainer {
	if mode == sqlguard.Privileged {
		return explainFunc(e.ExplainPrivileged)
	}
	return explainFunc(e.Explain)
}

type explainFunc func(ctx context.Context, sql string) ([]string, error)

func (f explainFunc) Explain(ctx context.Context, sql string) ([]string, error) {
	return f(ctx, sql)
}

func (e *Executor) explain(ctx context.Context, pool *pgxpool.Pool, sql string) ([]string, error) {
	if pool == nil {
		return nil, errors.New("database connection not configured")
	}
	ctx, span := tracer.Start(ctx, "executor.explain")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, e.opts.ExplainTimeout)
	defer cancel()

	plan, err := explainInTx(ctx, pool, sql)
	if err != nil {
		span.RecordError(err)
		e.logger.Debug("explain failed", zap.Error(err))
		return nil, err
	}
	return plan, nil
}

// explainInTx plans sql inside a transaction that is always rolled back, so
// nothing a plan request triggers is ever committed.
func explainInTx(ctx context.Context, db txBeginner, sql string) ([]string, error) {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	rows, err := tx.Query(ctx, "EXPLAIN "+sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// EstimateAffectedRows counts the rows an UPDATE or DELETE would touch.
// Anything it cannot rewrite, or any failure, yields 0.
func (e *Executor) EstimateAffectedRows(ctx context.Context, sql string) int64 {
	query, ok := CountQueryFor(sql)
	if !ok || e.readonly == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.ExplainTimeout)
	defer cancel()

	var n int64
	if err := e.readonly.QueryRow(ctx, query).Scan(&n); err != nil {
		e.logger.Warn("failed to estimate affected rows", zap.Error(err))
		return 0
	}
	return n
}
