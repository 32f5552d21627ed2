package database

import (
	"context"
	"fmt"

	"nl2sql/internal/audit"
)

// AuditStore persists audit entries in the audit_log table.
type AuditStore struct {
	*Store
}

func (s *Store) Audit() AuditStore {
	return AuditStore{s}
}

var _ audit.Store = AuditStore{}

func (s AuditStore) Insert(ctx context.Context, e audit.Entry) error {
	rec := toRecord(e)
	if _, err := s.db.ModelContext(ctx, &rec).Insert(); err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func (s AuditStore) Update(ctx context.Context, e audit.Entry) error {
	rec := toRecord(e)
	if _, err := s.db.ModelContext(ctx, &rec).WherePK().Update(); err != nil {
		return fmt.Errorf("failed to update audit entry %s: %w", e.ID, err)
	}
	return nil
}

func (s AuditStore) Get(ctx context.Context, id string) (audit.Entry, bool, error) {
	rec := AuditRecord{ID: id}
	err := s.db.ModelContext(ctx, &rec).WherePK().Select()
	if isNoRows(err) {
		return audit.Entry{}, false, nil
	}
	if err != nil {
		return audit.Entry{}, false, fmt.Errorf("failed to load audit entry %s: %w", id, err)
	}
	return rec.entry(), true, nil
}

func (s AuditStore) List(ctx context.Context, f audit.Filter) ([]audit.Entry, error) {
	var recs []AuditRecord
	q := s.db.ModelContext(ctx, &recs).Order("timestamp DESC", "log_id DESC")
	if f.Mode != "" {
		q = q.Where("mode = ?", f.Mode)
	}
	if f.SuccessOnly {
		q = q.Where("execution_success IS TRUE")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Select(); err != nil {
		return nil, fmt.Errorf("failed to read audit trail: %w", err)
	}
	out := make([]audit.Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.entry())
	}
	return out, nil
}

func (s AuditStore) Stats(ctx context.Context) (audit.Stats, error) {
	var row struct {
		TotalQueries      int `pg:"total_queries"`
		SuccessfulQueries int `pg:"successful_queries"`
		FailedQueries     int `pg:"failed_queries"`
		DBAActions        int `pg:"dba_actions"`
	}
	_, err := s.db.QueryOneContext(ctx, &row, `
		SELECT count(*) FILTER (WHERE log_type = ?0) AS total_queries,
		       count(*) FILTER (WHERE log_type = ?0 AND execution_success IS TRUE) AS successful_queries,
		       count(*) FILTER (WHERE log_type = ?0 AND execution_success IS FALSE) AS failed_queries,
		       count(*) FILTER (WHERE log_type = ?1) AS dba_actions
		FROM audit_log
	`, string(audit.KindQuery), string(audit.KindDBAAction))
	if err != nil {
		return audit.Stats{}, fmt.Errorf("failed to compute audit statistics: %w", err)
	}
	stats := audit.Stats{
		TotalQueries:      row.TotalQueries,
		SuccessfulQueries: row.SuccessfulQueries,
		FailedQueries:     row.FailedQueries,
		DBAActions:        row.DBAActions,
	}
	if stats.TotalQueries > 0 {
		stats.SuccessRate = float64(stats.SuccessfulQueries) / float64(stats.TotalQueries) * 100
	}
	return stats, nil
}

func toRecord(e audit.Entry) AuditRecord {
	return AuditRecord{
		ID:               e.ID,
		Kind:             string(e.Kind),
		Timestamp:        e.Timestamp,
		SessionID:        e.SessionID,
		Mode:             e.Mode,
		Question:         e.Question,
		SQL:              e.SQL,
		Success:          e.Success,
		Error:            e.Error,
		ExecutionSeconds: e.ExecutionSeconds,
		RowsReturned:     e.RowsReturned,
		Action:           string(e.Action),
		Approved:         e.Approved,
		ApproverID:       e.ApproverID,
	}
}

func (r AuditRecord) entry() audit.Entry {
	return audit.Entry{
		ID:               r.ID,
		Kind:             audit.Kind(r.Kind),
		Timestamp:        r.Timestamp,
		SessionID:        r.SessionID,
		Mode:             r.Mode,
		Question:         r.Question,
		SQL:              r.SQL,
		Success:          r.Success,
		Error:            r.Error,
		ExecutionSeconds: r.ExecutionSeconds,
		RowsReturned:     r.RowsReturned,
		Action:           audit.Action(r.Action),
		Approved:         r.Approved,
		ApproverID:       r.ApproverID,
	}
}
