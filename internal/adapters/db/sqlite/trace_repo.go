package sqlite

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"tmengine/internal/domain"
)

// TraceRepo records usage traces. Rows are append-only; there is no update
// or delete path by design.
type TraceRepo struct{ *Repo }

func NewTraceRepo(db *sql.DB) *TraceRepo { return &TraceRepo{NewRepo(db)} }

func (r *TraceRepo) Append(ctx context.Context, t *domain.UsageTrace) error {
	appliedAt := t.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}
	q := r.SQ.Insert("tm_usage_traces").
		Columns("entry_id", "similarity", "match_kind", "consumer_ref", "applied_at").
		Values(t.EntryID, t.Similarity, string(t.MatchKind), t.ConsumerRef, formatTime(appliedAt))
	sqlStr, args, _ := q.ToSql()
	if _, err := r.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return &domain.StoreError{Op: "append_trace", EntryID: t.EntryID, Cause: err}
	}
	return nil
}

func (r *TraceRepo) ListByEntry(ctx context.Context, entryID int64) ([]*domain.UsageTrace, error) {
	q := r.SQ.Select("id", "entry_id", "similarity", "match_kind", "consumer_ref", "applied_at").
		From("tm_usage_traces").
		Where(sq.Eq{"entry_id": entryID}).
		OrderBy("id ASC")
	sqlStr, args, _ := q.ToSql()
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "list_traces", EntryID: entryID, Cause: err}
	}
	defer rows.Close()
	var out []*domain.UsageTrace
	for rows.Next() {
		var t domain.UsageTrace
		var kind, applied string
		if err := rows.Scan(&t.ID, &t.EntryID, &t.Similarity, &kind, &t.ConsumerRef, &applied); err != nil {
			return nil, &domain.StoreError{Op: "list_traces", EntryID: entryID, Cause: err}
		}
		t.MatchKind = domain.MatchKind(kind)
		t.AppliedAt = parseTime(applied)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list_traces", EntryID: entryID, Cause: err}
	}
	return out, nil
}
