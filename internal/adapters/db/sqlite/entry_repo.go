package sqlite

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"tmengine/internal/domain"
)

var entryColumns = []string{
	"id",
	"source_text",
	"source_hash",
	"source_lang",
	"target_lang",
	"target_text",
	"domain_context",
	"provider_id",
	"quality_score",
	"usage_count",
	"created_at",
	"last_used_at",
	"updated_at",
}

type EntryRepo struct{ *Repo }

func NewEntryRepo(db *sql.DB) *EntryRepo { return &EntryRepo{NewRepo(db)} }

func (r *EntryRepo) InsertOrMerge(ctx context.Context, e *domain.TmEntry) (*domain.TmEntry, error) {
	now := formatTime(time.Now())
	usage := e.UsageCount
	if usage < 1 {
		usage = 1
	}
	q := r.SQ.Insert("tm_entries").
		Columns(
			"source_text",
			"source_hash",
			"source_lang",
			"target_lang",
			"target_text",
			"domain_context",
			"provider_id",
			"quality_score",
			"usage_count",
			"created_at",
			"last_used_at",
			"updated_at",
		).
		Values(
			e.SourceText,
			e.SourceHash,
			e.SourceLang,
			e.TargetLang,
			e.TargetText,
			e.DomainContext,
			e.ProviderID,
			e.QualityScore,
			usage,
			now,
			now,
			now,
		).
		Suffix(`ON CONFLICT(source_hash, target_lang, domain_context) DO UPDATE SET
            usage_count = tm_entries.usage_count + 1,
            quality_score = CASE
                WHEN excluded.quality_score IS NULL THEN tm_entries.quality_score
                WHEN tm_entries.quality_score IS NULL THEN excluded.quality_score
                ELSE MAX(tm_entries.quality_score, excluded.quality_score)
            END,
            last_used_at = excluded.last_used_at,
            updated_at = excluded.updated_at`)
	sqlStr, args, _ := q.ToSql()
	if _, err := r.DB.ExecContext(ctx, sqlStr, args...); err != nil {
		return nil, &domain.StoreError{Op: "insert_or_merge", Cause: err}
	}
	stored, err := r.findByTriple(ctx, e.SourceHash, e.TargetLang, e.DomainContext)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (r *EntryRepo) findByTriple(ctx context.Context, hash, targetLang, context string) (*domain.TmEntry, error) {
	q := r.SQ.Select(entryColumns...).From("tm_entries").
		Where(sq.Eq{"source_hash": hash, "target_lang": targetLang, "domain_context": context}).
		Limit(1)
	return r.queryOne(ctx, q, "find_by_triple")
}

func (r *EntryRepo) FindExact(ctx context.Context, hash, targetLang, context string) (*domain.TmEntry, error) {
	q := r.SQ.Select(entryColumns...).From("tm_entries").
		Where(sq.Eq{"source_hash": hash, "target_lang": targetLang})
	if context != "" {
		// Context-specific entries win; empty-context entries are an
		// acceptable fallback.
		q = q.Where(sq.Eq{"domain_context": []string{context, ""}}).
			OrderByClause("CASE WHEN domain_context = ? THEN 0 ELSE 1 END", context)
	} else {
		q = q.OrderByClause("CASE WHEN domain_context = '' THEN 0 ELSE 1 END").
			OrderBy("quality_score IS NULL", "quality_score DESC")
	}
	q = q.Limit(1)
	return r.queryOne(ctx, q, "find_exact")
}

func (r *EntryRepo) ScanCandidates(ctx context.Context, targetLang, context string, limit int) ([]*domain.TmEntry, error) {
	q := r.SQ.Select(entryColumns...).From("tm_entries")
	if targetLang != "" {
		q = q.Where(sq.Eq{"target_lang": targetLang})
	}
	if context != "" {
		q = q.Where(sq.Eq{"domain_context": []string{context, ""}})
	}
	// Bias candidate selection toward reliable entries when truncating.
	q = q.OrderBy("quality_score IS NULL", "quality_score DESC", "usage_count DESC", "id ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sqlStr, args, _ := q.ToSql()
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, &domain.StoreError{Op: "scan_candidates", Cause: err}
	}
	defer rows.Close()
	var out []*domain.TmEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &domain.StoreError{Op: "scan_candidates", Cause: err}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "scan_candidates", Cause: err}
	}
	return out, nil
}

func (r *EntryRepo) Get(ctx context.Context, id int64) (*domain.TmEntry, error) {
	q := r.SQ.Select(entryColumns...).From("tm_entries").Where(sq.Eq{"id": id}).Limit(1)
	e, err := r.queryOne(ctx, q, "get")
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &domain.NotFoundError{Entity: "tm entry", ID: id}
	}
	return e, nil
}

func (r *EntryRepo) UpdateUsage(ctx context.Context, id int64, delta int64, lastUsedAt time.Time) error {
	// Single atomic increment; no read-modify-write.
	q := r.SQ.Update("tm_entries").
		Set("usage_count", sq.Expr("usage_count + ?", delta)).
		Set("last_used_at", formatTime(lastUsedAt)).
		Set("updated_at", formatTime(time.Now())).
		Where(sq.Eq{"id": id})
	return r.execExpectRow(ctx, q, "update_usage", id)
}

func (r *EntryRepo) UpdateQuality(ctx context.Context, id int64, quality float64) error {
	q := r.SQ.Update("tm_entries").
		Set("quality_score", quality).
		Set("updated_at", formatTime(time.Now())).
		Where(sq.Eq{"id": id})
	return r.execExpectRow(ctx, q, "update_quality", id)
}

func (r *EntryRepo) OverwriteFromImport(ctx context.Context, id int64, targetText string, quality *float64, usageDelta int64) error {
	if usageDelta < 0 {
		usageDelta = 0
	}
	q := r.SQ.Update("tm_entries").
		Set("target_text", targetText).
		Set("quality_score", quality).
		Set("usage_count", sq.Expr("usage_count + ?", usageDelta)).
		Set("updated_at", formatTime(time.Now())).
		Where(sq.Eq{"id": id})
	return r.execExpectRow(ctx, q, "overwrite_from_import", id)
}

func (r *EntryRepo) Delete(ctx context.Context, id int64) error {
	q := r.SQ.Delete("tm_entries").Where(sq.Eq{"id": id})
	return r.execExpectRow(ctx, q, "delete", id)
}

func (r *EntryRepo) DeleteWhere(ctx context.Context, minQuality float64, lastUsedBefore time.Time) ([]*domain.TmEntry, error) {
	// Unrated entries are deliberately never eligible for deletion.
	where := sq.And{
		sq.Expr("quality_score IS NOT NULL"),
		sq.Lt{"quality_score": minQuality},
		sq.Lt{"last_used_at": formatTime(lastUsedBefore)},
	}
	var victims []*domain.TmEntry
	err := WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		selSQL, selArgs, _ := r.SQ.Select(entryColumns...).From("tm_entries").Where(where).ToSql()
		rows, err := tx.QueryContext(ctx, selSQL, selArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}
			victims = append(victims, e)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(victims) == 0 {
			return nil
		}
		ids := make([]int64, len(victims))
		for i, v := range victims {
			ids[i] = v.ID
		}
		delSQL, delArgs, _ := r.SQ.Delete("tm_entries").Where(sq.Eq{"id": ids}).ToSql()
		_, err = tx.ExecContext(ctx, delSQL, delArgs...)
		return err
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "delete_where", Cause: err}
	}
	return victims, nil
}

func (r *EntryRepo) AggregateStats(ctx context.Context) (*domain.AggregateStats, error) {
	stats := &domain.AggregateStats{}

	row := r.DB.QueryRowContext(ctx, `SELECT
        COUNT(*),
        COALESCE(AVG(quality_score), 0),
        COALESCE(SUM(usage_count), 0),
        COALESCE(SUM((LENGTH(source_text) / 4) * (usage_count - 1)), 0)
        FROM tm_entries`)
	if err := row.Scan(&stats.TotalEntries, &stats.AverageQuality, &stats.TotalUsage, &stats.EstimatedTokensSaved); err != nil {
		return nil, &domain.StoreError{Op: "aggregate_stats", Cause: err}
	}
	if stats.TotalUsage > 0 {
		stats.ReuseRate = float64(stats.TotalUsage-stats.TotalEntries) / float64(stats.TotalUsage)
	}

	rows, err := r.DB.QueryContext(ctx, `SELECT source_lang, target_lang, COUNT(*)
        FROM tm_entries GROUP BY source_lang, target_lang ORDER BY source_lang, target_lang`)
	if err != nil {
		return nil, &domain.StoreError{Op: "aggregate_stats", Cause: err}
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.LanguagePairCount
		if err := rows.Scan(&p.SourceLang, &p.TargetLang, &p.Entries); err != nil {
			return nil, &domain.StoreError{Op: "aggregate_stats", Cause: err}
		}
		stats.LanguagePairs = append(stats.LanguagePairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "aggregate_stats", Cause: err}
	}
	return stats, nil
}

func (r *EntryRepo) queryOne(ctx context.Context, q sq.SelectBuilder, op string) (*domain.TmEntry, error) {
	sqlStr, args, _ := q.ToSql()
	row := r.DB.QueryRowContext(ctx, sqlStr, args...)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: op, Cause: err}
	}
	return e, nil
}

func (r *EntryRepo) execExpectRow(ctx context.Context, q sq.Sqlizer, op string, id int64) error {
	sqlStr, args, _ := q.ToSql()
	res, err := r.DB.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return &domain.StoreError{Op: op, EntryID: id, Cause: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &domain.StoreError{Op: op, EntryID: id, Cause: err}
	}
	if n == 0 {
		return &domain.NotFoundError{Entity: "tm entry", ID: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*domain.TmEntry, error) {
	var e domain.TmEntry
	var quality sql.NullFloat64
	var created, lastUsed, updated string
	if err := row.Scan(
		&e.ID,
		&e.SourceText,
		&e.SourceHash,
		&e.SourceLang,
		&e.TargetLang,
		&e.TargetText,
		&e.DomainContext,
		&e.ProviderID,
		&quality,
		&e.UsageCount,
		&created,
		&lastUsed,
		&updated,
	); err != nil {
		return nil, err
	}
	if quality.Valid {
		v := quality.Float64
		e.QualityScore = &v
	}
	e.CreatedAt = parseTime(created)
	e.LastUsedAt = parseTime(lastUsed)
	e.UpdatedAt = parseTime(updated)
	return &e, nil
}
