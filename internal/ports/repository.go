package ports

import (
	"context"
	"time"

	"tmengine/internal/domain"
)

// EntryRepository is the persistence gateway for TM entries. It is the source
// of truth; caches hold non-owning, invalidatable copies.
type EntryRepository interface {
	// InsertOrMerge inserts the entry, or merges into the existing row when
	// the (source_hash, target_lang, domain_context) triple already exists:
	// usage_count is incremented, quality_score takes the max of old and new,
	// last_used_at is bumped. Returns the stored row.
	InsertOrMerge(ctx context.Context, e *domain.TmEntry) (*domain.TmEntry, error)

	// FindExact returns the entry matching (hash, targetLang). When context is
	// non-empty a context-specific entry is preferred, with an empty-context
	// entry as fallback. Returns nil, nil when nothing matches.
	FindExact(ctx context.Context, hash, targetLang, context string) (*domain.TmEntry, error)

	// ScanCandidates returns entries for the target language, optionally
	// narrowed to a domain context (empty-context entries included), ordered
	// by quality desc then usage desc. limit <= 0 means unbounded.
	ScanCandidates(ctx context.Context, targetLang, context string, limit int) ([]*domain.TmEntry, error)

	Get(ctx context.Context, id int64) (*domain.TmEntry, error)

	// UpdateUsage atomically adds delta to usage_count and sets last_used_at.
	UpdateUsage(ctx context.Context, id int64, delta int64, lastUsedAt time.Time) error

	UpdateQuality(ctx context.Context, id int64, quality float64) error

	// OverwriteFromImport replaces target text and metadata of an existing
	// row while adding usageDelta to its usage count.
	OverwriteFromImport(ctx context.Context, id int64, targetText string, quality *float64, usageDelta int64) error

	Delete(ctx context.Context, id int64) error

	// DeleteWhere removes entries with a rated quality below minQuality AND
	// last_used_at older than lastUsedBefore. Unrated entries are never
	// eligible. Returns the deleted rows so callers can invalidate caches.
	DeleteWhere(ctx context.Context, minQuality float64, lastUsedBefore time.Time) ([]*domain.TmEntry, error)

	AggregateStats(ctx context.Context) (*domain.AggregateStats, error)
}

// TraceRepository records usage traces. Append-only.
type TraceRepository interface {
	Append(ctx context.Context, t *domain.UsageTrace) error
	ListByEntry(ctx context.Context, entryID int64) ([]*domain.UsageTrace, error)
}
