package maintenance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmengine/internal/adapters/cache"
	"tmengine/internal/adapters/db/sqlite"
	"tmengine/internal/domain"
	"tmengine/internal/normalize"
)

func testRepo(t *testing.T) *sqlite.EntryRepo {
	t.Helper()
	db, err := sqlite.Init(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlite.NewEntryRepo(db)
}

func quality(v float64) *float64 { return &v }

func seedAged(t *testing.T, repo *sqlite.EntryRepo, source string, q *float64, age time.Duration) *domain.TmEntry {
	t.Helper()
	e, err := repo.InsertOrMerge(context.Background(), &domain.TmEntry{
		SourceText:   source,
		SourceHash:   normalize.HashText(source),
		SourceLang:   "en",
		TargetLang:   "de",
		TargetText:   source + " (de)",
		QualityScore: q,
	})
	require.NoError(t, err)
	if age > 0 {
		backdate(t, repo.DB, e.ID, time.Now().Add(-age))
	}
	return e
}

func backdate(t *testing.T, db *sql.DB, id int64, to time.Time) {
	t.Helper()
	_, err := db.Exec(`UPDATE tm_entries SET last_used_at = ? WHERE id = ?`,
		to.UTC().Format(time.RFC3339), id)
	require.NoError(t, err)
}

func TestCleanup_EvictsStaleLowQualityOnly(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	stale := seedAged(t, repo, "old and poor", quality(0.65), 400*24*time.Hour)
	fresh := seedAged(t, repo, "recent and poor", quality(0.65), 2*24*time.Hour)
	good := seedAged(t, repo, "old but good", quality(0.92), 400*24*time.Hour)
	unrated := seedAged(t, repo, "old and unrated", nil, 400*24*time.Hour)

	c := cache.NewMemory(0)
	c.Put(stale.SourceHash, "de", stale)
	svc := New(repo, c, nil)

	p := Policy{MinQuality: 0.7, MaxAge: 365 * 24 * time.Hour}
	n, err := svc.Cleanup(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var nf *domain.NotFoundError
	_, err = repo.Get(ctx, stale.ID)
	assert.ErrorAs(t, err, &nf)
	for _, keep := range []*domain.TmEntry{fresh, good, unrated} {
		_, err = repo.Get(ctx, keep.ID)
		assert.NoError(t, err)
	}

	_, ok := c.Get(stale.SourceHash, "de")
	assert.False(t, ok, "evicted entries leave the cache too")

	// Second run finds nothing left to evict.
	n, err = svc.Cleanup(ctx, p)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanup_PolicyValidation(t *testing.T) {
	svc := New(testRepo(t), cache.NewMemory(0), nil)
	var verr *domain.ValidationError

	_, err := svc.Cleanup(context.Background(), Policy{MinQuality: 1.5, MaxAge: time.Hour})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Cleanup(context.Background(), Policy{MinQuality: 0.5})
	assert.ErrorAs(t, err, &verr)
}

func TestScheduler_RunsAndStops(t *testing.T) {
	repo := testRepo(t)
	seedAged(t, repo, "old and poor", quality(0.2), 400*24*time.Hour)
	svc := New(repo, cache.NewMemory(0), nil)

	p := Policy{MinQuality: 0.7, MaxAge: 365 * 24 * time.Hour}
	require.NoError(t, svc.Start(context.Background(), p, 10*time.Millisecond))

	assert.Eventually(t, func() bool {
		stats, err := repo.AggregateStats(context.Background())
		return err == nil && stats.TotalEntries == 0
	}, time.Second, 10*time.Millisecond)

	svc.Stop()
	svc.Stop() // idempotent
}

func TestScheduler_DoubleStartIsNoop(t *testing.T) {
	svc := New(testRepo(t), cache.NewMemory(0), nil)
	p := Policy{MinQuality: 0.5, MaxAge: time.Hour}

	require.NoError(t, svc.Start(context.Background(), p, time.Hour))
	require.NoError(t, svc.Start(context.Background(), p, time.Hour))
	svc.Stop()
}
