package translator

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tmengine/internal/adapters/cache"
	"tmengine/internal/adapters/db/sqlite"
	"tmengine/internal/domain"
	"tmengine/internal/normalize"
	"tmengine/internal/ports"
	"tmengine/internal/usecase/matcher"
)

type stubProvider struct {
	calls  int
	result string
	err    error
}

func (p *stubProvider) Translate(_ context.Context, _ ports.TranslateParams) (ports.TranslateResult, error) {
	p.calls++
	if p.err != nil {
		return ports.TranslateResult{}, p.err
	}
	return ports.TranslateResult{Translation: p.result, Raw: p.result}, nil
}

func (p *stubProvider) Test(context.Context) error { return nil }

type fixture struct {
	db      *sql.DB
	entries *sqlite.EntryRepo
	matcher *matcher.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Init(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	entries := sqlite.NewEntryRepo(db)
	m := matcher.New(matcher.Deps{
		Entries: entries,
		Traces:  sqlite.NewTraceRepo(db),
		Cache:   cache.NewMemory(0),
	})
	return &fixture{db: db, entries: entries, matcher: m}
}

func (f *fixture) seed(t *testing.T, source, target string, q float64) *domain.TmEntry {
	t.Helper()
	e, err := f.entries.InsertOrMerge(context.Background(), &domain.TmEntry{
		SourceText:   source,
		SourceHash:   normalize.HashText(source),
		SourceLang:   "en",
		TargetLang:   "de",
		TargetText:   target,
		QualityScore: &q,
	})
	require.NoError(t, err)
	return e
}

func TestTranslate_MemoryHitSkipsProvider(t *testing.T) {
	f := newFixture(t)
	e := f.seed(t, "Hello world", "Hallo Welt", 0.9)
	prov := &stubProvider{result: "should not be used"}
	svc := New(Deps{Matcher: f.matcher, Provider: prov})

	got, err := svc.Translate(context.Background(), TranslateArgs{
		SourceText:  "Hello world",
		SourceLang:  "en",
		TargetLang:  "de",
		ConsumerRef: "unit:1",
	})
	require.NoError(t, err)
	assert.Equal(t, OriginMemory, got.Origin)
	assert.Equal(t, "Hallo Welt", got.Translation)
	assert.Equal(t, 1.0, got.Similarity)
	assert.Zero(t, prov.calls)

	stored, err := f.entries.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.UsageCount, "applying the match records a use")
}

func TestTranslate_FallbackStoresMachineResult(t *testing.T) {
	f := newFixture(t)
	prov := &stubProvider{result: "Hallo Welt"}
	svc := New(Deps{Matcher: f.matcher, Provider: prov})

	got, err := svc.Translate(context.Background(), TranslateArgs{
		SourceText: "Hello world",
		SourceLang: "en",
		TargetLang: "de",
	})
	require.NoError(t, err)
	assert.Equal(t, OriginMachine, got.Origin)
	assert.Equal(t, "Hallo Welt", got.Translation)
	assert.Equal(t, 1, prov.calls)
	require.NotZero(t, got.EntryID)

	stored, err := f.entries.Get(context.Background(), got.EntryID)
	require.NoError(t, err)
	require.NotNil(t, stored.QualityScore)
	assert.Equal(t, 0.8, *stored.QualityScore, "machine output gets the default machine rating")

	// The stored fallback serves the next identical request from memory.
	again, err := svc.Translate(context.Background(), TranslateArgs{
		SourceText: "Hello world",
		SourceLang: "en",
		TargetLang: "de",
	})
	require.NoError(t, err)
	assert.Equal(t, OriginMemory, again.Origin)
	assert.Equal(t, 1, prov.calls, "no second provider call")
}

func TestTranslate_NearMissSuggestionsRideAlong(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "Please save the game before the battle starts", "Bitte speichere das Spiel", 0.9)
	prov := &stubProvider{result: "Bitte speichert die Spiele"}
	svc := New(Deps{Matcher: f.matcher, Provider: prov})

	got, err := svc.Translate(context.Background(), TranslateArgs{
		SourceText: "Please save the games before the battle starts",
		SourceLang: "en",
		TargetLang: "de",
	})
	require.NoError(t, err)
	assert.Equal(t, OriginMachine, got.Origin)
	require.Len(t, got.Suggestions, 1)
	assert.Equal(t, domain.MatchFuzzy, got.Suggestions[0].Kind)
}

func TestTranslate_ProviderErrorPropagates(t *testing.T) {
	f := newFixture(t)
	prov := &stubProvider{err: errors.New("quota exceeded")}
	svc := New(Deps{Matcher: f.matcher, Provider: prov})

	_, err := svc.Translate(context.Background(), TranslateArgs{
		SourceText: "Hello world",
		SourceLang: "en",
		TargetLang: "de",
	})
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestTranslate_ValidationDoesNotReachProvider(t *testing.T) {
	f := newFixture(t)
	prov := &stubProvider{result: "x"}
	svc := New(Deps{Matcher: f.matcher, Provider: prov})

	_, err := svc.Translate(context.Background(), TranslateArgs{SourceText: "  ", SourceLang: "en", TargetLang: "de"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Zero(t, prov.calls)
}

func TestTranslate_BrokenStoreDegradesToProvider(t *testing.T) {
	f := newFixture(t)
	prov := &stubProvider{result: "Hallo Welt"}
	svc := New(Deps{Matcher: f.matcher, Provider: prov})

	// A dead store must not take translation down with it.
	require.NoError(t, f.db.Close())

	got, err := svc.Translate(context.Background(), TranslateArgs{
		SourceText: "Hello world",
		SourceLang: "en",
		TargetLang: "de",
	})
	require.NoError(t, err)
	assert.Equal(t, OriginMachine, got.Origin)
	assert.Equal(t, "Hallo Welt", got.Translation)
	assert.Zero(t, got.EntryID, "nothing was stored, and that is survivable")
}

func TestTranslate_NoProviderNoMatch(t *testing.T) {
	f := newFixture(t)
	svc := New(Deps{Matcher: f.matcher})

	_, err := svc.Translate(context.Background(), TranslateArgs{
		SourceText: "Hello world",
		SourceLang: "en",
		TargetLang: "de",
	})
	var nf *domain.NotFoundError
	assert.ErrorAs(t, err, &nf)
}
