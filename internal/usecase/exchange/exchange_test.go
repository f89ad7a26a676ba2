package exchange

import (
	"bytes"
	"context"
	"strings"
	"testing"

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

func seedEntry(t *testing.T, repo *sqlite.EntryRepo, source, target, context string, q *float64, usage int64) *domain.TmEntry {
	t.Helper()
	e, err := repo.InsertOrMerge(ctxb(), &domain.TmEntry{
		SourceText:    source,
		SourceHash:    normalize.HashText(source),
		SourceLang:    "en",
		TargetLang:    "de",
		TargetText:    target,
		DomainContext: context,
		QualityScore:  q,
		UsageCount:    usage,
	})
	require.NoError(t, err)
	return e
}

func ctxb() context.Context { return context.Background() }

func TestRoundTrip(t *testing.T) {
	src := testRepo(t)
	seedEntry(t, src, "Hello world", "Hallo Welt", "", quality(0.9), 7)
	seedEntry(t, src, "End turn", "Zug beenden", "ui", quality(0.75), 3)
	seedEntry(t, src, "Unrated line", "Unbewertet", "", nil, 1)

	var buf bytes.Buffer
	written, err := NewExporter(src, nil).Export(ctxb(), &buf, ExportOptions{
		SourceLang: "en",
		TargetLang: "de",
	})
	require.NoError(t, err)
	require.Equal(t, 3, written)

	dst := testRepo(t)
	report, err := NewImporter(dst, cache.NewMemory(0), nil).Import(ctxb(), &buf, ImportOptions{
		Policy:     Overwrite,
		MergeUsage: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Imported)
	assert.Empty(t, report.Errors)

	got, err := dst.FindExact(ctxb(), normalize.HashText("End turn"), "de", "ui")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Zug beenden", got.TargetText)
	assert.Equal(t, "ui", got.DomainContext)
	require.NotNil(t, got.QualityScore)
	assert.InDelta(t, 0.75, *got.QualityScore, 1e-9)
	assert.Equal(t, int64(3), got.UsageCount, "usage survives export and merge-usage import")

	unrated, err := dst.FindExact(ctxb(), normalize.HashText("Unrated line"), "de", "")
	require.NoError(t, err)
	require.NotNil(t, unrated)
	assert.Nil(t, unrated.QualityScore, "absence of a rating round-trips as absence")
}

func TestImport_SkipExisting(t *testing.T) {
	repo := testRepo(t)
	seedEntry(t, repo, "Hello world", "Hallo Welt", "", quality(0.9), 1)

	doc := tmxDoc(`
    <tu>
      <prop type="x-quality-score">0.4</prop>
      <prop type="x-usage-count">6</prop>
      <tuv xml:lang="en"><seg>Hello world</seg></tuv>
      <tuv xml:lang="de"><seg>Falsche Fassung</seg></tuv>
    </tu>`)

	report, err := NewImporter(repo, cache.NewMemory(0), nil).Import(ctxb(), strings.NewReader(doc), ImportOptions{MergeUsage: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Imported)

	got, err := repo.FindExact(ctxb(), normalize.HashText("Hello world"), "de", "")
	require.NoError(t, err)
	assert.Equal(t, "Hallo Welt", got.TargetText, "skip policy leaves the stored entry untouched")
	assert.Equal(t, int64(1), got.UsageCount, "skip policy ignores the imported usage count")
}

func TestImport_Overwrite(t *testing.T) {
	repo := testRepo(t)
	seedEntry(t, repo, "Hello world", "Alt", "", quality(0.9), 5)

	doc := tmxDoc(`
    <tu>
      <prop type="x-quality-score">0.6</prop>
      <prop type="x-usage-count">4</prop>
      <tuv xml:lang="en"><seg>Hello world</seg></tuv>
      <tuv xml:lang="de"><seg>Neu</seg></tuv>
    </tu>`)

	c := cache.NewMemory(0)
	report, err := NewImporter(repo, c, nil).Import(ctxb(), strings.NewReader(doc), ImportOptions{
		Policy:     Overwrite,
		MergeUsage: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)

	got, err := repo.FindExact(ctxb(), normalize.HashText("Hello world"), "de", "")
	require.NoError(t, err)
	assert.Equal(t, "Neu", got.TargetText)
	assert.InDelta(t, 0.6, *got.QualityScore, 1e-9, "overwrite replaces the rating, it does not merge")
	assert.Equal(t, int64(9), got.UsageCount)
}

func TestImport_DifferentContextIsNotAConflict(t *testing.T) {
	repo := testRepo(t)
	seedEntry(t, repo, "Hello world", "Hallo Welt", "", quality(0.9), 1)

	doc := tmxDoc(`
    <tu>
      <prop type="x-game-context">dialog</prop>
      <tuv xml:lang="en"><seg>Hello world</seg></tuv>
      <tuv xml:lang="de"><seg>Hallo Welt (Dialog)</seg></tuv>
    </tu>`)

	report, err := NewImporter(repo, cache.NewMemory(0), nil).Import(ctxb(), strings.NewReader(doc), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 0, report.Skipped)

	got, err := repo.FindExact(ctxb(), normalize.HashText("Hello world"), "de", "dialog")
	require.NoError(t, err)
	assert.Equal(t, "dialog", got.DomainContext)
}

func TestImport_MalformedUnitsAreScoped(t *testing.T) {
	repo := testRepo(t)

	doc := tmxDoc(`
    <tu>
      <tuv xml:lang="en"><seg>Only one variant</seg></tuv>
    </tu>
    <tu>
      <tuv xml:lang="en"><seg>Good line</seg></tuv>
      <tuv xml:lang="de"><seg>Gute Zeile</seg></tuv>
    </tu>
    <tu>
      <prop type="x-quality-score">nonsense</prop>
      <tuv xml:lang="en"><seg>Bad score</seg></tuv>
      <tuv xml:lang="de"><seg>Schlecht</seg></tuv>
    </tu>`)

	report, err := NewImporter(repo, cache.NewMemory(0), nil).Import(ctxb(), strings.NewReader(doc), ImportOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Errors, 2)
	var ferr *domain.FormatError
	assert.ErrorAs(t, report.Errors[0], &ferr)

	got, err := repo.FindExact(ctxb(), normalize.HashText("Good line"), "de", "")
	require.NoError(t, err)
	require.NotNil(t, got, "the good unit lands despite neighbours failing")
}

func TestImport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(ctxb())
	cancel()

	report, err := NewImporter(testRepo(t), cache.NewMemory(0), nil).
		Import(ctx, strings.NewReader(tmxDoc("")), ImportOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report, "partial progress is reported even on abort")
	assert.Equal(t, 0, report.Total)
}

func TestImport_UnknownPolicy(t *testing.T) {
	_, err := NewImporter(testRepo(t), cache.NewMemory(0), nil).
		Import(ctxb(), strings.NewReader(""), ImportOptions{Policy: "merge-ish"})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestExport_MinQualityKeepsUnrated(t *testing.T) {
	repo := testRepo(t)
	seedEntry(t, repo, "Good line", "Gut", "", quality(0.9), 1)
	seedEntry(t, repo, "Poor line", "Schlecht", "", quality(0.3), 1)
	seedEntry(t, repo, "Unrated line", "Unbewertet", "", nil, 1)

	var buf bytes.Buffer
	written, err := NewExporter(repo, nil).Export(ctxb(), &buf, ExportOptions{
		SourceLang: "en",
		TargetLang: "de",
		MinQuality: quality(0.5),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	out := buf.String()
	assert.Contains(t, out, "Good line")
	assert.NotContains(t, out, "Poor line")
	assert.Contains(t, out, "Unrated line")
}

func TestExport_CancelMidway(t *testing.T) {
	repo := testRepo(t)
	seedEntry(t, repo, "Line one", "Eins", "", quality(0.9), 1)
	seedEntry(t, repo, "Line two", "Zwei", "", quality(0.9), 1)
	seedEntry(t, repo, "Line three", "Drei", "", quality(0.9), 1)

	ctx, cancel := context.WithCancel(ctxb())
	var buf bytes.Buffer
	written, err := NewExporter(repo, nil).Export(ctx, &buf, ExportOptions{
		SourceLang: "en",
		TargetLang: "de",
		Progress:   func(int) { cancel() },
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, written)
}

func TestExport_EmptyStoreStillValidDocument(t *testing.T) {
	var buf bytes.Buffer
	written, err := NewExporter(testRepo(t), nil).Export(ctxb(), &buf, ExportOptions{
		SourceLang: "en",
		TargetLang: "de",
	})
	require.NoError(t, err)
	assert.Zero(t, written)
	assert.Contains(t, buf.String(), "<body>")
	assert.Contains(t, buf.String(), "</tmx>")
}

func tmxDoc(body string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<tmx version="1.4">
  <header creationtool="tmengine" creationtoolversion="1.0" segtype="sentence"
    o-tmf="tmengine" adminlang="en" srclang="en" datatype="plaintext"/>
  <body>` + body + `
  </body>
</tmx>`
}
