// Package matcher orchestrates translation-memory lookups: exact matching
// through the cache and gateway, fuzzy candidate retrieval and ranking, and
// classification into auto-apply and suggestion tiers.
package matcher

import (
	"context"
	"log/slog"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"tmengine/internal/domain"
	"tmengine/internal/normalize"
	"tmengine/internal/ports"
	"tmengine/internal/similarity"
)

// Candidate sets below this size are scored sequentially; goroutine setup
// costs more than it saves on tiny sets.
const parallelScoringThreshold = 64

type Deps struct {
	Entries ports.EntryRepository
	Traces  ports.TraceRepository
	Cache   ports.MatchCache
	Log     *slog.Logger
}

type Service struct {
	d          Deps
	weights    domain.ScoreWeights
	thresholds domain.Thresholds
	// quality assigned to machine output on Confirm when none is given
	machineQuality float64
}

type Option func(*Service)

func WithWeights(w domain.ScoreWeights) Option {
	return func(s *Service) { s.weights = w }
}

func WithThresholds(t domain.Thresholds) Option {
	return func(s *Service) { s.thresholds = t }
}

func WithMachineQuality(q float64) Option {
	return func(s *Service) { s.machineQuality = q }
}

func New(d Deps, opts ...Option) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	s := &Service{
		d:              d,
		weights:        domain.DefaultWeights(),
		thresholds:     domain.DefaultThresholds(),
		machineQuality: 0.8,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Query is one lookup request. Weights and Thresholds override the service
// defaults when set.
type Query struct {
	SourceText string
	SourceLang string
	TargetLang string
	Context    string
	Weights    *domain.ScoreWeights
	Thresholds *domain.Thresholds
}

// MatchSet is the outcome of a lookup: at most one auto-applicable match
// plus zero or more suggestions awaiting caller acceptance.
type MatchSet struct {
	Best        *domain.MatchCandidate
	Suggestions []domain.MatchCandidate
}

// Empty reports whether the lookup produced nothing usable.
func (m *MatchSet) Empty() bool {
	return m.Best == nil && len(m.Suggestions) == 0
}

// FindMatches runs the full lookup pipeline: normalize, exact lookup via
// cache then gateway, and on miss fuzzy retrieval, scoring, ranking and
// classification.
func (s *Service) FindMatches(ctx context.Context, q Query) (*MatchSet, error) {
	if strings.TrimSpace(q.SourceText) == "" {
		return nil, &domain.ValidationError{Field: "source_text", Message: "must not be empty"}
	}
	if q.TargetLang == "" {
		return nil, &domain.ValidationError{Field: "target_lang", Message: "must not be empty"}
	}
	weights := s.weights
	if q.Weights != nil {
		weights = *q.Weights
	}
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	th := s.thresholds
	if q.Thresholds != nil {
		th = *q.Thresholds
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}

	norm := normalize.Normalize(q.SourceText)
	hash := normalize.HashText(q.SourceText)

	if e, ok := s.d.Cache.Get(hash, q.TargetLang); ok {
		// Only an exact context match may be served from the cache. A cached
		// context-free entry is not enough: the store may hold a
		// context-specific row that takes precedence, and only the gateway
		// can tell.
		if e.DomainContext == q.Context {
			c := exactCandidate(e)
			return &MatchSet{Best: &c}, nil
		}
	}

	e, err := s.d.Entries.FindExact(ctx, hash, q.TargetLang, q.Context)
	if err != nil {
		return nil, err
	}
	if e != nil {
		s.d.Cache.Put(hash, q.TargetLang, e)
		c := exactCandidate(e)
		return &MatchSet{Best: &c}, nil
	}

	candidates, err := s.d.Entries.ScanCandidates(ctx, q.TargetLang, q.Context, th.MaxCandidates)
	if err != nil {
		return nil, err
	}
	scored := s.scoreCandidates(ctx, norm, q.Context, candidates, weights, th)
	rankCandidates(scored)
	if len(scored) > th.TopN {
		scored = scored[:th.TopN]
	}

	out := &MatchSet{}
	for _, c := range scored {
		if c.AutoApplied && out.Best == nil {
			best := c
			out.Best = &best
			continue
		}
		out.Suggestions = append(out.Suggestions, c)
	}
	return out, nil
}

// scoreCandidates scores every candidate against the normalized query,
// in parallel for large sets, and keeps those at or above the
// fuzzy-acceptance threshold.
func (s *Service) scoreCandidates(ctx context.Context, norm, queryContext string, candidates []*domain.TmEntry, w domain.ScoreWeights, th domain.Thresholds) []domain.MatchCandidate {
	if len(candidates) == 0 {
		return nil
	}
	results := make([]domain.MatchCandidate, len(candidates))
	accepted := make([]bool, len(candidates))

	scoreOne := func(i int) {
		cand := candidates[i]
		candNorm := normalize.Normalize(cand.SourceText)
		composite, bd := similarity.Score(norm, candNorm, queryContext, cand.DomainContext, w)
		keep, auto := classify(composite, th)
		if !keep {
			return
		}
		results[i] = domain.MatchCandidate{
			EntryID:       cand.ID,
			SourceText:    cand.SourceText,
			TargetText:    cand.TargetText,
			TargetLang:    cand.TargetLang,
			DomainContext: cand.DomainContext,
			QualityScore:  cand.QualityScore,
			UsageCount:    cand.UsageCount,
			Similarity:    composite,
			Kind:          domain.MatchFuzzy,
			Breakdown:     bd,
			AutoApplied:   auto,
		}
		accepted[i] = true
	}

	if len(candidates) < parallelScoringThreshold {
		for i := range candidates {
			scoreOne(i)
		}
	} else {
		g, _ := errgroup.WithContext(ctx)
		workers := runtime.GOMAXPROCS(0)
		chunk := (len(candidates) + workers - 1) / workers
		for start := 0; start < len(candidates); start += chunk {
			end := start + chunk
			if end > len(candidates) {
				end = len(candidates)
			}
			start, end := start, end
			g.Go(func() error {
				for i := start; i < end; i++ {
					scoreOne(i)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	out := make([]domain.MatchCandidate, 0, len(candidates))
	for i, ok := range accepted {
		if ok {
			out = append(out, results[i])
		}
	}
	return out
}

// classify places a composite score into the match tiers: below the
// fuzzy-acceptance threshold it is discarded, at or above the auto-apply
// threshold it is applied without confirmation, in between it is a
// suggestion. Both boundaries are inclusive.
func classify(score float64, th domain.Thresholds) (keep, auto bool) {
	if score < th.FuzzyMin {
		return false, false
	}
	return true, score >= th.AutoApply
}

// rankCandidates orders by similarity, then quality (unrated last), then
// usage, with the entry id as a stable final tiebreak so ranking is
// deterministic regardless of scoring order.
func rankCandidates(cands []domain.MatchCandidate) {
	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		qa, ra := qualityOrZero(a.QualityScore)
		qb, rb := qualityOrZero(b.QualityScore)
		if ra != rb {
			return ra // rated before unrated
		}
		if qa != qb {
			return qa > qb
		}
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		return a.EntryID < b.EntryID
	})
}

func qualityOrZero(q *float64) (float64, bool) {
	if q == nil {
		return 0, false
	}
	return *q, true
}

func exactCandidate(e *domain.TmEntry) domain.MatchCandidate {
	return domain.MatchCandidate{
		EntryID:       e.ID,
		SourceText:    e.SourceText,
		TargetText:    e.TargetText,
		TargetLang:    e.TargetLang,
		DomainContext: e.DomainContext,
		QualityScore:  e.QualityScore,
		UsageCount:    e.UsageCount,
		Similarity:    1.0,
		Kind:          domain.MatchExact,
		Breakdown: domain.ScoreBreakdown{
			EditDistanceScore:     1.0,
			PrefixSimilarityScore: 1.0,
			TokenOverlapScore:     1.0,
		},
		AutoApplied: true,
	}
}

// Apply records the caller's decision to reuse a match: the entry's usage
// count is incremented atomically, its cache key refreshed, and an
// append-only trace written linking the consuming translation to the entry.
func (s *Service) Apply(ctx context.Context, entryID int64, similarityScore float64, kind domain.MatchKind, consumerRef string) error {
	e, err := s.d.Entries.Get(ctx, entryID)
	if err != nil {
		return err
	}
	// Invalidate before the write is acknowledged so no reader can observe
	// the stale cached copy.
	s.d.Cache.Invalidate(e.SourceHash, e.TargetLang)

	now := time.Now()
	if err := s.d.Entries.UpdateUsage(ctx, entryID, 1, now); err != nil {
		return err
	}
	if err := s.d.Traces.Append(ctx, &domain.UsageTrace{
		EntryID:     entryID,
		Similarity:  similarityScore,
		MatchKind:   kind,
		ConsumerRef: consumerRef,
		AppliedAt:   now,
	}); err != nil {
		// The usage update already landed; a missing trace should not fail
		// the application of a match.
		s.d.Log.Warn("usage trace append failed", "entry_id", entryID, "error", err)
	}
	return nil
}

// ConfirmArgs describes an accepted translation to upsert into the store.
type ConfirmArgs struct {
	SourceText     string
	SourceLang     string
	TargetLang     string
	TargetText     string
	Context        string
	ProviderID     string
	Quality        *float64 // nil picks the policy default
	HumanConfirmed bool
}

// Confirm upserts an accepted translation. Human-confirmed entries get
// quality 1.0; machine output gets the configured default unless the caller
// supplies a rating. Re-confirming the same triple merges into the existing
// row.
func (s *Service) Confirm(ctx context.Context, a ConfirmArgs) (*domain.TmEntry, error) {
	if normalize.Normalize(a.SourceText) == "" {
		return nil, &domain.ValidationError{Field: "source_text", Message: "empty after normalization"}
	}
	if strings.TrimSpace(a.TargetText) == "" {
		return nil, &domain.ValidationError{Field: "target_text", Message: "must not be empty"}
	}
	if a.SourceLang == "" || a.TargetLang == "" {
		return nil, &domain.ValidationError{Field: "language", Message: "source and target languages are required"}
	}

	q := a.Quality
	if a.HumanConfirmed {
		one := 1.0
		q = &one
	} else if q == nil {
		def := s.machineQuality
		q = &def
	}
	if *q < 0 || *q > 1 {
		return nil, &domain.ValidationError{Field: "quality", Message: "must be within [0,1]"}
	}

	hash := normalize.HashText(a.SourceText)
	// Cache invalidation happens before the gateway write completes.
	s.d.Cache.Invalidate(hash, a.TargetLang)

	stored, err := s.d.Entries.InsertOrMerge(ctx, &domain.TmEntry{
		SourceText:    a.SourceText,
		SourceHash:    hash,
		SourceLang:    a.SourceLang,
		TargetLang:    a.TargetLang,
		TargetText:    a.TargetText,
		DomainContext: a.Context,
		ProviderID:    a.ProviderID,
		QualityScore:  q,
	})
	if err != nil {
		return nil, err
	}
	s.d.Cache.Put(hash, a.TargetLang, stored)
	return stored, nil
}
