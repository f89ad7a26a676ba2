// Package translator orchestrates the memory-first translation flow: an
// acceptable stored match wins, the machine provider is the fallback, and
// confirmed fallbacks feed the memory for next time.
package translator

import (
	"context"
	"errors"
	"log/slog"

	"tmengine/internal/domain"
	"tmengine/internal/ports"
	"tmengine/internal/usecase/matcher"
)

// Origin says where a translation came from.
type Origin string

const (
	OriginMemory  Origin = "memory"
	OriginMachine Origin = "machine"
)

type Deps struct {
	Matcher  *matcher.Service
	Provider ports.Provider
	Log      *slog.Logger
}

type Service struct {
	d Deps
}

func New(d Deps) *Service {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Service{d: d}
}

type TranslateArgs struct {
	SourceText  string
	SourceLang  string
	TargetLang  string
	Context     string
	Model       string
	ConsumerRef string // recorded on the usage trace of an applied match
}

// Result is one resolved translation plus the near misses that were not
// good enough to apply automatically.
type Result struct {
	Translation string
	Origin      Origin
	EntryID     int64
	Similarity  float64
	Suggestions []domain.MatchCandidate
}

// Translate resolves one segment. An auto-applicable memory match is used
// and its usage recorded; anything less falls through to the provider, and
// the provider's output is stored as a machine-quality entry. A broken
// store degrades to the provider path instead of failing the request.
func (s *Service) Translate(ctx context.Context, a TranslateArgs) (*Result, error) {
	set, err := s.d.Matcher.FindMatches(ctx, matcher.Query{
		SourceText: a.SourceText,
		SourceLang: a.SourceLang,
		TargetLang: a.TargetLang,
		Context:    a.Context,
	})
	var suggestions []domain.MatchCandidate
	switch {
	case err == nil:
		if set.Best != nil {
			if err := s.d.Matcher.Apply(ctx, set.Best.EntryID, set.Best.Similarity, set.Best.Kind, a.ConsumerRef); err != nil {
				s.d.Log.Warn("match applied but usage not recorded",
					"entry_id", set.Best.EntryID, "error", err)
			}
			return &Result{
				Translation: set.Best.TargetText,
				Origin:      OriginMemory,
				EntryID:     set.Best.EntryID,
				Similarity:  set.Best.Similarity,
				Suggestions: set.Suggestions,
			}, nil
		}
		suggestions = set.Suggestions
	case isValidation(err):
		return nil, err
	default:
		// Store trouble must not block translation entirely.
		s.d.Log.Warn("memory lookup failed, falling back to provider", "error", err)
	}

	if s.d.Provider == nil {
		return nil, &domain.NotFoundError{Entity: "acceptable match"}
	}

	out, err := s.d.Provider.Translate(ctx, ports.TranslateParams{
		SourceText: a.SourceText,
		SourceLang: a.SourceLang,
		TargetLang: a.TargetLang,
		Context:    a.Context,
		Model:      a.Model,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Translation: out.Translation,
		Origin:      OriginMachine,
		Suggestions: suggestions,
	}
	entry, err := s.d.Matcher.Confirm(ctx, matcher.ConfirmArgs{
		SourceText: a.SourceText,
		SourceLang: a.SourceLang,
		TargetLang: a.TargetLang,
		TargetText: out.Translation,
		Context:    a.Context,
		ProviderID: a.Model,
	})
	if err != nil {
		// The user still gets their translation; it just is not remembered.
		s.d.Log.Warn("machine translation not stored", "error", err)
		return res, nil
	}
	res.EntryID = entry.ID
	return res, nil
}

func isValidation(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr)
}
