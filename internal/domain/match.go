package domain

import "math"

type MatchKind string

const (
	MatchExact MatchKind = "exact"
	MatchFuzzy MatchKind = "fuzzy"
)

// ScoreBreakdown carries the per-component similarity scores of a single
// comparison. Transient, computed per query, never persisted.
type ScoreBreakdown struct {
	EditDistanceScore     float64 `json:"edit_distance_score"`
	PrefixSimilarityScore float64 `json:"prefix_similarity_score"`
	TokenOverlapScore     float64 `json:"token_overlap_score"`
	ContextBoost          float64 `json:"context_boost"`
}

// ScoreWeights configures the weighted sum of the three similarity
// components. Weights must sum to 1.0; the scorer does not re-normalize.
type ScoreWeights struct {
	EditDistance float64 `json:"edit_distance" yaml:"edit_distance"`
	Prefix       float64 `json:"prefix" yaml:"prefix"`
	TokenOverlap float64 `json:"token_overlap" yaml:"token_overlap"`
}

// DefaultWeights returns the default 0.4/0.3/0.3 weighting.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{EditDistance: 0.4, Prefix: 0.3, TokenOverlap: 0.3}
}

const weightSumEpsilon = 1e-9

func (w ScoreWeights) Validate() error {
	if w.EditDistance < 0 || w.Prefix < 0 || w.TokenOverlap < 0 {
		return &ValidationError{Field: "weights", Message: "weights must be non-negative"}
	}
	if math.Abs(w.EditDistance+w.Prefix+w.TokenOverlap-1.0) > weightSumEpsilon {
		return &ValidationError{Field: "weights", Message: "weights must sum to 1.0"}
	}
	return nil
}

// Thresholds controls candidate filtering and match classification.
type Thresholds struct {
	// FuzzyMin is the minimum composite score for a candidate to be returned.
	FuzzyMin float64 `json:"fuzzy_min" yaml:"fuzzy_min"`
	// AutoApply is the minimum composite score for automatic application.
	AutoApply float64 `json:"auto_apply" yaml:"auto_apply"`
	// MaxCandidates caps the candidate set retrieved from the store.
	MaxCandidates int `json:"max_candidates" yaml:"max_candidates"`
	// TopN caps how many ranked matches are returned.
	TopN int `json:"top_n" yaml:"top_n"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{FuzzyMin: 0.85, AutoApply: 0.95, MaxCandidates: 1000, TopN: 5}
}

func (t Thresholds) Validate() error {
	if t.FuzzyMin < 0 || t.FuzzyMin > 1 || t.AutoApply < 0 || t.AutoApply > 1 {
		return &ValidationError{Field: "thresholds", Message: "thresholds must be within [0,1]"}
	}
	if t.AutoApply < t.FuzzyMin {
		return &ValidationError{Field: "thresholds", Message: "auto_apply must be >= fuzzy_min"}
	}
	return nil
}

// MatchCandidate is one scored lookup result referencing a stored entry.
type MatchCandidate struct {
	EntryID       int64          `json:"entry_id"`
	SourceText    string         `json:"source_text"`
	TargetText    string         `json:"target_text"`
	TargetLang    string         `json:"target_lang"`
	DomainContext string         `json:"domain_context"`
	QualityScore  *float64       `json:"quality_score"`
	UsageCount    int64          `json:"usage_count"`
	Similarity    float64        `json:"similarity"`
	Kind          MatchKind      `json:"kind"`
	Breakdown     ScoreBreakdown `json:"breakdown"`
	AutoApplied   bool           `json:"auto_applied"`
}
