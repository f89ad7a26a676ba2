package domain

import "time"

// TmEntry is one stored reusable source→target translation pair.
// The triple (SourceHash, TargetLang, DomainContext) is unique; inserting a
// duplicate merges into the existing row instead of creating a new one.
type TmEntry struct {
	ID            int64     `json:"id"`
	SourceText    string    `json:"source_text"`
	SourceHash    string    `json:"source_hash"`
	SourceLang    string    `json:"source_lang"`
	TargetLang    string    `json:"target_lang"`
	TargetText    string    `json:"target_text"`
	DomainContext string    `json:"domain_context"` // empty means no context
	ProviderID    string    `json:"provider_id"`    // origin of the translation, empty if unknown
	QualityScore  *float64  `json:"quality_score"`  // nil means unrated
	UsageCount    int64     `json:"usage_count"`
	CreatedAt     time.Time `json:"created_at"`
	LastUsedAt    time.Time `json:"last_used_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Quality returns the quality score, or 0 and false when the entry is unrated.
func (e *TmEntry) Quality() (float64, bool) {
	if e.QualityScore == nil {
		return 0, false
	}
	return *e.QualityScore, true
}

// UsageTrace links a consuming translation to the TM entry it reused and the
// confidence at the time of application. Append-only, never mutated.
type UsageTrace struct {
	ID          int64     `json:"id"`
	EntryID     int64     `json:"entry_id"`
	Similarity  float64   `json:"similarity"`
	MatchKind   MatchKind `json:"match_kind"`
	ConsumerRef string    `json:"consumer_ref"`
	AppliedAt   time.Time `json:"applied_at"`
}
