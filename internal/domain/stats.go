package domain

// LanguagePairCount is the entry count for one source→target language pair.
type LanguagePairCount struct {
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Entries    int64  `json:"entries"`
}

// AggregateStats is a derived, read-only projection computed on demand from
// the persistence gateway. Never independently persisted.
type AggregateStats struct {
	TotalEntries         int64               `json:"total_entries"`
	LanguagePairs        []LanguagePairCount `json:"language_pairs"`
	AverageQuality       float64             `json:"average_quality"` // over rated entries only
	TotalUsage           int64               `json:"total_usage"`
	EstimatedTokensSaved int64               `json:"estimated_tokens_saved"`
	ReuseRate            float64             `json:"reuse_rate"`
}
