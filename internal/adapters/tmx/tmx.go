// Package tmx implements the TMX 1.4 exchange format with the
// vendor-namespaced properties this engine round-trips: quality score,
// usage count and game context.
package tmx

// Vendor property names carried on each translation unit.
const (
	PropQualityScore = "x-quality-score"
	PropUsageCount   = "x-usage-count"
	PropGameContext  = "x-game-context"
)

const (
	tmxVersion          = "1.4"
	creationTool        = "tmengine"
	creationToolVersion = "1.0"
)

// Unit is one parsed translation unit: exactly two language-tagged segments
// plus the vendor metadata.
type Unit struct {
	SourceLang string
	SourceText string
	TargetLang string
	TargetText string
	Context    string
	Quality    *float64 // nil when the unit carries no rating
	UsageCount int64    // 0 when absent
}
