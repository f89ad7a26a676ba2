package ports

import "tmengine/internal/domain"

// MatchCache is the exact-match acceleration layer keyed by
// (source hash, target language). It holds no entries the gateway does not
// also hold and has no independent durability. A miss is never an error.
type MatchCache interface {
	Get(hash, targetLang string) (*domain.TmEntry, bool)
	Put(hash, targetLang string, e *domain.TmEntry)
	Invalidate(hash, targetLang string)
	Clear()
}
