// Package similarity computes composite similarity scores between
// normalized text segments using three independent algorithms plus a
// contextual boost.
package similarity

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hbollon/go-edlib"

	"tmengine/internal/domain"
)

// Context boost values, applied after the weighted sum and clamped so the
// composite never exceeds 1.0.
const (
	boostExactContext      = 0.05
	boostFirstTokenContext = 0.03
)

// Score compares two normalized strings and returns the composite similarity
// in [0,1] together with its component breakdown. Weights must already be
// validated by the caller; the scorer does not re-normalize them.
//
// The edit-distance and token-overlap components are symmetric in a and b.
// The prefix component (Jaro-Winkler) carries the algorithm's inherent
// asymmetry tolerance for transposed characters, which is accepted.
func Score(a, b, contextA, contextB string, w domain.ScoreWeights) (float64, domain.ScoreBreakdown) {
	bd := domain.ScoreBreakdown{
		EditDistanceScore:     editDistanceScore(a, b),
		PrefixSimilarityScore: prefixSimilarityScore(a, b),
		TokenOverlapScore:     tokenOverlapScore(a, b),
		ContextBoost:          contextBoost(contextA, contextB),
	}
	composite := w.EditDistance*bd.EditDistanceScore +
		w.Prefix*bd.PrefixSimilarityScore +
		w.TokenOverlap*bd.TokenOverlapScore
	composite = math.Min(composite+bd.ContextBoost, 1.0)
	return composite, bd
}

// editDistanceScore converts the classic single-character-edit distance into
// a similarity via 1 - distance/max(len). Both strings empty scores 1.0.
func editDistanceScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := edlib.LevenshteinDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// prefixSimilarityScore rewards common leading characters and tolerates
// adjacent-character transpositions more than generic edit distance.
func prefixSimilarityScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	score, err := edlib.StringsSimilarity(a, b, edlib.JaroWinkler)
	if err != nil {
		return 0.0
	}
	return float64(score)
}

// tokenOverlapScore is the Jaccard similarity over the whitespace-delimited
// token sets of the two strings. 0/0 is defined as 0, never NaN.
func tokenOverlapScore(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}
	setA := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		setB[t] = struct{}{}
	}
	var intersection int
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// contextBoost returns +0.05 for an exact non-empty context match, +0.03
// when only the first context tokens agree, else 0.
func contextBoost(contextA, contextB string) float64 {
	if contextA == "" || contextB == "" {
		return 0.0
	}
	if contextA == contextB {
		return boostExactContext
	}
	fa := strings.Fields(contextA)
	fb := strings.Fields(contextB)
	if len(fa) > 0 && len(fb) > 0 && fa[0] == fb[0] {
		return boostFirstTokenContext
	}
	return 0.0
}
