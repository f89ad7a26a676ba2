// Package normalize canonicalizes text segments so that matching is
// insensitive to incidental formatting differences. Two inputs that
// normalize identically hash identically.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Structural placeholders are preserved verbatim through normalization so
// that matching does not spuriously ignore them: braced variables ({0},
// {name}), percent-style format verbs (%s, %1d, %.2f) and markup tags
// (<b>, </b>) common in game localization files.
var placeholderRE = regexp.MustCompile(`\{[^{}]+\}|%[0-9]*\.?[0-9]*[a-zA-Z]|%%|<[^<>]+>`)

// Normalize lowercases, applies Unicode canonical decomposition, collapses
// whitespace runs to single spaces and trims. Deterministic, pure, total.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	masked, restore := maskPlaceholders(text)
	s := norm.NFD.String(masked)
	s = strings.ToLower(s)
	s = strings.Join(strings.Fields(s), " ")
	return restore(s)
}

// HashText returns the SHA-256 hex digest of the normalized text. This is
// the content hash used for exact matching and cache keys.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// Tokens splits a normalized string into its whitespace-delimited tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

// maskPlaceholders substitutes placeholders with stable sentinel tokens and
// returns a function restoring the originals. Sentinels contain no
// whitespace and no uppercase letters, so folding leaves them intact.
func maskPlaceholders(s string) (string, func(string) string) {
	found := placeholderRE.FindAllString(s, -1)
	if len(found) == 0 {
		return s, func(out string) string { return out }
	}
	masked := s
	tokens := make([]string, len(found))
	for i, ph := range found {
		tok := fmt.Sprintf("\x01%d\x01", i)
		tokens[i] = tok
		masked = strings.Replace(masked, ph, tok, 1)
	}
	restore := func(out string) string {
		for i := len(found) - 1; i >= 0; i-- {
			out = strings.Replace(out, tokens[i], found[i], 1)
		}
		return out
	}
	return masked, restore
}
