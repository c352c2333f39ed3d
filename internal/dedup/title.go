package dedup

import (
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// DefaultTitleThreshold is the similarity score above which two titles are
// considered the same paper, provided the first-author surnames also match.
const DefaultTitleThreshold = 0.92

// NormalizeTitle normalizes a paper title for comparison:
//   - Converts to lowercase
//   - Removes all non-letter, non-digit, non-space characters
//   - Collapses whitespace runs to a single space
//   - Trims leading and trailing whitespace
func NormalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(title))
	prevSpace := false

	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r):
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		default:
			// Punctuation separates tokens the same way whitespace does, so
			// "CRISPR-Cas9" and "CRISPR Cas9" normalize identically.
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

// TitleSimilarity computes a similarity score between two titles in [0, 1].
// Both titles are normalized, tokenized, and compared as sorted token sets
// using Levenshtein distance. Sorting the tokens makes the score robust to
// word reordering such as subtitle swaps.
func TitleSimilarity(a, b string) float64 {
	normA := sortedTokenString(NormalizeTitle(a))
	normB := sortedTokenString(NormalizeTitle(b))

	if normA == "" || normB == "" {
		return 0.0
	}
	if normA == normB {
		return 1.0
	}

	dist := levenshtein.ComputeDistance(normA, normB)
	maxLen := len([]rune(normA))
	if l := len([]rune(normB)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0.0
	}

	return 1.0 - float64(dist)/float64(maxLen)
}

// TitlesMatch reports whether two titles are similar enough to be considered
// the same paper at the given threshold. A threshold <= 0 uses
// DefaultTitleThreshold.
func TitlesMatch(a, b string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultTitleThreshold
	}
	return TitleSimilarity(a, b) >= threshold
}

// sortedTokenString splits a normalized title into tokens, sorts them, and
// joins them back with single spaces.
func sortedTokenString(s string) string {
	if s == "" {
		return ""
	}
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
