package factcheck

import (
	"strings"
	"unicode"
)

// QuestionSimilarity scores two questions in [0,1] by Jaccard overlap of
// character bigrams after dropping case, spaces and punctuation.
// Character bigrams work for CJK text, which has no word boundaries.
func QuestionSimilarity(a, b string) float64 {
	sa, sb := bigrams(a), bigrams(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	shared := 0
	for g := range sa {
		if _, ok := sb[g]; ok {
			shared++
		}
	}
	union := len(sa) + len(sb) - shared
	return float64(shared) / float64(union)
}

// IsDuplicateQuestion reports whether q repeats any of asked at or above threshold
func IsDuplicateQuestion(q string, asked []string, threshold float64) bool {
	for _, prev := range asked {
		if QuestionSimilarity(q, prev) >= threshold {
			return true
		}
	}
	return false
}

func bigrams(s string) map[string]struct{} {
	runes := make([]rune, 0, len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			runes = append(runes, r)
		}
	}

	set := make(map[string]struct{})
	if len(runes) == 1 {
		set[string(runes)] = struct{}{}
		return set
	}
	for i := 0; i+1 < len(runes); i++ {
		set[string(runes[i:i+2])] = struct{}{}
	}
	return set
}
