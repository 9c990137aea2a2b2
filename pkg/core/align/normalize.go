package align

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	languageCodePattern = regexp.MustCompile(`\[[a-z]{2}-[A-Z]{2}\]`)
	emotionTagPattern   = regexp.MustCompile(`(?i)\[(laughing|chuckles|excited|happy|thoughtful|curious|sad|angry|surprised|nervous|confident|whispers|sighs)\]`)
	nonWordPattern      = regexp.MustCompile(`[^\p{L}\p{N}\s]`)
	spacePattern        = regexp.MustCompile(`\s+`)
	newlineRunPattern   = regexp.MustCompile(`\n+`)
)

// Normalize prepares text for comparison: markers and punctuation removed,
// whitespace collapsed, lowercased.
func Normalize(text string) string {
	text = languageCodePattern.ReplaceAllString(text, "")
	text = emotionTagPattern.ReplaceAllString(text, "")
	text = nonWordPattern.ReplaceAllString(text, "")
	text = spacePattern.ReplaceAllString(text, " ")
	return strings.ToLower(strings.TrimSpace(text))
}

// StripLanguageCodes removes only the language-code markers.
func StripLanguageCodes(text string) string {
	return languageCodePattern.ReplaceAllString(text, "")
}

// ContentLength is the rune count of the normalized text.
func ContentLength(text string) int {
	return utf8.RuneCountInString(Normalize(text))
}

// Similarity scores two texts in [0, 1]. Identical normalized text scores 1,
// containment scores the length ratio, anything else scores the Dice
// coefficient of their word sets (words longer than two runes).
func Similarity(a, b string) float64 {
	aNorm := Normalize(a)
	bNorm := Normalize(b)

	if aNorm == bNorm {
		return 1
	}
	if aNorm == "" || bNorm == "" {
		return 0
	}

	if strings.Contains(aNorm, bNorm) || strings.Contains(bNorm, aNorm) {
		aLen := utf8.RuneCountInString(aNorm)
		bLen := utf8.RuneCountInString(bNorm)
		if aLen < bLen {
			return float64(aLen) / float64(bLen)
		}
		return float64(bLen) / float64(aLen)
	}

	aWords := wordSet(aNorm)
	bWords := wordSet(bNorm)
	if len(aWords) == 0 || len(bWords) == 0 {
		return 0
	}
	matches := 0
	for w := range aWords {
		if _, ok := bWords[w]; ok {
			matches++
		}
	}
	return float64(2*matches) / float64(len(aWords)+len(bWords))
}

func wordSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Split(normalized, " ") {
		if utf8.RuneCountInString(w) > 2 {
			set[w] = struct{}{}
		}
	}
	return set
}
