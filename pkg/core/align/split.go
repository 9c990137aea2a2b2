package align

import (
	"fmt"
	"strings"
)

// SplitMode selects which boundaries delimit transcript segments.
type SplitMode int

const (
	// SplitLanguageCode starts a new segment at every "[xx-XX]" marker.
	SplitLanguageCode SplitMode = iota
	// SplitNewline starts a new segment at every newline. Language-code
	// markers count as newlines too.
	SplitNewline
)

func (m SplitMode) String() string {
	switch m {
	case SplitLanguageCode:
		return "language_code"
	case SplitNewline:
		return "newline"
	default:
		return "unknown"
	}
}

// ParseSplitMode accepts the names produced by String.
func ParseSplitMode(s string) (SplitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "language_code", "langcode", "lang":
		return SplitLanguageCode, nil
	case "newline", "nl":
		return SplitNewline, nil
	default:
		return 0, fmt.Errorf("unknown split mode %q", s)
	}
}

// Segment is one transcript line believed to voice the audio segment with the
// same Index.
type Segment struct {
	Index int
	Text  string
}

// Split cuts a cumulative transcript into per-segment candidate text. Leading
// empty lines are dropped: a boundary that arrives before any speech does not
// produce an audio segment.
func Split(transcript string, mode SplitMode) []Segment {
	lines := splitLines(transcript, mode)

	start := 0
	for start < len(lines) && lines[start] == "" {
		start++
	}
	lines = lines[start:]

	out := make([]Segment, len(lines))
	for i, l := range lines {
		out[i] = Segment{Index: i, Text: l}
	}
	return out
}

func splitLines(transcript string, mode SplitMode) []string {
	text := strings.ReplaceAll(transcript, "\r\n", "\n")

	var raw []string
	switch mode {
	case SplitLanguageCode:
		text = languageCodePattern.ReplaceAllString(text, "\x00")
		raw = strings.Split(text, "\x00")
		for i, r := range raw {
			raw[i] = strings.Join(strings.Fields(r), " ")
		}
	default:
		text = languageCodePattern.ReplaceAllString(text, "\n")
		text = newlineRunPattern.ReplaceAllString(text, "\n")
		raw = strings.Split(text, "\n")
		for i, r := range raw {
			raw[i] = strings.TrimSpace(r)
		}
	}
	return raw
}

// CountLanguageCodes returns how many language-code markers the transcript
// holds so far.
func CountLanguageCodes(transcript string) int {
	return len(languageCodePattern.FindAllStringIndex(transcript, -1))
}

// CountNewlines returns the number of line boundaries in the transcript once
// markers are treated as newlines and repeated newlines are collapsed.
func CountNewlines(transcript string) int {
	text := strings.ReplaceAll(transcript, "\r\n", "\n")
	text = languageCodePattern.ReplaceAllString(text, "\n")
	text = newlineRunPattern.ReplaceAllString(text, "\n")
	return strings.Count(text, "\n")
}

// ContentLines returns the transcript lines that carry spoken text.
func ContentLines(transcript string, mode SplitMode, minChars int) []string {
	var out []string
	for _, l := range splitLines(transcript, mode) {
		if ContentLength(l) >= minChars {
			out = append(out, l)
		}
	}
	return out
}
