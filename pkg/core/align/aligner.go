package align

import (
	"log/slog"
	"strings"
)

// Unmatched marks an audio segment that must not be cached.
const Unmatched = -1

const (
	// DefaultSimilarityThreshold is the lowest score accepted as a match.
	DefaultSimilarityThreshold = 0.30
	// DefaultMinContentChars is the shortest normalized text treated as
	// spoken content.
	DefaultMinContentChars = 3
)

// Map holds, for each audio segment index, the original line index it voices
// or Unmatched.
type Map []int

// Matched returns how many segments carry a line index.
func (m Map) Matched() int {
	n := 0
	for _, v := range m {
		if v != Unmatched {
			n++
		}
	}
	return n
}

// Config tunes the heuristics. Both thresholds were tuned against real
// transcripts; changing them needs re-validation on recorded sessions.
type Config struct {
	SimilarityThreshold float64
	MinContentChars     int
	// GapFill enables positional recovery of segments whose transcript carried
	// no usable text.
	GapFill bool
}

// DefaultConfig returns the tuned thresholds with gap-fill enabled.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: DefaultSimilarityThreshold,
		MinContentChars:     DefaultMinContentChars,
		GapFill:             true,
	}
}

// Aligner builds alignment maps. It is stateless and safe for concurrent use.
type Aligner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Aligner. Zero thresholds fall back to the defaults.
func New(cfg Config, logger *slog.Logger) *Aligner {
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.MinContentChars <= 0 {
		cfg.MinContentChars = DefaultMinContentChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aligner{cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (a *Aligner) Config() Config {
	return a.cfg
}

// Map assigns each of segmentCount audio segments to at most one original
// line. Segment i is compared against transcript line i only.
func (a *Aligner) Map(originals []string, transcript string, segmentCount int, mode SplitMode) Map {
	if segmentCount <= 0 {
		return Map{}
	}
	segments := Split(transcript, mode)
	a.logger.Debug("align: mapping",
		"segments", segmentCount,
		"transcript_lines", len(segments),
		"originals", len(originals),
		"mode", mode.String(),
	)

	result := make(Map, segmentCount)
	blank := make([]bool, segmentCount)
	used := make([]bool, len(originals))

	for i := 0; i < segmentCount; i++ {
		text := ""
		if i < len(segments) {
			text = segments[i].Text
		}
		blank[i] = strings.TrimSpace(StripLanguageCodes(text)) == ""

		if ContentLength(text) < a.cfg.MinContentChars {
			result[i] = Unmatched
			a.logger.Debug("align: skip empty segment", "segment", i, "text", text)
			continue
		}

		best, bestScore := Unmatched, 0.0
		for j, orig := range originals {
			if used[j] {
				continue
			}
			// Strictly greater keeps the first unused line on ties.
			if score := Similarity(text, orig); score > bestScore {
				best, bestScore = j, score
			}
		}

		if best != Unmatched && bestScore >= a.cfg.SimilarityThreshold {
			used[best] = true
			result[i] = best
			a.logger.Debug("align: matched", "segment", i, "line", best, "score", bestScore)
			continue
		}
		result[i] = Unmatched
		a.logger.Debug("align: no match", "segment", i, "best_score", bestScore, "text", truncate(text, 30))
	}

	if a.cfg.GapFill {
		gapFill(result, blank, len(originals))
	}
	return result
}

// gapFill assigns unmatched segments positionally between verified anchors.
// It only runs when the anchors are strictly increasing, and only fills a gap
// whose unmatched segment count equals its unused line count. Segments whose
// transcript was blank (markers and whitespace only) are never assigned.
func gapFill(result Map, blank []bool, lineCount int) {
	type anchor struct{ seg, line int }

	anchors := []anchor{{seg: -1, line: -1}}
	for i, line := range result {
		if line == Unmatched {
			continue
		}
		if line <= anchors[len(anchors)-1].line {
			return
		}
		anchors = append(anchors, anchor{seg: i, line: line})
	}
	anchors = append(anchors, anchor{seg: len(result), line: lineCount})

	for k := 0; k+1 < len(anchors); k++ {
		lo, hi := anchors[k], anchors[k+1]
		segCount := hi.seg - lo.seg - 1
		lineGap := hi.line - lo.line - 1
		if segCount <= 0 || segCount != lineGap {
			continue
		}
		for off := 0; off < segCount; off++ {
			seg := lo.seg + 1 + off
			if blank[seg] {
				continue
			}
			result[seg] = lo.line + 1 + off
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
