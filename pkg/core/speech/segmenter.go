package speech

import (
	"sort"

	"github.com/vango-go/livetutor/pkg/core/align"
)

// minSegmentSamples is the shortest segment worth caching (about 4ms at
// 24kHz).
const minSegmentSamples = 100

// Segmenter accumulates model audio and the streamed transcript, recording a
// split point at the current sample count whenever a new boundary appears.
// Language-code boundaries and newline boundaries are tracked independently;
// the track with more boundaries wins at finalization.
type Segmenter struct {
	audio      []int16
	transcript string

	langPoints []int
	nlPoints   []int
	langCount  int
	nlCount    int
}

// NewSegmenter returns an empty segmenter.
func NewSegmenter() *Segmenter { return &Segmenter{} }

// AddAudio appends decoded samples.
func (s *Segmenter) AddAudio(samples []int16) {
	s.audio = append(s.audio, samples...)
}

// AddTranscript appends transcript text and reports which boundary kinds it
// introduced.
func (s *Segmenter) AddTranscript(delta string) (langBoundary, nlBoundary bool) {
	s.transcript += delta
	total := len(s.audio)

	if n := align.CountLanguageCodes(s.transcript); n > s.langCount {
		for i := s.langCount; i < n; i++ {
			s.langPoints = append(s.langPoints, total)
		}
		s.langCount = n
		langBoundary = true
	}
	if n := align.CountNewlines(s.transcript); n > s.nlCount {
		for i := s.nlCount; i < n; i++ {
			s.nlPoints = append(s.nlPoints, total)
		}
		s.nlCount = n
		nlBoundary = true
	}
	return langBoundary, nlBoundary
}

// Samples returns the accumulated sample count.
func (s *Segmenter) Samples() int { return len(s.audio) }

// Audio returns all accumulated samples.
func (s *Segmenter) Audio() []int16 { return s.audio }

// Transcript returns the accumulated transcript.
func (s *Segmenter) Transcript() string { return s.transcript }

// SplitCounts reports the number of recorded language-code and newline
// split points.
func (s *Segmenter) SplitCounts() (lang, newline int) {
	return len(s.langPoints), len(s.nlPoints)
}

// Segments slices the audio at the winning split track. Every split point
// after the first sample yields a segment, empty ones included, so segment i
// keeps lining up with transcript line i. Points at sample 0 come from
// boundaries seen before any audio and match the leading empty lines that
// align.Split drops. The tail after the last point is included only when
// trailing is set (the model finished its turn).
func (s *Segmenter) Segments(trailing bool) ([][]int16, align.SplitMode) {
	mode := align.SplitLanguageCode
	if len(s.nlPoints) > len(s.langPoints) {
		mode = align.SplitNewline
	}
	return s.SegmentsFor(mode, trailing), mode
}

// SegmentsFor slices the audio at one split track regardless of which found
// more boundaries.
func (s *Segmenter) SegmentsFor(mode align.SplitMode, trailing bool) [][]int16 {
	points := s.langPoints
	if mode == align.SplitNewline {
		points = s.nlPoints
	}

	total := len(s.audio)
	var out [][]int16
	if len(points) == 0 || total == 0 {
		if trailing && total > 0 {
			out = append(out, s.audio)
		}
		return out
	}

	sorted := make([]int, 0, len(points))
	for _, p := range points {
		if p <= total {
			sorted = append(sorted, p)
		}
	}
	sort.Ints(sorted)

	start := 0
	for _, p := range sorted {
		if p == 0 {
			continue
		}
		out = append(out, s.audio[start:p])
		start = p
	}
	if trailing && start < total {
		out = append(out, s.audio[start:])
	}
	return out
}

// Reset discards everything.
func (s *Segmenter) Reset() { *s = Segmenter{} }
