package speech

import (
	"sort"

	"github.com/vango-go/livetutor/pkg/core/align"
)

const (
	// completedMatchThreshold is the similarity a completed transcript
	// segment needs to move the highlight past a line.
	completedMatchThreshold = 0.3
	// ongoingMinChars is the normalized length of the ongoing segment before
	// continuous correction kicks in.
	ongoingMinChars = 20
	// ongoingMismatch and ongoingMatch bound continuous correction: the
	// current line must score below the first and another line at least the
	// second.
	ongoingMismatch = 0.1
	ongoingMatch    = 0.5
)

// highlighter tracks which line is being spoken from the streamed
// transcript. It is not safe for concurrent use.
type highlighter struct {
	lines         []string
	current       int
	lastScheduled int
	started       bool
}

func newHighlighter(lines []string) *highlighter {
	return &highlighter{lines: lines, lastScheduled: -1}
}

// start is called on the first audio chunk and returns the line to mark at
// sample 0.
func (h *highlighter) start() (int, bool) {
	if h.started {
		return 0, false
	}
	h.started = true
	if h.current < 0 || h.current >= len(h.lines) {
		return 0, false
	}
	h.lastScheduled = h.current
	return h.current, true
}

// boundary handles a new transcript boundary. It matches the most recent
// completed segment with content against every line; the line after the best
// match becomes current. It returns a line to schedule when that changed the
// highlight.
func (h *highlighter) boundary(transcript string) (int, bool) {
	if !h.started {
		return 0, false
	}
	segs := align.Split(transcript, align.SplitLanguageCode)
	completed := ""
	for i := len(segs) - 2; i >= 0; i-- {
		if align.ContentLength(segs[i].Text) >= align.DefaultMinContentChars {
			completed = segs[i].Text
			break
		}
	}
	if completed != "" {
		if best, score := h.best(completed); best >= 0 && score >= completedMatchThreshold {
			h.current = min(best+1, len(h.lines)-1)
		}
	}
	if h.current != h.lastScheduled && h.current >= 0 && h.current < len(h.lines) {
		h.lastScheduled = h.current
		return h.current, true
	}
	return 0, false
}

// ongoing checks the segment being spoken right now. When it clearly belongs
// to another line the highlight jumps there immediately.
func (h *highlighter) ongoing(transcript string) (int, bool) {
	if !h.started || h.current < 0 || h.current >= len(h.lines) {
		return 0, false
	}
	segs := align.Split(transcript, align.SplitLanguageCode)
	if len(segs) == 0 {
		return 0, false
	}
	text := segs[len(segs)-1].Text
	if align.ContentLength(text) < ongoingMinChars {
		return 0, false
	}
	if align.Similarity(text, h.lines[h.current]) >= ongoingMismatch {
		return 0, false
	}
	best, score := h.best(text)
	if best < 0 || score < ongoingMatch || best == h.current {
		return 0, false
	}
	h.current = best
	h.lastScheduled = best
	return best, true
}

func (h *highlighter) best(text string) (int, float64) {
	best, bestScore := -1, 0.0
	for i, l := range h.lines {
		if s := align.Similarity(text, l); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}

// lineStart is a highlight due at a playback time.
type lineStart struct {
	line int
	at   float64
}

// cueQueue orders pending highlights by playback time.
type cueQueue struct {
	cues []lineStart
}

func (q *cueQueue) push(c lineStart) {
	i := sort.Search(len(q.cues), func(i int) bool { return q.cues[i].at > c.at })
	q.cues = append(q.cues, lineStart{})
	copy(q.cues[i+1:], q.cues[i:])
	q.cues[i] = c
}

// due pops every cue at or before now.
func (q *cueQueue) due(now float64) []lineStart {
	n := 0
	for n < len(q.cues) && q.cues[n].at <= now {
		n++
	}
	out := append([]lineStart(nil), q.cues[:n]...)
	q.cues = q.cues[n:]
	return out
}

func (q *cueQueue) len() int { return len(q.cues) }

// chunkTiming maps a sample offset in the accumulated audio to the playback
// time it was scheduled at.
type chunkTiming struct {
	sample int
	at     float64
	rate   int
}

type timeline struct {
	chunks []chunkTiming
	end    float64
}

func (t *timeline) add(sample int, at float64, rate int, frames int) {
	t.chunks = append(t.chunks, chunkTiming{sample: sample, at: at, rate: rate})
	if e := at + float64(frames)/float64(rate); e > t.end {
		t.end = e
	}
}

// timeOf returns the playback time of sample. Samples past the end map to the
// end of the last chunk.
func (t *timeline) timeOf(sample int) float64 {
	if len(t.chunks) == 0 {
		return 0
	}
	i := sort.Search(len(t.chunks), func(i int) bool { return t.chunks[i].sample > sample }) - 1
	if i < 0 {
		i = 0
	}
	c := t.chunks[i]
	at := c.at + float64(sample-c.sample)/float64(c.rate)
	if at > t.end {
		at = t.end
	}
	return at
}
