package playback

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// ErrClosed is returned by outputs after Close.
var ErrClosed = errors.New("playback: output closed")

type scheduledChunk struct {
	startFrame int64
	chunk      AudioChunk
}

func (s scheduledChunk) endFrame() int64 {
	return s.startFrame + int64(s.chunk.Frames())
}

// Timeline is a software mixer. Its clock advances only when Render is
// called, one frame per rendered sample frame, which makes it deterministic
// for tests and lets a device callback drive it in real time.
type Timeline struct {
	mu         sync.Mutex
	sampleRate int
	channels   int
	frame      int64
	pending    []scheduledChunk
	closed     bool
}

// NewTimeline returns a mixer rendering interleaved audio with the given
// rate and channel count.
func NewTimeline(sampleRate, channels int) *Timeline {
	if channels < 1 {
		channels = 1
	}
	return &Timeline{sampleRate: sampleRate, channels: channels}
}

func (t *Timeline) SampleRate() int { return t.sampleRate }
func (t *Timeline) Channels() int   { return t.channels }

// CurrentTime returns seconds rendered so far.
func (t *Timeline) CurrentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeLocked()
}

func (t *Timeline) timeLocked() float64 {
	if t.sampleRate <= 0 {
		return 0
	}
	return float64(t.frame) / float64(t.sampleRate)
}

// Play schedules chunk at time at. A time in the past starts the chunk at the
// next rendered frame, clipping nothing.
func (t *Timeline) Play(chunk AudioChunk, at float64) error {
	if chunk.SampleRate != t.sampleRate {
		return fmt.Errorf("playback: chunk rate %d does not match output rate %d", chunk.SampleRate, t.sampleRate)
	}
	if chunk.Frames() == 0 {
		return nil
	}
	start := int64(math.Round(at * float64(t.sampleRate)))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if start < t.frame {
		start = t.frame
	}
	entry := scheduledChunk{startFrame: start, chunk: chunk}
	i := sort.Search(len(t.pending), func(i int) bool { return t.pending[i].startFrame > start })
	t.pending = append(t.pending, scheduledChunk{})
	copy(t.pending[i+1:], t.pending[i:])
	t.pending[i] = entry
	return nil
}

// Render fills out with the next len(out)/channels frames of interleaved
// audio and advances the clock. Overlapping chunks are summed and clipped.
func (t *Timeline) Render(out []float32) {
	for i := range out {
		out[i] = 0
	}
	frames := int64(len(out) / t.channels)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || frames == 0 {
		return
	}
	winStart, winEnd := t.frame, t.frame+frames

	kept := t.pending[:0]
	for _, sc := range t.pending {
		if sc.startFrame >= winEnd {
			kept = append(kept, sc)
			continue
		}
		t.mix(out, sc, winStart, winEnd)
		if sc.endFrame() > winEnd {
			kept = append(kept, sc)
		}
	}
	for i := len(kept); i < len(t.pending); i++ {
		t.pending[i] = scheduledChunk{}
	}
	t.pending = kept
	t.frame = winEnd

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
}

func (t *Timeline) mix(out []float32, sc scheduledChunk, winStart, winEnd int64) {
	from := max(sc.startFrame, winStart)
	to := min(sc.endFrame(), winEnd)
	src := sc.chunk.Samples
	for f := from; f < to; f++ {
		srcIdx := f - sc.startFrame
		dst := int(f-winStart) * t.channels
		for ch := 0; ch < t.channels; ch++ {
			// Mono sources feed every output channel; extra source channels are dropped.
			sch := ch
			if sch >= len(src) {
				sch = len(src) - 1
			}
			out[dst+ch] += src[sch][srcIdx]
		}
	}
}

// Pending reports the number of chunks not yet fully rendered.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Flush drops all scheduled audio. The clock keeps running.
func (t *Timeline) Flush() {
	t.mu.Lock()
	t.pending = nil
	t.mu.Unlock()
}

// Close drops scheduled audio and rejects further Play calls.
func (t *Timeline) Close() error {
	t.mu.Lock()
	t.closed = true
	t.pending = nil
	t.mu.Unlock()
	return nil
}
