package playback

import (
	"log/slog"
	"sync"
)

// Output is an audio context: a clock plus the ability to start a chunk at a
// time on that clock.
type Output interface {
	// CurrentTime returns the output clock in seconds.
	CurrentTime() float64
	// Play starts chunk at the given clock time.
	Play(chunk AudioChunk, at float64) error
	// Flush drops everything scheduled but not yet played.
	Flush()
	Close() error
}

// Scheduler places chunks on an output without gaps or overlaps.
type Scheduler struct {
	mu        sync.Mutex
	nextStart float64
	output    Output
	logger    *slog.Logger
}

// NewScheduler creates a scheduler with no output attached.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger}
}

// Attach sets the output chunks are played on. A previously attached output
// is not closed; call Reset for that.
func (s *Scheduler) Attach(out Output) {
	s.mu.Lock()
	s.output = out
	s.mu.Unlock()
}

// Output returns the attached output, or nil.
func (s *Scheduler) Output() Output {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.output
}

// ScheduleChunk starts chunk at max(now, cursor), advances the cursor to the
// chunk's end and returns the start time. It never blocks on the output.
func (s *Scheduler) ScheduleChunk(chunk AudioChunk, now float64) float64 {
	s.mu.Lock()
	start := now
	if s.nextStart > start {
		start = s.nextStart
	}
	s.nextStart = start + chunk.Duration()
	out := s.output
	s.mu.Unlock()

	if out != nil {
		if err := out.Play(chunk, start); err != nil {
			s.logger.Warn("playback: output rejected chunk", "index", chunk.Index, "err", err)
		}
	}
	return start
}

// Schedule is ScheduleChunk against the attached output's clock. With no
// output attached the clock reads zero.
func (s *Scheduler) Schedule(chunk AudioChunk) float64 {
	now := 0.0
	if out := s.Output(); out != nil {
		now = out.CurrentTime()
	}
	return s.ScheduleChunk(chunk, now)
}

// OnInterrupted resets the cursor so the next chunk starts immediately.
func (s *Scheduler) OnInterrupted() {
	s.mu.Lock()
	s.nextStart = 0
	s.mu.Unlock()
}

// NextStart reports the cursor. Exposed for diagnostics only.
func (s *Scheduler) NextStart() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Detach clears the cursor and detaches out if it is the attached output.
// It reports whether out was attached. out is not closed.
func (s *Scheduler) Detach(out Output) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.output == nil || s.output != out {
		return false
	}
	s.output = nil
	s.nextStart = 0
	return true
}

// Reset clears the cursor and closes and detaches the output.
func (s *Scheduler) Reset() error {
	s.mu.Lock()
	s.nextStart = 0
	out := s.output
	s.output = nil
	s.mu.Unlock()

	if out == nil {
		return nil
	}
	return out.Close()
}
