package playback

import (
	"sync"
	"time"
)

// Discard is an output for headless runs. Its clock follows wall time from
// creation and scheduled chunks are counted, never played.
type Discard struct {
	mu      sync.Mutex
	now     func() time.Time
	started time.Time
	played  int
	samples int
	closed  bool
}

// NewDiscard returns a wall-clock output. A nil now uses time.Now.
func NewDiscard(now func() time.Time) *Discard {
	if now == nil {
		now = time.Now
	}
	return &Discard{now: now, started: now()}
}

func (d *Discard) CurrentTime() float64 {
	return d.now().Sub(d.started).Seconds()
}

func (d *Discard) Play(chunk AudioChunk, _ float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.played++
	d.samples += chunk.Frames()
	return nil
}

// Played returns the number of chunks and sample frames accepted.
func (d *Discard) Played() (chunks, frames int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.played, d.samples
}

func (d *Discard) Flush() {}

func (d *Discard) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
