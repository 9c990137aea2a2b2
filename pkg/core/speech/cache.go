package speech

import (
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/vango-go/livetutor/pkg/core/pcm"
	"github.com/vango-go/livetutor/pkg/core/playback"
)

// Entry is one cached spoken line.
type Entry struct {
	ID         xid.ID
	Key        string
	Text       string
	Lang       string
	Line       int
	SampleRate int
	Samples    []int16
}

// Duration is the playback length of the entry.
func (e *Entry) Duration() time.Duration {
	if e.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(e.Samples)) * time.Second / time.Duration(e.SampleRate)
}

// Chunk converts the entry to a mono playback chunk.
func (e *Entry) Chunk() playback.AudioChunk {
	samples, _ := pcm.DecodePCM16ToFloat(pcm.Int16ToPCM16(e.Samples), e.SampleRate, 1)
	return playback.AudioChunk{Samples: samples, SampleRate: e.SampleRate, Channels: 1}
}

// LineCache holds the audio of spoken lines so they can be replayed without
// another model round trip. It is safe for concurrent use.
type LineCache struct {
	sampleRate int

	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// NewLineCache creates an empty cache for audio at sampleRate.
func NewLineCache(sampleRate int) *LineCache {
	if sampleRate <= 0 {
		sampleRate = 24000
	}
	return &LineCache{sampleRate: sampleRate, entries: make(map[string]*Entry)}
}

// SampleRate is the rate of every entry.
func (c *LineCache) SampleRate() int { return c.sampleRate }

// Get returns the entry for a cache key.
func (c *LineCache) Get(key string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Lookup returns the entry for a line.
func (c *LineCache) Lookup(l Line) (*Entry, bool) {
	return c.Get(l.Key())
}

// Put stores samples for the line at index, replacing any previous entry for
// the same key. Samples are copied.
func (c *LineCache) Put(l Line, index int, samples []int16) *Entry {
	e := &Entry{
		ID:         xid.New(),
		Key:        l.Key(),
		Text:       l.Text,
		Lang:       l.Lang,
		Line:       index,
		SampleRate: c.sampleRate,
		Samples:    append([]int16(nil), samples...),
	}
	c.put(e)
	return e
}

func (c *LineCache) put(e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[e.Key]; !ok {
		c.order = append(c.order, e.Key)
	}
	c.entries[e.Key] = e
}

// Len returns the number of entries.
func (c *LineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns entries in insertion order.
func (c *LineCache) Entries() []*Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Entry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.entries[k])
	}
	return out
}

// Clear removes every entry.
func (c *LineCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.order = nil
}
