package capture

import (
	"encoding/binary"
	"math"
)

// Framer regroups arbitrary-size sample batches into fixed-size frames.
type Framer struct {
	size int
	buf  []float32
}

// NewFramer returns a framer emitting frames of size samples.
func NewFramer(size int) *Framer {
	if size <= 0 {
		size = 4096
	}
	return &Framer{size: size, buf: make([]float32, 0, size)}
}

// Push appends samples and returns every frame completed by them. Returned
// frames are owned by the caller.
func (f *Framer) Push(samples []float32) [][]float32 {
	var frames [][]float32
	for len(samples) > 0 {
		n := f.size - len(f.buf)
		if n > len(samples) {
			n = len(samples)
		}
		f.buf = append(f.buf, samples[:n]...)
		samples = samples[n:]
		if len(f.buf) == f.size {
			frames = append(frames, f.buf)
			f.buf = make([]float32, 0, f.size)
		}
	}
	return frames
}

// Pending reports buffered samples not yet part of a frame.
func (f *Framer) Pending() int { return len(f.buf) }

// Size is the frame length in samples.
func (f *Framer) Size() int { return f.size }

// DecodeF32 converts interleaved little-endian float32 device bytes to mono,
// averaging channels.
func DecodeF32(data []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / (4 * channels)
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 4
			sum += math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
		}
		out[i] = sum / float32(channels)
	}
	return out
}
