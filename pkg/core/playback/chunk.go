package playback

// AudioChunk is one decoded, playable unit of model audio.
type AudioChunk struct {
	// Samples holds one buffer per channel, values in [-1, 1].
	Samples    [][]float32
	SampleRate int
	Channels   int
	// Index is the arrival order within the session.
	Index int64
}

// Frames returns the number of sample frames in the chunk.
func (c AudioChunk) Frames() int {
	if len(c.Samples) == 0 {
		return 0
	}
	return len(c.Samples[0])
}

// Duration returns the chunk length in seconds.
func (c AudioChunk) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}
