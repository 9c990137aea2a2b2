package live

import "context"

// Constraints describes the capture stream a session wants.
type Constraints struct {
	SampleRate   int
	Channels     int
	FrameSamples int

	EchoCancellation bool
	NoiseSuppression bool
}

// CaptureSource acquires microphone streams. Acquire fails with an error
// matching ErrDeviceUnavailable or ErrPermissionDenied.
type CaptureSource interface {
	Acquire(ctx context.Context, c Constraints) (CaptureStream, error)
}

// CaptureStream delivers fixed-size mono frames until released.
type CaptureStream interface {
	// Frames is closed after Release.
	Frames() <-chan []float32
	// Release stops the device and frees its audio context. Safe to call
	// more than once.
	Release() error
}
