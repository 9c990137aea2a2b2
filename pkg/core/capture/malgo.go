// Package capture acquires microphone audio through miniaudio (malgo).
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/vango-go/livetutor/pkg/core/live"
)

// MalgoSource opens the default capture device per Acquire call.
type MalgoSource struct {
	logger *slog.Logger
	// Buffer is the number of frames held for a slow consumer before new
	// frames are dropped.
	Buffer int
}

// NewMalgoSource creates a capture source.
func NewMalgoSource(logger *slog.Logger) *MalgoSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoSource{logger: logger, Buffer: 32}
}

// Acquire implements live.CaptureSource. Echo cancellation and noise
// suppression are requests only; miniaudio exposes no such processing, so
// they are logged and otherwise ignored.
func (s *MalgoSource) Acquire(ctx context.Context, c live.Constraints) (live.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels < 1 {
		c.Channels = 1
	}
	if c.EchoCancellation || c.NoiseSuppression {
		s.logger.Debug("capture processing requested but not available",
			"echo_cancellation", c.EchoCancellation, "noise_suppression", c.NoiseSuppression)
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: init audio context: %v", live.ErrDeviceUnavailable, err)
	}

	st := newStream(c.FrameSamples, s.Buffer, s.logger)
	st.malgoCtx = malgoCtx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(c.Channels)
	deviceConfig.SampleRate = uint32(c.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) { st.push(DecodeF32(input, c.Channels)) },
	})
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, classify("init capture device", err)
	}
	st.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, classify("start capture device", err)
	}
	s.logger.Debug("capture started", "sample_rate", c.SampleRate, "channels", c.Channels, "frame_samples", st.framer.Size())
	return st, nil
}

// classify maps miniaudio failures onto the capture sentinels.
func classify(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "access denied") || strings.Contains(msg, "permission") {
		return fmt.Errorf("%w: %s: %v", live.ErrPermissionDenied, op, err)
	}
	return fmt.Errorf("%w: %s: %v", live.ErrDeviceUnavailable, op, err)
}

type stream struct {
	logger *slog.Logger

	mu       sync.Mutex
	framer   *Framer
	frames   chan []float32
	released bool
	dropped  int

	device   *malgo.Device
	malgoCtx *malgo.AllocatedContext
	once     sync.Once
	err      error
}

func newStream(frameSamples, buffer int, logger *slog.Logger) *stream {
	if buffer <= 0 {
		buffer = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &stream{
		logger: logger,
		framer: NewFramer(frameSamples),
		frames: make(chan []float32, buffer),
	}
}

// push runs on the audio thread and never blocks.
func (s *stream) push(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	for _, f := range s.framer.Push(samples) {
		select {
		case s.frames <- f:
		default:
			s.dropped++
		}
	}
}

func (s *stream) Frames() <-chan []float32 { return s.frames }

// Release stops the device, closes the frame channel, then frees the audio
// context.
func (s *stream) Release() error {
	s.once.Do(func() {
		if s.device != nil {
			if err := s.device.Stop(); err != nil {
				s.logger.Debug("capture device stop failed", "error", err)
			}
			s.device.Uninit()
		}

		s.mu.Lock()
		s.released = true
		close(s.frames)
		dropped := s.dropped
		s.mu.Unlock()
		if dropped > 0 {
			s.logger.Warn("capture dropped frames for a slow consumer", "frames", dropped)
		}

		if s.malgoCtx != nil {
			s.err = s.malgoCtx.Uninit()
			s.malgoCtx.Free()
		}
	})
	return s.err
}
