package playback

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/vango-go/livetutor/pkg/core/pcm"
)

// Device plays a Timeline through the default miniaudio playback device.
// The device callback pulls audio from the timeline, so the timeline clock is
// the hardware clock.
type Device struct {
	*Timeline

	mu        sync.Mutex
	malgoCtx  *malgo.AllocatedContext
	device    *malgo.Device
	scratch   []float32
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// OpenDevice opens and starts the default output device at format.
func OpenDevice(format pcm.Format, logger *slog.Logger) (*Device, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if format.SampleRate <= 0 {
		return nil, fmt.Errorf("playback: invalid sample rate %d", format.SampleRate)
	}
	if format.Channels < 1 {
		format.Channels = 1
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("playback: init audio context: %w", err)
	}

	d := &Device{
		Timeline: NewTimeline(format.SampleRate, format.Channels),
		malgoCtx: malgoCtx,
		logger:   logger,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: d.onData,
	}
	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("playback: init output device: %w", err)
	}
	d.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return nil, fmt.Errorf("playback: start output device: %w", err)
	}
	logger.Debug("playback device started", "sample_rate", format.SampleRate, "channels", format.Channels)
	return d, nil
}

func (d *Device) onData(pOutput, _ []byte, frameCount uint32) {
	n := int(frameCount) * d.Channels()
	if len(pOutput) < n*4 {
		n = len(pOutput) / 4
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if cap(d.scratch) < n {
		d.scratch = make([]float32, n)
	}
	buf := d.scratch[:n]
	d.Timeline.Render(buf)
	for i, v := range buf {
		binary.LittleEndian.PutUint32(pOutput[i*4:], math.Float32bits(v))
	}
}

// Close stops the device and releases the audio context. Safe to call more
// than once.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		_ = d.Timeline.Close()
		if d.device != nil {
			if err := d.device.Stop(); err != nil {
				d.logger.Debug("playback device stop failed", "err", err)
			}
			d.device.Uninit()
		}
		if d.malgoCtx != nil {
			d.closeErr = d.malgoCtx.Uninit()
			d.malgoCtx.Free()
		}
	})
	return d.closeErr
}
