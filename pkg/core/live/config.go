package live

import (
	"time"

	"github.com/vango-go/livetutor/pkg/core/pcm"
)

// DefaultModel is the native-audio Live model used when none is configured.
const DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

// Config holds controller-wide settings.
type Config struct {
	// Model is the Live model to connect to.
	Model string `json:"model" yaml:"model"`

	// CaptureRate is the microphone sample rate in Hz. Default: 16000.
	CaptureRate int `json:"capture_rate" yaml:"capture_rate"`

	// PlaybackRate is the model audio sample rate in Hz when the payload
	// MIME type carries none. Default: 24000.
	PlaybackRate int `json:"playback_rate" yaml:"playback_rate"`

	// PlaybackChannels is the channel count of model audio. Default: 1.
	PlaybackChannels int `json:"playback_channels" yaml:"playback_channels"`

	// FrameSamples is the capture frame size. Default: 4096.
	FrameSamples int `json:"frame_samples" yaml:"frame_samples"`

	// OutboundQueue bounds frames waiting for the session. Default: 256.
	OutboundQueue int `json:"outbound_queue" yaml:"outbound_queue"`

	// ConnectTimeout bounds connection establishment. Zero means no timeout.
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout"`
}

// DefaultConfig returns a Config with the reference rates.
func DefaultConfig() Config {
	return Config{
		Model:            DefaultModel,
		CaptureRate:      16000,
		PlaybackRate:     24000,
		PlaybackChannels: 1,
		FrameSamples:     4096,
		OutboundQueue:    256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.CaptureRate <= 0 {
		c.CaptureRate = d.CaptureRate
	}
	if c.PlaybackRate <= 0 {
		c.PlaybackRate = d.PlaybackRate
	}
	if c.PlaybackChannels <= 0 {
		c.PlaybackChannels = d.PlaybackChannels
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = d.FrameSamples
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = d.OutboundQueue
	}
	return c
}

// CaptureFormat returns the outbound PCM format.
func (c Config) CaptureFormat() pcm.Format {
	return pcm.Format{SampleRate: c.CaptureRate, Channels: 1, BitsPerSample: 16}
}

// PlaybackFormat returns the inbound PCM format.
func (c Config) PlaybackFormat() pcm.Format {
	return pcm.Format{SampleRate: c.PlaybackRate, Channels: c.PlaybackChannels, BitsPerSample: 16}
}

// StartOptions configure one session.
type StartOptions struct {
	SystemInstruction string
	Voice             string

	// DisableCapture skips microphone acquisition, for sessions where only
	// the model speaks.
	DisableCapture bool

	InputTranscription  bool
	OutputTranscription bool

	// ConnectTimeout overrides Config.ConnectTimeout when non-zero.
	ConnectTimeout time.Duration
}
