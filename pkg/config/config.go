// Package config loads livetutor settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vango-go/livetutor/pkg/core/align"
	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/live/geminiws"
)

type TransportKind string

const (
	TransportGenAI     TransportKind = "genai"
	TransportWebSocket TransportKind = "websocket"
)

// SplitAuto lets the speaker pick the split track with more boundaries.
const SplitAuto = "auto"

type Config struct {
	APIKey string

	Model     string
	Transport TransportKind
	// WSEndpoint is only used by the websocket transport.
	WSEndpoint string
	Voice      string

	CaptureRate   int
	PlaybackRate  int
	FrameSamples  int
	OutboundQueue int

	// Alignment
	SplitMode           string
	SimilarityThreshold float64
	MinContentChars     int
	GapFill             bool

	ConnectTimeout time.Duration
	TTSTimeout     time.Duration

	// MetricsAddr serves /metrics when non-empty.
	MetricsAddr string

	WSWriteTimeout     time.Duration
	WSPingInterval     time.Duration
	WSHandshakeTimeout time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		APIKey:              envOr("GEMINI_API_KEY", envOr("GOOGLE_API_KEY", "")),
		Model:               envOr("LIVETUTOR_MODEL", live.DefaultModel),
		Transport:           TransportKind(strings.ToLower(envOr("LIVETUTOR_TRANSPORT", string(TransportGenAI)))),
		WSEndpoint:          envOr("LIVETUTOR_WS_ENDPOINT", geminiws.DefaultEndpoint),
		Voice:               envOr("LIVETUTOR_VOICE", "Kore"),
		CaptureRate:         envIntOr("LIVETUTOR_CAPTURE_RATE", 16000),
		PlaybackRate:        envIntOr("LIVETUTOR_PLAYBACK_RATE", 24000),
		FrameSamples:        envIntOr("LIVETUTOR_FRAME_SAMPLES", 4096),
		OutboundQueue:       envIntOr("LIVETUTOR_OUTBOUND_QUEUE", 256),
		SplitMode:           strings.ToLower(envOr("LIVETUTOR_SPLIT_MODE", SplitAuto)),
		SimilarityThreshold: envFloat64Or("LIVETUTOR_SIMILARITY_THRESHOLD", align.DefaultSimilarityThreshold),
		MinContentChars:     envIntOr("LIVETUTOR_MIN_CONTENT_CHARS", align.DefaultMinContentChars),
		GapFill:             envBoolOr("LIVETUTOR_GAP_FILL", true),
		ConnectTimeout:      envDurationOr("LIVETUTOR_CONNECT_TIMEOUT", 0),
		TTSTimeout:          envDurationOr("LIVETUTOR_TTS_TIMEOUT", 5*time.Minute),
		MetricsAddr:         envOr("LIVETUTOR_METRICS_ADDR", ""),
		WSWriteTimeout:      envDurationOr("LIVETUTOR_WS_WRITE_TIMEOUT", 5*time.Second),
		WSPingInterval:      envDurationOr("LIVETUTOR_WS_PING_INTERVAL", 20*time.Second),
		WSHandshakeTimeout:  envDurationOr("LIVETUTOR_WS_HANDSHAKE_TIMEOUT", 10*time.Second),
	}

	switch cfg.Transport {
	case TransportGenAI, TransportWebSocket:
	default:
		return Config{}, fmt.Errorf("LIVETUTOR_TRANSPORT must be one of genai|websocket")
	}
	if cfg.SplitMode != SplitAuto {
		if _, err := align.ParseSplitMode(cfg.SplitMode); err != nil {
			return Config{}, fmt.Errorf("LIVETUTOR_SPLIT_MODE must be one of language_code|newline|auto")
		}
	}

	if cfg.CaptureRate <= 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_CAPTURE_RATE must be > 0")
	}
	if cfg.PlaybackRate <= 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_PLAYBACK_RATE must be > 0")
	}
	if cfg.FrameSamples <= 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_FRAME_SAMPLES must be > 0")
	}
	if cfg.OutboundQueue <= 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_OUTBOUND_QUEUE must be > 0")
	}
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return Config{}, fmt.Errorf("LIVETUTOR_SIMILARITY_THRESHOLD must be within [0, 1]")
	}
	if cfg.MinContentChars < 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_MIN_CONTENT_CHARS must be >= 0")
	}
	if cfg.ConnectTimeout < 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_CONNECT_TIMEOUT must be >= 0")
	}
	if cfg.TTSTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_TTS_TIMEOUT must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSHandshakeTimeout <= 0 {
		return Config{}, fmt.Errorf("LIVETUTOR_WS_HANDSHAKE_TIMEOUT must be > 0")
	}
	if cfg.Transport == TransportWebSocket && strings.TrimSpace(cfg.WSEndpoint) == "" {
		return Config{}, fmt.Errorf("LIVETUTOR_WS_ENDPOINT must not be empty")
	}

	return cfg, nil
}

// RequireAPIKey reports a missing key. Only modes that connect need one.
func (c Config) RequireAPIKey() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("GEMINI_API_KEY must be set")
	}
	return nil
}

// Live returns the controller settings.
func (c Config) Live() live.Config {
	return live.Config{
		Model:            c.Model,
		CaptureRate:      c.CaptureRate,
		PlaybackRate:     c.PlaybackRate,
		PlaybackChannels: 1,
		FrameSamples:     c.FrameSamples,
		OutboundQueue:    c.OutboundQueue,
		ConnectTimeout:   c.ConnectTimeout,
	}
}

// Aligner returns the transcript alignment settings.
func (c Config) Aligner() align.Config {
	return align.Config{
		SimilarityThreshold: c.SimilarityThreshold,
		MinContentChars:     c.MinContentChars,
		GapFill:             c.GapFill,
	}
}

// ForcedSplit returns the configured split mode, or false for auto.
func (c Config) ForcedSplit() (align.SplitMode, bool) {
	if c.SplitMode == "" || c.SplitMode == SplitAuto {
		return 0, false
	}
	m, err := align.ParseSplitMode(c.SplitMode)
	if err != nil {
		return 0, false
	}
	return m, true
}

// WebSocket returns the raw websocket transport settings.
func (c Config) WebSocket() geminiws.Config {
	return geminiws.Config{
		Endpoint:         c.WSEndpoint,
		APIKey:           c.APIKey,
		Voice:            c.Voice,
		WriteTimeout:     c.WSWriteTimeout,
		PingInterval:     c.WSPingInterval,
		HandshakeTimeout: c.WSHandshakeTimeout,
		QueueSize:        c.OutboundQueue,
	}
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
