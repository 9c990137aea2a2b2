package config

import (
	"strings"
	"testing"
	"time"

	"github.com/vango-go/livetutor/pkg/core/align"
	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/live/geminiws"
)

var envKeys = []string{
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"LIVETUTOR_MODEL",
	"LIVETUTOR_TRANSPORT",
	"LIVETUTOR_WS_ENDPOINT",
	"LIVETUTOR_VOICE",
	"LIVETUTOR_CAPTURE_RATE",
	"LIVETUTOR_PLAYBACK_RATE",
	"LIVETUTOR_FRAME_SAMPLES",
	"LIVETUTOR_OUTBOUND_QUEUE",
	"LIVETUTOR_SPLIT_MODE",
	"LIVETUTOR_SIMILARITY_THRESHOLD",
	"LIVETUTOR_MIN_CONTENT_CHARS",
	"LIVETUTOR_GAP_FILL",
	"LIVETUTOR_CONNECT_TIMEOUT",
	"LIVETUTOR_TTS_TIMEOUT",
	"LIVETUTOR_METRICS_ADDR",
	"LIVETUTOR_WS_WRITE_TIMEOUT",
	"LIVETUTOR_WS_PING_INTERVAL",
	"LIVETUTOR_WS_HANDSHAKE_TIMEOUT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Model != live.DefaultModel {
		t.Fatalf("Model = %q", cfg.Model)
	}
	if cfg.Transport != TransportGenAI {
		t.Fatalf("Transport = %q, want genai", cfg.Transport)
	}
	if cfg.WSEndpoint != geminiws.DefaultEndpoint {
		t.Fatalf("WSEndpoint = %q", cfg.WSEndpoint)
	}
	if cfg.Voice != "Kore" {
		t.Fatalf("Voice = %q, want Kore", cfg.Voice)
	}
	if cfg.CaptureRate != 16000 || cfg.PlaybackRate != 24000 {
		t.Fatalf("rates = %d/%d", cfg.CaptureRate, cfg.PlaybackRate)
	}
	if cfg.FrameSamples != 4096 || cfg.OutboundQueue != 256 {
		t.Fatalf("frame/queue = %d/%d", cfg.FrameSamples, cfg.OutboundQueue)
	}
	if cfg.SplitMode != SplitAuto {
		t.Fatalf("SplitMode = %q, want auto", cfg.SplitMode)
	}
	if cfg.SimilarityThreshold != 0.30 || cfg.MinContentChars != 3 || !cfg.GapFill {
		t.Fatalf("alignment = %v/%d/%v", cfg.SimilarityThreshold, cfg.MinContentChars, cfg.GapFill)
	}
	if cfg.ConnectTimeout != 0 {
		t.Fatalf("ConnectTimeout = %v, want 0", cfg.ConnectTimeout)
	}
	if cfg.TTSTimeout != 5*time.Minute {
		t.Fatalf("TTSTimeout = %v, want 5m", cfg.TTSTimeout)
	}
	if cfg.MetricsAddr != "" {
		t.Fatalf("MetricsAddr = %q, want disabled", cfg.MetricsAddr)
	}
	if cfg.WSWriteTimeout != 5*time.Second || cfg.WSPingInterval != 20*time.Second || cfg.WSHandshakeTimeout != 10*time.Second {
		t.Fatalf("ws timeouts = %v/%v/%v", cfg.WSWriteTimeout, cfg.WSPingInterval, cfg.WSHandshakeTimeout)
	}
	if err := cfg.RequireAPIKey(); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
		t.Fatalf("RequireAPIKey() = %v", err)
	}
	if _, forced := cfg.ForcedSplit(); forced {
		t.Fatalf("auto split reported as forced")
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k1")
	t.Setenv("LIVETUTOR_MODEL", "gemini-live-test")
	t.Setenv("LIVETUTOR_TRANSPORT", "WebSocket")
	t.Setenv("LIVETUTOR_WS_ENDPOINT", "ws://127.0.0.1:9999/live")
	t.Setenv("LIVETUTOR_VOICE", "Puck")
	t.Setenv("LIVETUTOR_CAPTURE_RATE", "8000")
	t.Setenv("LIVETUTOR_PLAYBACK_RATE", "22050")
	t.Setenv("LIVETUTOR_FRAME_SAMPLES", "2048")
	t.Setenv("LIVETUTOR_OUTBOUND_QUEUE", "32")
	t.Setenv("LIVETUTOR_SPLIT_MODE", "newline")
	t.Setenv("LIVETUTOR_SIMILARITY_THRESHOLD", "0.45")
	t.Setenv("LIVETUTOR_MIN_CONTENT_CHARS", "5")
	t.Setenv("LIVETUTOR_GAP_FILL", "off")
	t.Setenv("LIVETUTOR_CONNECT_TIMEOUT", "8s")
	t.Setenv("LIVETUTOR_TTS_TIMEOUT", "90s")
	t.Setenv("LIVETUTOR_METRICS_ADDR", ":9464")
	t.Setenv("LIVETUTOR_WS_WRITE_TIMEOUT", "3s")
	t.Setenv("LIVETUTOR_WS_PING_INTERVAL", "9s")
	t.Setenv("LIVETUTOR_WS_HANDSHAKE_TIMEOUT", "4s")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Fatalf("RequireAPIKey() = %v", err)
	}
	if cfg.Transport != TransportWebSocket {
		t.Fatalf("Transport = %q", cfg.Transport)
	}

	lc := cfg.Live()
	if lc.Model != "gemini-live-test" || lc.CaptureRate != 8000 || lc.PlaybackRate != 22050 ||
		lc.FrameSamples != 2048 || lc.OutboundQueue != 32 || lc.ConnectTimeout != 8*time.Second || lc.PlaybackChannels != 1 {
		t.Fatalf("Live() = %+v", lc)
	}

	ac := cfg.Aligner()
	if ac.SimilarityThreshold != 0.45 || ac.MinContentChars != 5 || ac.GapFill {
		t.Fatalf("Aligner() = %+v", ac)
	}
	if mode, forced := cfg.ForcedSplit(); !forced || mode != align.SplitNewline {
		t.Fatalf("ForcedSplit() = %v, %v", mode, forced)
	}

	wc := cfg.WebSocket()
	if wc.Endpoint != "ws://127.0.0.1:9999/live" || wc.APIKey != "k1" || wc.Voice != "Puck" ||
		wc.WriteTimeout != 3*time.Second || wc.PingInterval != 9*time.Second || wc.HandshakeTimeout != 4*time.Second || wc.QueueSize != 32 {
		t.Fatalf("WebSocket() = %+v", wc)
	}
	if cfg.TTSTimeout != 90*time.Second || cfg.MetricsAddr != ":9464" {
		t.Fatalf("tts/metrics = %v/%q", cfg.TTSTimeout, cfg.MetricsAddr)
	}
}

func TestLoadFromEnv_GoogleAPIKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("GOOGLE_API_KEY", "g1")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.APIKey != "g1" {
		t.Fatalf("APIKey = %q, want g1", cfg.APIKey)
	}
}

func TestLoadFromEnv_MalformedNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("LIVETUTOR_CAPTURE_RATE", "fast")
	t.Setenv("LIVETUTOR_TTS_TIMEOUT", "soon")
	t.Setenv("LIVETUTOR_GAP_FILL", "maybe")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.CaptureRate != 16000 || cfg.TTSTimeout != 5*time.Minute || !cfg.GapFill {
		t.Fatalf("fallbacks = %d/%v/%v", cfg.CaptureRate, cfg.TTSTimeout, cfg.GapFill)
	}
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	cases := []struct {
		key     string
		value   string
		wantErr string
	}{
		{"LIVETUTOR_TRANSPORT", "grpc", "LIVETUTOR_TRANSPORT"},
		{"LIVETUTOR_SPLIT_MODE", "sentence", "LIVETUTOR_SPLIT_MODE"},
		{"LIVETUTOR_CAPTURE_RATE", "0", "LIVETUTOR_CAPTURE_RATE"},
		{"LIVETUTOR_PLAYBACK_RATE", "-1", "LIVETUTOR_PLAYBACK_RATE"},
		{"LIVETUTOR_FRAME_SAMPLES", "0", "LIVETUTOR_FRAME_SAMPLES"},
		{"LIVETUTOR_OUTBOUND_QUEUE", "0", "LIVETUTOR_OUTBOUND_QUEUE"},
		{"LIVETUTOR_SIMILARITY_THRESHOLD", "1.5", "LIVETUTOR_SIMILARITY_THRESHOLD"},
		{"LIVETUTOR_MIN_CONTENT_CHARS", "-2", "LIVETUTOR_MIN_CONTENT_CHARS"},
		{"LIVETUTOR_CONNECT_TIMEOUT", "-1s", "LIVETUTOR_CONNECT_TIMEOUT"},
		{"LIVETUTOR_TTS_TIMEOUT", "0s", "LIVETUTOR_TTS_TIMEOUT"},
		{"LIVETUTOR_WS_WRITE_TIMEOUT", "0s", "LIVETUTOR_WS_WRITE_TIMEOUT"},
		{"LIVETUTOR_WS_PING_INTERVAL", "-5s", "LIVETUTOR_WS_PING_INTERVAL"},
		{"LIVETUTOR_WS_HANDSHAKE_TIMEOUT", "0s", "LIVETUTOR_WS_HANDSHAKE_TIMEOUT"},
	}
	for _, tc := range cases {
		t.Run(tc.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, expected %s in message", err, tc.wantErr)
			}
		})
	}
}
