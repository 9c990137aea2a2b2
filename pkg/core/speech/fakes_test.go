package speech

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/pcm"
)

// scriptTransport opens at once and, when the trigger text arrives, plays its
// script of server messages on the receive side.
type scriptTransport struct {
	script []*live.ServerMessage
	// hold keeps the session silent after the trigger.
	hold bool
	// fail reports a receive error instead of playing the script.
	fail error
	// played, when set, is closed once the script was delivered.
	played chan struct{}

	mu       sync.Mutex
	configs  []live.SessionConfig
	sessions []*scriptSession
}

func (t *scriptTransport) Connect(_ context.Context, cfg live.SessionConfig, h live.Handler) (live.Session, error) {
	s := &scriptSession{t: t, h: h}
	t.mu.Lock()
	t.configs = append(t.configs, cfg)
	t.sessions = append(t.sessions, s)
	t.mu.Unlock()
	h.OnOpen()
	return s, nil
}

func (t *scriptTransport) config(i int) live.SessionConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.configs[i]
}

type scriptSession struct {
	t *scriptTransport
	h live.Handler

	mu     sync.Mutex
	texts  []string
	closed int
}

func (s *scriptSession) SendRealtimeInput(context.Context, live.MediaFrame) error { return nil }

func (s *scriptSession) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	switch {
	case s.t.hold:
	case s.t.fail != nil:
		go s.h.OnError(s.t.fail)
	default:
		go func() {
			for _, m := range s.t.script {
				s.h.OnMessage(m)
			}
			if s.t.played != nil {
				close(s.t.played)
			}
		}()
	}
	return nil
}

func (s *scriptSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func tone(n int, v int16) []byte {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = v
	}
	return pcm.Int16ToPCM16(samples)
}

func audioMsg(n int, v int16) *live.ServerMessage {
	return &live.ServerMessage{Audio: &live.AudioPayload{Data: tone(n, v), MIMEType: "audio/pcm;rate=24000"}}
}

func textMsg(s string) *live.ServerMessage {
	return &live.ServerMessage{OutputTranscript: s}
}

func newController(t *testing.T, tr live.Transport) *live.Controller {
	t.Helper()
	ctrl := live.New(live.DefaultConfig(), tr, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = ctrl.Shutdown(ctx)
	})
	return ctrl
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
