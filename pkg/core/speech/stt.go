package speech

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-go/livetutor/pkg/core/live"
)

// Transcriber streams the microphone to a live session with input
// transcription on and accumulates what was heard. Model audio is played or
// discarded by the runner's output as usual.
type Transcriber struct {
	runner Runner
	logger *slog.Logger

	mu        sync.Mutex
	text      strings.Builder
	listening bool
	lastErr   string
	onUpdate  func(string)
	onError   func(string)
	onClose   func()
}

// NewTranscriber creates a transcriber on runner.
func NewTranscriber(runner Runner, logger *slog.Logger) *Transcriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcriber{runner: runner, logger: logger}
}

// OnUpdate sets a callback receiving the full transcript after every change.
func (t *Transcriber) OnUpdate(fn func(transcript string)) {
	t.mu.Lock()
	t.onUpdate = fn
	t.mu.Unlock()
}

// OnError sets a callback receiving user-facing error messages.
func (t *Transcriber) OnError(fn func(message string)) {
	t.mu.Lock()
	t.onError = fn
	t.mu.Unlock()
}

// OnClose sets a callback fired when the session ends without an error, for
// example when the server closes it.
func (t *Transcriber) OnClose(fn func()) {
	t.mu.Lock()
	t.onClose = fn
	t.mu.Unlock()
}

// Start clears the transcript and starts listening. instruction may be empty.
func (t *Transcriber) Start(ctx context.Context, instruction string) error {
	t.mu.Lock()
	t.text.Reset()
	t.lastErr = ""
	t.listening = false
	t.mu.Unlock()

	t.runner.SetCallbacks(live.Callbacks{
		OnTranscript: func(e *live.TranscriptEvent) {
			if e.Source == live.TranscriptUser && e.Delta != "" {
				t.append(e.Delta)
			}
		},
		OnTurnComplete: func(*live.TurnCompleteEvent) {
			t.append(" ")
		},
		OnStateChange: func(e *live.StateChangedEvent) {
			t.mu.Lock()
			t.listening = e.To == live.StateActive
			fn := t.onClose
			t.mu.Unlock()
			if e.To == live.StateIdle && e.From != live.StateIdle && fn != nil {
				fn()
			}
		},
		OnError: func(e *live.ErrorEvent) {
			t.mu.Lock()
			t.lastErr = e.Message
			fn := t.onError
			t.mu.Unlock()
			t.logger.Warn("transcriber error", "message", e.Message, "err", e.Err)
			if fn != nil {
				fn(e.Message)
			}
		},
	})
	return t.runner.Start(ctx, live.StartOptions{
		SystemInstruction:  instruction,
		InputTranscription: true,
	})
}

// Stop ends listening. The transcript is kept.
func (t *Transcriber) Stop() {
	t.runner.Stop()
}

func (t *Transcriber) append(s string) {
	t.mu.Lock()
	t.text.WriteString(s)
	snapshot := t.text.String()
	fn := t.onUpdate
	t.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

// Transcript returns everything heard since Start.
func (t *Transcriber) Transcript() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text.String()
}

// Listening reports whether the session is active.
func (t *Transcriber) Listening() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listening
}

// Err returns the last user-facing error message, or "".
func (t *Transcriber) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}
