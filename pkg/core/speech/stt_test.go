package speech

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vango-go/livetutor/pkg/core/live"
)

// stubRunner records the callbacks and options it was given so tests can
// drive them directly.
type stubRunner struct {
	mu       sync.Mutex
	cb       live.Callbacks
	opts     live.StartOptions
	stopped  int
	startErr error
}

func (r *stubRunner) Start(_ context.Context, opts live.StartOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opts = opts
	return r.startErr
}

func (r *stubRunner) Stop() {
	r.mu.Lock()
	r.stopped++
	r.mu.Unlock()
}

func (r *stubRunner) SendText(string) error { return nil }

func (r *stubRunner) SetCallbacks(cb live.Callbacks) {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
}

func (r *stubRunner) PlaybackTime() float64 { return 0 }
func (r *stubRunner) State() live.State     { return live.StateIdle }

func (r *stubRunner) callbacks() live.Callbacks {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cb
}

func TestTranscriberAccumulates(t *testing.T) {
	r := &stubRunner{}
	tr := NewTranscriber(r, nil)
	var updates []string
	tr.OnUpdate(func(s string) { updates = append(updates, s) })

	if err := tr.Start(context.Background(), "Transcribe in Spanish."); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !r.opts.InputTranscription || r.opts.SystemInstruction != "Transcribe in Spanish." {
		t.Fatalf("start options = %+v", r.opts)
	}

	cb := r.callbacks()
	cb.OnStateChange(&live.StateChangedEvent{From: live.StateConnecting, To: live.StateActive})
	if !tr.Listening() {
		t.Fatalf("not listening after active")
	}
	cb.OnTranscript(&live.TranscriptEvent{Source: live.TranscriptUser, Delta: "hola"})
	cb.OnTranscript(&live.TranscriptEvent{Source: live.TranscriptModel, Delta: "ignored"})
	cb.OnTurnComplete(&live.TurnCompleteEvent{})
	cb.OnTranscript(&live.TranscriptEvent{Source: live.TranscriptUser, Delta: "mundo"})

	if got := tr.Transcript(); got != "hola mundo" {
		t.Fatalf("transcript = %q", got)
	}
	if len(updates) != 3 || updates[2] != "hola mundo" {
		t.Fatalf("updates = %q", updates)
	}

	var reported string
	tr.OnError(func(msg string) { reported = msg })
	cb.OnError(&live.ErrorEvent{Message: "microphone access failed", Err: live.ErrDeviceUnavailable})
	if tr.Err() != "microphone access failed" || reported != tr.Err() {
		t.Fatalf("err = %q, reported = %q", tr.Err(), reported)
	}
	cb.OnStateChange(&live.StateChangedEvent{From: live.StateActive, To: live.StateError})
	if tr.Listening() {
		t.Fatalf("listening after error")
	}

	tr.Stop()
	if r.stopped != 1 {
		t.Fatalf("stopped = %d", r.stopped)
	}
	if tr.Transcript() != "hola mundo" {
		t.Fatalf("stop cleared transcript")
	}
}

func TestTranscriberReportsServerClose(t *testing.T) {
	r := &stubRunner{}
	tr := NewTranscriber(r, nil)
	closes := 0
	tr.OnClose(func() { closes++ })
	if err := tr.Start(context.Background(), ""); err != nil {
		t.Fatalf("Start: %v", err)
	}

	cb := r.callbacks()
	cb.OnStateChange(&live.StateChangedEvent{From: live.StateIdle, To: live.StateConnecting})
	cb.OnStateChange(&live.StateChangedEvent{From: live.StateConnecting, To: live.StateActive})
	if closes != 0 {
		t.Fatalf("close fired while opening")
	}
	cb.OnStateChange(&live.StateChangedEvent{From: live.StateActive, To: live.StateIdle})
	if closes != 1 {
		t.Fatalf("closes = %d, want 1", closes)
	}
	if tr.Listening() || tr.Err() != "" {
		t.Fatalf("listening = %v, err = %q", tr.Listening(), tr.Err())
	}
}

func TestTranscriberStartResets(t *testing.T) {
	r := &stubRunner{}
	tr := NewTranscriber(r, nil)
	_ = tr.Start(context.Background(), "")
	r.callbacks().OnTranscript(&live.TranscriptEvent{Source: live.TranscriptUser, Delta: "old"})

	r.startErr = errors.New("boom")
	if err := tr.Start(context.Background(), ""); err == nil {
		t.Fatalf("expected start error")
	}
	if tr.Transcript() != "" {
		t.Fatalf("transcript = %q", tr.Transcript())
	}
}
