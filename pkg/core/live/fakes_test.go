package live

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSession struct {
	mu      sync.Mutex
	frames  []MediaFrame
	texts   []string
	log     []string
	closed  int
	sendErr error
}

func (s *fakeSession) SendRealtimeInput(_ context.Context, f MediaFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	s.log = append(s.log, fmt.Sprintf("frame:%v", f.Data))
	return s.sendErr
}

func (s *fakeSession) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	s.log = append(s.log, "text:"+text)
	return s.sendErr
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) sendLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) snapshot() (frames []MediaFrame, texts []string, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MediaFrame(nil), s.frames...), append([]string(nil), s.texts...), s.closed
}

// fakeTransport resolves Connect immediately unless gate is set, in which case
// Connect waits for the gate regardless of ctx, like a slow handshake.
type fakeTransport struct {
	mu       sync.Mutex
	gate     chan struct{}
	err      error
	open     bool
	handlers []Handler
	sessions []*fakeSession
	configs  []SessionConfig
}

func (f *fakeTransport) Connect(_ context.Context, cfg SessionConfig, h Handler) (Session, error) {
	f.mu.Lock()
	f.handlers = append(f.handlers, h)
	f.configs = append(f.configs, cfg)
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSession{}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	if f.open {
		h.OnOpen()
	}
	return s, nil
}

func (f *fakeTransport) handler(i int) Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.handlers) {
		return nil
	}
	return f.handlers[i]
}

func (f *fakeTransport) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.sessions) {
		return nil
	}
	return f.sessions[i]
}

type fakeStream struct {
	frames   chan []float32
	released atomic.Int32
	once     sync.Once

	// releaseErr is returned from Release; releasePanic makes Release panic.
	releaseErr   error
	releasePanic bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan []float32, 16)}
}

func (s *fakeStream) Frames() <-chan []float32 { return s.frames }

func (s *fakeStream) Release() error {
	s.released.Add(1)
	s.once.Do(func() { close(s.frames) })
	if s.releasePanic {
		panic("capture driver crashed")
	}
	return s.releaseErr
}

type fakeCapture struct {
	mu       sync.Mutex
	err      error
	stream   *fakeStream
	acquired []Constraints
}

func (f *fakeCapture) Acquire(_ context.Context, c Constraints) (CaptureStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired = append(f.acquired, c)
	if f.err != nil {
		return nil, f.err
	}
	return f.stream, nil
}

func (f *fakeCapture) acquireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acquired)
}

type recorder struct {
	mu          sync.Mutex
	states      []State
	errors      []*ErrorEvent
	audio       []*AudioEvent
	transcripts []*TranscriptEvent
	interrupted int
	turns       int
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnStateChange: func(e *StateChangedEvent) {
			r.mu.Lock()
			r.states = append(r.states, e.To)
			r.mu.Unlock()
		},
		OnError: func(e *ErrorEvent) {
			r.mu.Lock()
			r.errors = append(r.errors, e)
			r.mu.Unlock()
		},
		OnAudio: func(e *AudioEvent) {
			r.mu.Lock()
			r.audio = append(r.audio, e)
			r.mu.Unlock()
		},
		OnTranscript: func(e *TranscriptEvent) {
			r.mu.Lock()
			r.transcripts = append(r.transcripts, e)
			r.mu.Unlock()
		},
		OnInterrupted: func(*InterruptedEvent) {
			r.mu.Lock()
			r.interrupted++
			r.mu.Unlock()
		},
		OnTurnComplete: func(*TurnCompleteEvent) {
			r.mu.Lock()
			r.turns++
			r.mu.Unlock()
		},
	}
}

func (r *recorder) stateList() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) errorList() []*ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*ErrorEvent(nil), r.errors...)
}

func (r *recorder) audioList() []*AudioEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*AudioEvent(nil), r.audio...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func sameStates(got, want []State) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
