package live

import "github.com/vango-go/livetutor/pkg/core/playback"

// Event is the interface for all controller events.
type Event interface {
	// EventType returns the event type string for logging and serialization.
	EventType() string
}

// StateChangedEvent is emitted when the session state changes.
type StateChangedEvent struct {
	SessionID string `json:"session_id,omitempty"`
	From      State  `json:"from"`
	To        State  `json:"to"`
}

func (e *StateChangedEvent) EventType() string { return "state.changed" }

// ErrorEvent carries a device or transport failure.
type ErrorEvent struct {
	SessionID string `json:"session_id,omitempty"`
	// Message is the user-facing text.
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ErrorEvent) EventType() string { return "error" }

// AudioEvent is emitted for every scheduled model audio chunk.
type AudioEvent struct {
	Chunk playback.AudioChunk `json:"-"`
	// PCM is the raw little-endian int16 payload the chunk was decoded from.
	PCM       []byte  `json:"-"`
	StartTime float64 `json:"start_time"`
	Index     int64   `json:"index"`
}

func (e *AudioEvent) EventType() string { return "audio.scheduled" }

// TranscriptSource tells whose speech a transcript describes.
type TranscriptSource string

const (
	TranscriptModel TranscriptSource = "model"
	TranscriptUser  TranscriptSource = "user"
)

// TranscriptEvent is emitted for incremental transcript text.
type TranscriptEvent struct {
	Source TranscriptSource `json:"source"`
	Delta  string           `json:"delta"`
}

func (e *TranscriptEvent) EventType() string { return "transcript.delta" }

// InterruptedEvent is emitted when the model cuts its own turn short.
type InterruptedEvent struct{}

func (e *InterruptedEvent) EventType() string { return "response.interrupted" }

// TurnCompleteEvent is emitted when the model finishes a turn.
type TurnCompleteEvent struct{}

func (e *TurnCompleteEvent) EventType() string { return "turn.complete" }

// Callbacks receive controller events. Any field may be nil. Data callbacks
// run on the transport's receive goroutine in arrival order and must not
// block for long.
type Callbacks struct {
	OnStateChange  func(*StateChangedEvent)
	OnError        func(*ErrorEvent)
	OnAudio        func(*AudioEvent)
	OnTranscript   func(*TranscriptEvent)
	OnInterrupted  func(*InterruptedEvent)
	OnTurnComplete func(*TurnCompleteEvent)
}
