package live

import "context"

// Modality is a response modality requested from the model.
type Modality string

const (
	ModalityAudio Modality = "AUDIO"
	ModalityText  Modality = "TEXT"
)

// SessionConfig is what a transport needs to open a remote session.
type SessionConfig struct {
	Model             string     `json:"model" yaml:"model"`
	SystemInstruction string     `json:"system_instruction,omitempty" yaml:"system_instruction,omitempty"`
	Voice             string     `json:"voice,omitempty" yaml:"voice,omitempty"`
	Modalities        []Modality `json:"modalities,omitempty" yaml:"modalities,omitempty"`
	// InputTranscription asks the model to transcribe captured audio.
	InputTranscription bool `json:"input_transcription,omitempty" yaml:"input_transcription,omitempty"`
	// OutputTranscription asks the model to transcribe its own audio.
	OutputTranscription bool `json:"output_transcription,omitempty" yaml:"output_transcription,omitempty"`
}

// MediaFrame is one outbound realtime input blob.
type MediaFrame struct {
	Data     []byte
	MIMEType string
}

// AudioPayload is inbound model audio as delivered by the transport.
type AudioPayload struct {
	Data     []byte
	MIMEType string
}

// ServerMessage is one inbound message. Any combination of fields may be set.
type ServerMessage struct {
	Audio            *AudioPayload
	OutputTranscript string
	InputTranscript  string
	Interrupted      bool
	TurnComplete     bool
}

// Handler receives session lifecycle and data callbacks from a transport.
// A transport calls them from a single goroutine, in arrival order.
type Handler interface {
	OnOpen()
	OnMessage(msg *ServerMessage)
	OnClose(reason string)
	OnError(err error)
}

// Transport opens remote duplex sessions.
type Transport interface {
	// Connect opens a session. The handler may receive OnOpen before Connect
	// returns.
	Connect(ctx context.Context, cfg SessionConfig, h Handler) (Session, error)
}

// Session is an open remote session.
type Session interface {
	SendRealtimeInput(ctx context.Context, frame MediaFrame) error
	// SendText sends text as a complete user turn.
	SendText(ctx context.Context, text string) error
	Close() error
}
