package live

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable means no capture device could be opened.
	ErrDeviceUnavailable = errors.New("live: capture device unavailable")
	// ErrPermissionDenied means the platform refused microphone access.
	ErrPermissionDenied = errors.New("live: capture permission denied")
	// ErrSessionClosed is returned by sends when no session exists.
	ErrSessionClosed = errors.New("live: session closed")
	// ErrQueueFull is returned when the outbound queue cannot take more items.
	ErrQueueFull = errors.New("live: outbound queue full")
)

// MicrophoneFailedMessage is the user-facing text for capture failures.
const MicrophoneFailedMessage = "microphone access failed"

// TransportError wraps a failure reported by the remote channel.
type TransportError struct {
	// Op is the operation that failed: "connect", "send", "receive", or
	// "session" when the caller's deadline ended the session.
	Op string
	// Message is the raw transport message, shown to users as is.
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return "live: transport: " + e.Message
	}
	return fmt.Sprintf("live: transport %s: %s", e.Op, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError for op. An err that already
// is a TransportError is returned unchanged.
func NewTransportError(op string, err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	msg := "unknown transport error"
	if err != nil {
		msg = err.Error()
	}
	return &TransportError{Op: op, Message: msg, Err: err}
}

// CaptureError wraps a capture acquisition failure.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return MicrophoneFailedMessage + ": " + e.Err.Error()
}

func (e *CaptureError) Unwrap() error { return e.Err }

// UserMessage maps err to the text shown to a user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var ce *CaptureError
	if errors.As(err, &ce) || errors.Is(err, ErrDeviceUnavailable) || errors.Is(err, ErrPermissionDenied) {
		return MicrophoneFailedMessage
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
