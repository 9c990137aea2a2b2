package live

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"device", fmt.Errorf("open: %w", ErrDeviceUnavailable), MicrophoneFailedMessage},
		{"permission", &CaptureError{Err: ErrPermissionDenied}, MicrophoneFailedMessage},
		{"transport", NewTransportError("receive", errors.New("websocket: close 1011 (internal server error)")), "websocket: close 1011 (internal server error)"},
		{"other", context.DeadlineExceeded, "context deadline exceeded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Fatalf("UserMessage=%q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTransportErrorKeepsExisting(t *testing.T) {
	inner := &TransportError{Op: "connect", Message: "quota exceeded"}
	got := NewTransportError("receive", fmt.Errorf("wrapped: %w", inner))
	if got != inner {
		t.Fatalf("expected existing TransportError to be returned")
	}

	cause := errors.New("boom")
	te := NewTransportError("send", cause)
	if !errors.Is(te, cause) || te.Op != "send" {
		t.Fatalf("unexpected TransportError %+v", te)
	}
}
