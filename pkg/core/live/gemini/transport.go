// Package gemini implements live.Transport on the google.golang.org/genai
// Live API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/vango-go/livetutor/pkg/core/live"
)

// DefaultVoice is the prebuilt voice used when none is configured.
const DefaultVoice = "Kore"

// liveSession is the part of *genai.Session the transport uses.
type liveSession interface {
	SendRealtimeInput(input genai.LiveRealtimeInput) error
	SendClientContent(input genai.LiveClientContentInput) error
	Receive() (*genai.LiveServerMessage, error)
	Close() error
}

type dialFunc func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error)

// Transport opens Live sessions through a genai client.
type Transport struct {
	dial   dialFunc
	logger *slog.Logger
}

// New creates a transport on an existing client.
func New(client *genai.Client, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		dial: func(ctx context.Context, model string, cfg *genai.LiveConnectConfig) (liveSession, error) {
			return client.Live.Connect(ctx, model, cfg)
		},
		logger: logger,
	}
}

// NewFromAPIKey creates a genai client for the Gemini API backend.
func NewFromAPIKey(ctx context.Context, apiKey string, logger *slog.Logger) (*Transport, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return New(client, logger), nil
}

// Connect implements live.Transport. OnOpen fires when the first server
// message (normally setupComplete) arrives.
func (t *Transport) Connect(ctx context.Context, cfg live.SessionConfig, h live.Handler) (live.Session, error) {
	if h == nil {
		return nil, errors.New("gemini: handler is required")
	}
	ls, err := t.dial(ctx, cfg.Model, ConnectConfig(cfg))
	if err != nil {
		return nil, err
	}
	s := &session{
		ls:      ls,
		handler: h,
		logger:  t.logger.With("model", cfg.Model),
		done:    make(chan struct{}),
	}
	go s.receiveLoop()
	return s, nil
}

// ConnectConfig maps a session config onto the genai connect config.
func ConnectConfig(cfg live.SessionConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{}
	modalities := cfg.Modalities
	if len(modalities) == 0 {
		modalities = []live.Modality{live.ModalityAudio}
	}
	for _, m := range modalities {
		lc.ResponseModalities = append(lc.ResponseModalities, genai.Modality(m))
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	lc.SpeechConfig = &genai.SpeechConfig{
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
		},
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

// Translate splits one server message into handler messages. Every inline
// audio part becomes its own message, in part order; transcripts and turn
// flags follow in a trailing message.
func Translate(msg *genai.LiveServerMessage) []*live.ServerMessage {
	if msg == nil || msg.ServerContent == nil {
		return nil
	}
	sc := msg.ServerContent
	var out []*live.ServerMessage
	var text strings.Builder
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				out = append(out, &live.ServerMessage{Audio: &live.AudioPayload{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				}})
				continue
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}

	tail := &live.ServerMessage{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.OutputTranscription != nil {
		tail.OutputTranscript = sc.OutputTranscription.Text
	}
	tail.OutputTranscript += text.String()
	if sc.InputTranscription != nil {
		tail.InputTranscript = sc.InputTranscription.Text
	}
	if tail.Interrupted || tail.TurnComplete || tail.OutputTranscript != "" || tail.InputTranscript != "" {
		out = append(out, tail)
	}
	return out
}

type session struct {
	ls      liveSession
	handler live.Handler
	logger  *slog.Logger

	sendMu  sync.Mutex
	closing atomic.Bool
	once    sync.Once
	done    chan struct{}
}

func (s *session) receiveLoop() {
	defer close(s.done)
	opened := false
	for {
		msg, err := s.ls.Receive()
		if err != nil {
			if s.closing.Load() || isNormalClose(err) {
				s.handler.OnClose(closeReason(err))
			} else {
				s.handler.OnError(err)
			}
			return
		}
		if !opened {
			opened = true
			s.handler.OnOpen()
		}
		if msg.GoAway != nil {
			s.logger.Warn("live server going away", "time_left", msg.GoAway.TimeLeft)
		}
		for _, m := range Translate(msg) {
			s.handler.OnMessage(m)
		}
	}
}

func (s *session) SendRealtimeInput(ctx context.Context, frame live.MediaFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closing.Load() {
		return live.ErrSessionClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.ls.SendRealtimeInput(genai.LiveRealtimeInput{
		Audio: &genai.Blob{Data: frame.Data, MIMEType: frame.MIMEType},
	})
}

func (s *session) SendText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.closing.Load() {
		return live.ErrSessionClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.ls.SendClientContent(genai.LiveClientContentInput{
		Turns:        []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		TurnComplete: genai.Ptr(true),
	})
}

func (s *session) Close() error {
	var err error
	s.once.Do(func() {
		s.closing.Store(true)
		err = s.ls.Close()
	})
	return err
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Text != "" {
		return ce.Text
	}
	return "closed"
}
