// Package geminiws implements live.Transport directly on the Gemini Live
// websocket protocol, without the genai SDK.
package geminiws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/livetutor/pkg/core/live"
)

// DefaultEndpoint is the public BidiGenerateContent websocket endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// Config configures the websocket transport.
type Config struct {
	Endpoint         string
	APIKey           string
	Voice            string
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	HandshakeTimeout time.Duration
	// QueueSize bounds frames waiting for the writer.
	QueueSize int
}

// Transport dials one websocket per session.
type Transport struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
}

// New creates a transport. Zero config fields take defaults.
func New(cfg Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Voice == "" {
		cfg.Voice = "Kore"
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 20 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Transport{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		logger: logger,
	}
}

// Connect dials the endpoint and sends the setup message. OnOpen fires when
// the server acknowledges setup.
func (t *Transport) Connect(ctx context.Context, cfg live.SessionConfig, h live.Handler) (live.Session, error) {
	if h == nil {
		return nil, errors.New("geminiws: handler is required")
	}
	u, err := url.Parse(t.cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("geminiws: invalid endpoint: %w", err)
	}
	if t.cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", t.cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("geminiws: dial: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("geminiws: dial: %w", err)
	}

	setup, err := json.Marshal(newSetup(cfg, t.cfg.Voice))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("geminiws: encode setup: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("geminiws: send setup: %w", err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:    conn,
		handler: h,
		logger:  t.logger.With("model", cfg.Model),
		ctx:     sctx,
		cancel:  cancel,
		frames:  make(chan []byte, t.cfg.QueueSize),
	}
	w := &writer{
		ws:           conn,
		ctx:          sctx,
		frames:       s.frames,
		pingInterval: t.cfg.PingInterval,
		writeTimeout: t.cfg.WriteTimeout,
	}
	go func() {
		if err := w.run(); err != nil && !s.closing.Load() {
			s.logger.Debug("geminiws writer stopped", "error", err)
			_ = conn.Close()
		}
	}()
	go s.readLoop()
	return s, nil
}

type session struct {
	conn    *websocket.Conn
	handler live.Handler
	logger  *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	frames  chan []byte
	closing atomic.Bool
	once    sync.Once
}

func (s *session) readLoop() {
	defer s.cancel()
	opened := false
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.handler.OnClose(closeReason(err))
			} else {
				s.handler.OnError(err)
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("geminiws ignoring undecodable server message", "bytes", len(data), "error", err)
			continue
		}
		if msg.Error != nil {
			s.handler.OnError(fmt.Errorf("geminiws: server error %d %s: %s", msg.Error.Code, msg.Error.Status, msg.Error.Message))
			return
		}
		if msg.SetupComplete != nil && !opened {
			opened = true
			s.handler.OnOpen()
		}
		if msg.GoAway != nil {
			s.logger.Warn("geminiws server going away", "time_left", msg.GoAway.TimeLeft)
		}
		msgs, bad := translate(msg.ServerContent)
		if bad > 0 {
			s.logger.Warn("geminiws skipped audio parts with invalid base64", "parts", bad)
		}
		for _, m := range msgs {
			s.handler.OnMessage(m)
		}
	}
}

func (s *session) send(ctx context.Context, m *clientMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return live.ErrSessionClosed
	}
	select {
	case s.frames <- data:
		return nil
	case <-s.ctx.Done():
		return live.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) SendRealtimeInput(ctx context.Context, frame live.MediaFrame) error {
	return s.send(ctx, newRealtimeInput(frame))
}

func (s *session) SendText(ctx context.Context, text string) error {
	return s.send(ctx, newUserTurn(text))
}

// Close stops the writer, which sends a close frame and closes the socket.
func (s *session) Close() error {
	s.once.Do(func() {
		s.closing.Store(true)
		s.cancel()
	})
	return nil
}

func closeReason(err error) string {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Text != "" {
		return ce.Text
	}
	return "closed"
}
