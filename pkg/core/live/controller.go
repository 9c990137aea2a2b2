package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-go/livetutor/pkg/core/pcm"
	"github.com/vango-go/livetutor/pkg/core/playback"
	"github.com/vango-go/livetutor/pkg/metrics"
)

// OutputFactory opens the playback output for a new session.
type OutputFactory func(format pcm.Format) (playback.Output, error)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records session metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithOutputFactory sets how playback outputs are opened. The default is a
// wall-clock Discard output.
func WithOutputFactory(f OutputFactory) Option {
	return func(c *Controller) {
		if f != nil {
			c.newOutput = f
		}
	}
}

// WithCallbacks sets the initial callbacks.
func WithCallbacks(cb Callbacks) Option {
	return func(c *Controller) { c.callbacks = cb }
}

// WithSessionIDs overrides session ID generation.
func WithSessionIDs(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// Controller runs at most one duplex session at a time: it connects the
// transport, pumps captured audio out, and schedules model audio for playback.
type Controller struct {
	cfg       Config
	transport Transport
	capture   CaptureSource
	newOutput OutputFactory
	scheduler *playback.Scheduler
	logger    *slog.Logger
	metrics   *metrics.Metrics
	newID     func() string
	now       func() time.Time

	mu        sync.Mutex
	state     State
	gen       uint64
	active    *run
	callbacks Callbacks

	wg sync.WaitGroup
}

// New creates a controller. capture may be nil when every session runs with
// DisableCapture.
func New(cfg Config, transport Transport, capture CaptureSource, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg.withDefaults(),
		transport: transport,
		capture:   capture,
		logger:    slog.Default(),
		newID:     uuid.NewString,
		now:       time.Now,
		state:     StateIdle,
	}
	c.newOutput = func(pcm.Format) (playback.Output, error) {
		return playback.NewDiscard(nil), nil
	}
	for _, opt := range opts {
		opt(c)
	}
	c.scheduler = playback.NewScheduler(c.logger)
	return c
}

// SetCallbacks replaces the event callbacks.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.mu.Lock()
	c.callbacks = cb
	c.mu.Unlock()
}

// Config returns the effective configuration.
func (c *Controller) Config() Config { return c.cfg }

// State returns the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the ID of the current session, or "".
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.id
}

// PlaybackTime returns the playback output clock in seconds, or 0 when no
// output is attached.
func (c *Controller) PlaybackTime() float64 {
	if out := c.scheduler.Output(); out != nil {
		return out.CurrentTime()
	}
	return 0
}

// Start tears down any previous session and begins connecting a new one.
// It returns once the connect is in flight; progress is reported through
// callbacks. Cancelling ctx ends the session.
func (c *Controller) Start(ctx context.Context, opts StartOptions) error {
	c.mu.Lock()
	prev := c.active
	from := c.state
	c.active = nil
	c.mu.Unlock()

	if prev != nil {
		c.teardown(prev)
		c.metrics.RecordSessionEnd(c.cfg.Model, "replaced", c.now().Sub(prev.started))
	}

	out, err := c.newOutput(c.cfg.PlaybackFormat())
	if err != nil {
		err = fmt.Errorf("open playback output: %w", err)
		c.mu.Lock()
		c.state = StateError
		c.mu.Unlock()
		c.notifyState("", from, StateError)
		c.notifyError("", err)
		return err
	}

	c.mu.Lock()
	c.gen++
	r := newRun(ctx, c.newID(), c.gen, opts, c.cfg.OutboundQueue, c.now())
	r.output = out
	c.active = r
	to, _ := Transition(c.state, TriggerStart)
	c.state = to
	c.wg.Add(1)
	c.mu.Unlock()

	c.scheduler.Attach(out)
	c.metrics.RecordSessionStart()
	c.logger.Info("live session starting", "session_id", r.id, "gen", r.gen, "model", c.cfg.Model, "capture", !opts.DisableCapture)
	c.notifyState(r.id, from, to)

	timeout := opts.ConnectTimeout
	if timeout == 0 {
		timeout = c.cfg.ConnectTimeout
	}
	if timeout > 0 {
		r.setTimer(time.AfterFunc(timeout, func() {
			err := fmt.Errorf("connect timed out after %s: %w", timeout, context.DeadlineExceeded)
			c.end(r, TriggerError, NewTransportError("connect", err), "timeout", func(s State) bool {
				return s == StateConnecting
			})
		}))
	}

	r.group.Go(func() error { return c.connect(r) })
	r.group.Go(func() error { return c.sendLoop(r) })
	r.group.Go(func() error { return c.watch(ctx, r) })
	go func() {
		_ = r.group.Wait()
		c.wg.Done()
	}()
	return nil
}

// Stop ends the current session, cancelling a pending connect. It is a no-op
// when idle and safe to call repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.active
	from := c.state
	if r == nil && from == StateIdle {
		c.mu.Unlock()
		return
	}
	c.active = nil
	c.state = StateIdle
	c.mu.Unlock()

	id := ""
	if r != nil {
		id = r.id
		c.teardown(r)
		c.metrics.RecordSessionEnd(c.cfg.Model, "stopped", c.now().Sub(r.started))
	}
	c.notifyState(id, from, StateIdle)
}

// Shutdown stops the session and waits for every session goroutine to exit
// or ctx to end. It must not be called from a callback.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.Stop()
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues a realtime media frame. Frames sent while connecting are held
// and delivered in order once the session handle resolves.
func (c *Controller) Send(frame MediaFrame) error {
	return c.enqueue(outboundItem{frame: &frame})
}

// SendText queues text as a complete user turn.
func (c *Controller) SendText(text string) error {
	return c.enqueue(outboundItem{text: text, isText: true})
}

func (c *Controller) enqueue(item outboundItem) error {
	r := c.current()
	if r == nil {
		return ErrSessionClosed
	}
	err := r.enqueue(item)
	if errors.Is(err, ErrQueueFull) {
		c.metrics.RecordOutboundDrop()
		c.logger.Warn("live outbound queue full, dropping item", "session_id", r.id, "text", item.isText)
	}
	c.metrics.SetOutboundQueue(len(r.outbound))
	return err
}

func (c *Controller) current() *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// connect resolves the session handle. A handle that resolves after the run
// was torn down is closed at once.
func (c *Controller) connect(r *run) error {
	sc := SessionConfig{
		Model:               c.cfg.Model,
		SystemInstruction:   r.opts.SystemInstruction,
		Voice:               r.opts.Voice,
		Modalities:          []Modality{ModalityAudio},
		InputTranscription:  r.opts.InputTranscription,
		OutputTranscription: r.opts.OutputTranscription,
	}
	begin := c.now()
	sess, err := c.transport.Connect(r.ctx, sc, &sessionHandler{c: c, r: r})
	if err != nil {
		r.resolve(nil)
		if r.isDetached() {
			return nil
		}
		c.end(r, TriggerError, NewTransportError("connect", err), "error", nil)
		return nil
	}
	c.metrics.RecordConnect(c.now().Sub(begin))

	if !r.resolve(sess) {
		c.logger.Debug("live session resolved after teardown, closing", "session_id", r.id)
		if err := sess.Close(); err != nil {
			c.logger.Debug("live late session close failed", "session_id", r.id, "err", err)
		}
	}
	return nil
}

func (c *Controller) sendLoop(r *run) error {
	select {
	case <-r.ready:
	case <-r.ctx.Done():
		return nil
	}
	sess := r.resolvedSession()
	if sess == nil {
		return nil
	}
	for {
		select {
		case <-r.ctx.Done():
			return nil
		case item := <-r.outbound:
			c.metrics.SetOutboundQueue(len(r.outbound))
			var err error
			if item.isText {
				err = sess.SendText(r.ctx, item.text)
			} else {
				err = sess.SendRealtimeInput(r.ctx, *item.frame)
			}
			if err != nil {
				if r.ctx.Err() != nil {
					return nil
				}
				c.metrics.RecordError("send")
				c.logger.Warn("live send failed", "session_id", r.id, "err", err)
			}
		}
	}
}

// watch ends the run when the caller's context is done.
func (c *Controller) watch(parent context.Context, r *run) error {
	<-r.ctx.Done()
	err := parent.Err()
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		c.end(r, TriggerStop, nil, "cancelled", nil)
		return nil
	}
	c.end(r, TriggerError, NewTransportError("session", err), "timeout", nil)
	return nil
}

func (c *Controller) handleOpen(r *run) {
	c.mu.Lock()
	if c.active != r {
		c.mu.Unlock()
		return
	}
	from := c.state
	to, err := Transition(from, TriggerOpen)
	if err != nil {
		c.mu.Unlock()
		c.logger.Debug("live ignoring open", "session_id", r.id, "err", err)
		return
	}
	c.state = to
	if !r.opts.DisableCapture {
		r.group.Go(func() error { return c.runCapture(r) })
	}
	c.mu.Unlock()

	r.stopTimer()
	c.logger.Info("live session active", "session_id", r.id)
	c.notifyState(r.id, from, to)
}

func (c *Controller) runCapture(r *run) error {
	if c.capture == nil {
		c.end(r, TriggerError, &CaptureError{Err: ErrDeviceUnavailable}, "error", nil)
		return nil
	}
	stream, err := c.capture.Acquire(r.ctx, Constraints{
		SampleRate:       c.cfg.CaptureRate,
		Channels:         1,
		FrameSamples:     c.cfg.FrameSamples,
		EchoCancellation: true,
		NoiseSuppression: true,
	})
	if err != nil {
		if r.isDetached() {
			return nil
		}
		c.logger.Error("live capture acquisition failed", "session_id", r.id, "err", err)
		c.end(r, TriggerError, &CaptureError{Err: err}, "error", nil)
		return nil
	}
	if !r.attachStream(stream) {
		if err := stream.Release(); err != nil {
			c.logger.Debug("live late capture release failed", "session_id", r.id, "err", err)
		}
		return nil
	}
	return c.pump(r, stream)
}

// pump encodes captured frames and queues them without blocking.
func (c *Controller) pump(r *run, stream CaptureStream) error {
	mime := pcm.MIMEType(c.cfg.CaptureRate)
	frames := stream.Frames()
	for {
		select {
		case <-r.ctx.Done():
			return nil
		case samples, ok := <-frames:
			if !ok {
				return nil
			}
			data := pcm.EncodeFloatToPCM16(samples)
			if err := r.enqueue(outboundItem{frame: &MediaFrame{Data: data, MIMEType: mime}}); err != nil {
				if errors.Is(err, ErrSessionClosed) {
					return nil
				}
				c.metrics.RecordOutboundDrop()
				c.logger.Warn("live dropping capture frame", "session_id", r.id, "samples", len(samples), "err", err)
				continue
			}
			c.metrics.RecordAudio("out", len(data))
			c.metrics.SetOutboundQueue(len(r.outbound))
		}
	}
}

func (c *Controller) handleMessage(r *run, msg *ServerMessage) {
	if msg == nil {
		return
	}
	c.mu.Lock()
	if c.active != r {
		c.mu.Unlock()
		return
	}
	if _, err := Transition(c.state, TriggerMessage); err != nil {
		c.mu.Unlock()
		c.logger.Debug("live ignoring message", "session_id", r.id, "err", err)
		return
	}
	cb := c.callbacks
	c.mu.Unlock()

	if msg.Audio != nil && len(msg.Audio.Data) > 0 {
		c.playAudio(r, msg.Audio, cb)
	}
	if msg.OutputTranscript != "" && cb.OnTranscript != nil {
		cb.OnTranscript(&TranscriptEvent{Source: TranscriptModel, Delta: msg.OutputTranscript})
	}
	if msg.InputTranscript != "" && cb.OnTranscript != nil {
		cb.OnTranscript(&TranscriptEvent{Source: TranscriptUser, Delta: msg.InputTranscript})
	}
	if msg.Interrupted {
		c.scheduler.OnInterrupted()
		if out := c.scheduler.Output(); out != nil {
			out.Flush()
		}
		c.logger.Debug("live model interrupted", "session_id", r.id)
		if cb.OnInterrupted != nil {
			cb.OnInterrupted(&InterruptedEvent{})
		}
	}
	if msg.TurnComplete && cb.OnTurnComplete != nil {
		cb.OnTurnComplete(&TurnCompleteEvent{})
	}
}

func (c *Controller) playAudio(r *run, p *AudioPayload, cb Callbacks) {
	rate := pcm.ParseMIMERate(p.MIMEType, c.cfg.PlaybackRate)
	channels := c.cfg.PlaybackChannels
	samples, err := pcm.DecodePCM16ToFloat(p.Data, rate, channels)
	if err != nil {
		c.metrics.RecordChunk("malformed")
		c.logger.Warn("live dropping malformed audio chunk", "session_id", r.id, "bytes", len(p.Data), "err", err)
		return
	}
	chunk := playback.AudioChunk{
		Samples:    samples,
		SampleRate: rate,
		Channels:   channels,
		Index:      r.nextChunkIndex(),
	}
	start := c.scheduler.Schedule(chunk)
	c.metrics.RecordChunk("scheduled")
	c.metrics.RecordAudio("in", len(p.Data))
	if cb.OnAudio != nil {
		cb.OnAudio(&AudioEvent{Chunk: chunk, PCM: p.Data, StartTime: start, Index: chunk.Index})
	}
}

func (c *Controller) handleClose(r *run, reason string) {
	if c.end(r, TriggerClose, nil, "closed", nil) {
		c.logger.Info("live session closed", "session_id", r.id, "reason", reason)
	}
}

func (c *Controller) handleError(r *run, err error) {
	c.end(r, TriggerError, NewTransportError("receive", err), "error", nil)
}

// end removes r as the active run, applies t and tears r down. guard, when
// set, must accept the current state. It reports whether r was ended.
func (c *Controller) end(r *run, t Trigger, cause error, status string, guard func(State) bool) bool {
	c.mu.Lock()
	if c.active != r || (guard != nil && !guard(c.state)) {
		c.mu.Unlock()
		return false
	}
	from := c.state
	to, err := Transition(from, t)
	if err != nil {
		c.logger.Warn("live unexpected transition", "session_id", r.id, "err", err)
		to = StateIdle
		if cause != nil {
			to = StateError
		}
	}
	c.active = nil
	c.state = to
	c.mu.Unlock()

	c.teardown(r)
	c.metrics.RecordSessionEnd(c.cfg.Model, status, c.now().Sub(r.started))
	c.notifyState(r.id, from, to)
	if cause != nil {
		c.logger.Error("live session failed", "session_id", r.id, "err", cause)
		c.notifyError(r.id, cause)
	}
	return true
}

// teardown releases everything r holds. Steps run in order and each one runs
// even if an earlier step failed or panicked.
func (c *Controller) teardown(r *run) {
	var errs []error
	step := func(name string, fn func() error) {
		defer func() {
			if p := recover(); p != nil {
				errs = append(errs, fmt.Errorf("%s: panic: %v", name, p))
			}
		}()
		if err := fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("stop capture pump", func() error {
		r.stopTimer()
		r.cancel()
		return nil
	})
	step("detach processing", func() error {
		r.detach()
		return nil
	})
	step("release capture device", func() error {
		if s := r.takeStream(); s != nil {
			return s.Release()
		}
		return nil
	})
	step("close output", func() error {
		if r.output != nil {
			return r.output.Close()
		}
		return nil
	})
	step("reset playback cursor", func() error {
		c.scheduler.Detach(r.output)
		return nil
	})
	step("close remote session", func() error {
		if s := r.takeSession(); s != nil {
			return s.Close()
		}
		return nil
	})

	if err := errors.Join(errs...); err != nil {
		c.metrics.RecordError("teardown")
		c.logger.Debug("live teardown finished with errors", "session_id", r.id, "err", err)
	}
}

func (c *Controller) notifyState(id string, from, to State) {
	if from == to {
		return
	}
	c.metrics.RecordTransition(from.String(), to.String())
	c.logger.Debug("live state changed", "session_id", id, "from", from, "to", to)
	c.mu.Lock()
	cb := c.callbacks.OnStateChange
	c.mu.Unlock()
	if cb != nil {
		cb(&StateChangedEvent{SessionID: id, From: from, To: to})
	}
}

func (c *Controller) notifyError(id string, err error) {
	c.metrics.RecordError(errorType(err))
	c.mu.Lock()
	cb := c.callbacks.OnError
	c.mu.Unlock()
	if cb != nil {
		cb(&ErrorEvent{SessionID: id, Message: UserMessage(err), Err: err})
	}
}

func errorType(err error) string {
	var ce *CaptureError
	var te *TransportError
	switch {
	case errors.As(err, &ce):
		return "capture"
	case errors.As(err, &te):
		return "transport"
	default:
		return "other"
	}
}

// sessionHandler binds transport callbacks to one run so callbacks from a
// replaced session are ignored.
type sessionHandler struct {
	c *Controller
	r *run
}

func (h *sessionHandler) OnOpen()                      { h.c.handleOpen(h.r) }
func (h *sessionHandler) OnMessage(msg *ServerMessage) { h.c.handleMessage(h.r, msg) }
func (h *sessionHandler) OnClose(reason string)        { h.c.handleClose(h.r, reason) }
func (h *sessionHandler) OnError(err error)            { h.c.handleError(h.r, err) }
