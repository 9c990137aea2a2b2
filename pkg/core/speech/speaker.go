// Package speech uses a live session as a text-to-speech and speech-to-text
// engine. A Speaker has the model read a list of lines in one session, splits
// the streamed audio back into per-line segments and caches them; a
// Transcriber accumulates what the microphone heard.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/livetutor/pkg/core/align"
	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/pcm"
	"github.com/vango-go/livetutor/pkg/metrics"
)

// TriggerText is sent as the user turn that starts the reading.
const TriggerText = "Play"

// TimeoutMessage is reported when the model never finishes its turn.
const TimeoutMessage = "session timeout - no response from model"

// DefaultTimeout bounds one Speak call.
const DefaultTimeout = 5 * time.Minute

var (
	// ErrAborted is returned when the caller's context ends mid-speech.
	ErrAborted = errors.New("speech: aborted")
	// ErrTimeout is returned when the model does not finish in time.
	ErrTimeout = errors.New("speech: " + TimeoutMessage)
	// ErrBusy is returned when Speak is called while another call runs.
	ErrBusy = errors.New("speech: speaker busy")
	// ErrEndedEarly is returned when the session closes before the model
	// completes its turn.
	ErrEndedEarly = errors.New("speech: session ended before turn complete")
)

// Runner is the part of live.Controller a Speaker or Transcriber drives.
type Runner interface {
	Start(ctx context.Context, opts live.StartOptions) error
	Stop()
	SendText(text string) error
	SetCallbacks(cb live.Callbacks)
	PlaybackTime() float64
	State() live.State
}

// SpeakOptions configure one Speak call. Callbacks may be nil.
type SpeakOptions struct {
	Voice string

	// OnLineStart fires when playback reaches the start of a line.
	OnLineStart func(index int, text string)
	// OnLineComplete fires for every line whose audio was cached.
	OnLineComplete func(index int, samples []int16)
	// OnStatus reports coarse progress.
	OnStatus func(status string)
}

// Result describes a finished Speak call.
type Result struct {
	Complete   bool
	Error      string
	Segments   [][]int16
	Mapping    align.Map
	Mode       align.SplitMode
	Transcript string
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records cache metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// WithAligner replaces the default aligner.
func WithAligner(a *align.Aligner) Option {
	return func(s *Speaker) {
		if a != nil {
			s.aligner = a
		}
	}
}

// WithTimeout bounds each Speak call.
func WithTimeout(d time.Duration) Option {
	return func(s *Speaker) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithVoice sets the default voice.
func WithVoice(v string) Option {
	return func(s *Speaker) { s.voice = v }
}

// WithCache shares a cache instead of creating one.
func WithCache(c *LineCache) Option {
	return func(s *Speaker) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithSplitMode forces one split track instead of picking the one that found
// more boundaries.
func WithSplitMode(m align.SplitMode) Option {
	return func(s *Speaker) { s.forced = &m }
}

// Speaker reads lines aloud through a live session and caches each line's
// audio.
type Speaker struct {
	runner  Runner
	aligner *align.Aligner
	cache   *LineCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
	voice   string
	forced  *align.SplitMode
	rate    int
	tick    time.Duration

	busy sync.Mutex
}

// NewSpeaker creates a Speaker. sampleRate is the model audio rate.
func NewSpeaker(runner Runner, sampleRate int, opts ...Option) *Speaker {
	s := &Speaker{
		runner:  runner,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
		rate:    sampleRate,
		tick:    20 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.aligner == nil {
		s.aligner = align.New(align.DefaultConfig(), s.logger)
	}
	if s.cache == nil {
		s.cache = NewLineCache(sampleRate)
	}
	return s
}

// Cache returns the speaker's line cache.
func (s *Speaker) Cache() *LineCache { return s.cache }

type outcomeKind int

const (
	outcomeTurnComplete outcomeKind = iota
	outcomeError
	outcomeClosed
)

type outcome struct {
	kind outcomeKind
	msg  string
	err  error
}

// Speak reads lines in one session, replacing whatever the cache held. It
// returns after the model finished and playback drained, or on error, timeout
// or ctx cancellation. On cancellation the audio received so far is still
// segmented and cached.
func (s *Speaker) Speak(ctx context.Context, lines []Line, opts SpeakOptions) (*Result, error) {
	if len(lines) == 0 {
		return &Result{Complete: true}, nil
	}
	if !s.busy.TryLock() {
		return nil, ErrBusy
	}
	defer s.busy.Unlock()
	// The cache belongs to this session; entries from a previous script
	// would carry stale line indexes.
	s.cache.Clear()

	voice := opts.Voice
	if voice == "" {
		voice = s.voice
	}
	if voice == "" && lines[0].Voice != "" {
		voice = lines[0].Voice
	}

	st := newSpeaking(s, lines, opts)
	s.runner.SetCallbacks(st.callbacks())
	defer s.runner.SetCallbacks(live.Callbacks{})

	st.status("CONNECTING")
	err := s.runner.Start(context.WithoutCancel(ctx), live.StartOptions{
		SystemInstruction:   Instruction(lines),
		Voice:               voice,
		DisableCapture:      true,
		OutputTranscription: true,
	})
	if err != nil {
		return &Result{Error: err.Error()}, err
	}
	if err := s.runner.SendText(TriggerText); err != nil {
		s.runner.Stop()
		return &Result{Error: err.Error()}, err
	}
	st.status("TRIGGERING")

	stopCues := make(chan struct{})
	cuesDone := make(chan struct{})
	go st.cueLoop(stopCues, cuesDone)
	defer func() {
		close(stopCues)
		<-cuesDone
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case o := <-st.done:
		switch o.kind {
		case outcomeTurnComplete:
			res := st.finalize(true)
			st.status("PLAYING")
			st.drain(ctx, timer.C)
			s.runner.Stop()
			res.Complete = true
			return res, nil
		case outcomeError:
			s.runner.Stop()
			return &Result{Error: o.msg, Transcript: st.transcript()}, o.err
		default:
			res := st.finalize(false)
			res.Error = ErrEndedEarly.Error()
			return res, ErrEndedEarly
		}
	case <-ctx.Done():
		s.runner.Stop()
		res := st.finalize(false)
		res.Error = "ABORTED"
		s.logger.Info("speech aborted", "segments", len(res.Segments), "cached", res.Mapping.Matched())
		return res, ErrAborted
	case <-timer.C:
		s.runner.Stop()
		s.logger.Warn("speech timed out", "timeout", s.timeout)
		return &Result{Error: TimeoutMessage, Transcript: st.transcript()}, ErrTimeout
	}
}

// speaking is the state of one Speak call. Callbacks arrive on the
// transport goroutine; the caller goroutine finalizes.
type speaking struct {
	sp    *Speaker
	lines []Line
	texts []string
	opts  SpeakOptions
	done  chan outcome

	mu        sync.Mutex
	seg       *Segmenter
	hl        *highlighter
	cues      cueQueue
	tl        timeline
	finalized bool
}

func newSpeaking(sp *Speaker, lines []Line, opts SpeakOptions) *speaking {
	texts := Texts(lines)
	return &speaking{
		sp:    sp,
		lines: lines,
		texts: texts,
		opts:  opts,
		done:  make(chan outcome, 1),
		seg:   NewSegmenter(),
		hl:    newHighlighter(texts),
	}
}

func (st *speaking) signal(o outcome) {
	select {
	case st.done <- o:
	default:
	}
}

func (st *speaking) status(s string) {
	if st.opts.OnStatus != nil {
		st.opts.OnStatus(s)
	}
}

func (st *speaking) callbacks() live.Callbacks {
	return live.Callbacks{
		OnAudio:      st.onAudio,
		OnTranscript: st.onTranscript,
		OnTurnComplete: func(*live.TurnCompleteEvent) {
			st.signal(outcome{kind: outcomeTurnComplete})
		},
		OnError: func(e *live.ErrorEvent) {
			st.signal(outcome{kind: outcomeError, msg: e.Message, err: e.Err})
		},
		OnStateChange: func(e *live.StateChangedEvent) {
			if e.To == live.StateActive {
				st.status("STREAMING")
			}
			if e.To == live.StateIdle {
				st.signal(outcome{kind: outcomeClosed})
			}
		},
	}
}

func (st *speaking) onAudio(e *live.AudioEvent) {
	samples := pcm.PCM16ToInt16(e.PCM)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.finalized {
		return
	}
	pos := st.seg.Samples()
	st.seg.AddAudio(samples)
	st.tl.add(pos, e.StartTime, e.Chunk.SampleRate, e.Chunk.Frames())
	if line, ok := st.hl.start(); ok {
		st.cues.push(lineStart{line: line, at: st.tl.timeOf(0)})
	}
}

func (st *speaking) onTranscript(e *live.TranscriptEvent) {
	if e.Source != live.TranscriptModel {
		return
	}
	st.mu.Lock()
	if st.finalized {
		st.mu.Unlock()
		return
	}
	langB, nlB := st.seg.AddTranscript(e.Delta)
	transcript := st.seg.Transcript()
	if langB || nlB {
		if line, ok := st.hl.boundary(transcript); ok {
			st.cues.push(lineStart{line: line, at: st.tl.timeOf(st.seg.Samples())})
		}
	}
	line, jump := st.hl.ongoing(transcript)
	st.mu.Unlock()

	if jump {
		st.sp.logger.Debug("speech highlight corrected", "line", line)
		st.fireLine(line)
	}
}

func (st *speaking) fireLine(line int) {
	if st.opts.OnLineStart != nil && line >= 0 && line < len(st.lines) {
		st.opts.OnLineStart(line, st.lines[line].Text)
	}
}

// cueLoop fires highlights as the playback clock reaches them.
func (st *speaking) cueLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(st.sp.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			now := st.sp.runner.PlaybackTime()
			st.mu.Lock()
			due := st.cues.due(now)
			st.mu.Unlock()
			for _, c := range due {
				st.fireLine(c.line)
			}
		}
	}
}

// drain waits for scheduled audio to finish playing, or for the session to
// end and take the output with it.
func (st *speaking) drain(ctx context.Context, timeout <-chan time.Time) {
	st.mu.Lock()
	end := st.tl.end
	st.mu.Unlock()
	ticker := time.NewTicker(st.sp.tick)
	defer ticker.Stop()
	for st.sp.runner.State() == live.StateActive && st.sp.runner.PlaybackTime() < end {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			return
		case <-ticker.C:
		}
	}
}

func (st *speaking) transcript() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.seg.Transcript()
}

type completion struct {
	line    int
	samples []int16
}

// finalize splits the received audio into segments, maps them to lines and
// caches every usable one. trailing includes the audio after the last
// boundary, which is only known to be complete at turn end.
func (st *speaking) finalize(trailing bool) *Result {
	st.mu.Lock()
	st.finalized = true
	sp := st.sp
	audio := st.seg.Audio()
	res := &Result{Transcript: st.seg.Transcript()}
	var done []completion

	if len(st.lines) == 1 && len(audio) >= minSegmentSamples && trailing {
		res.Segments = [][]int16{audio}
		res.Mapping = align.Map{0}
		sp.cache.Put(st.lines[0], 0, audio)
		sp.metrics.RecordLineCached()
		done = append(done, completion{0, audio})
	} else {
		if sp.forced != nil {
			res.Mode = *sp.forced
			res.Segments = st.seg.SegmentsFor(res.Mode, trailing)
		} else {
			res.Segments, res.Mode = st.seg.Segments(trailing)
		}
		res.Mapping = sp.aligner.Map(st.texts, res.Transcript, len(res.Segments), res.Mode)

		maxSamples := 3 * float64(len(audio)) / float64(max(len(st.lines), 1))
		for i, seg := range res.Segments {
			line := res.Mapping[i]
			switch {
			case len(seg) < minSegmentSamples:
				sp.metrics.RecordSegmentSkipped("short")
			case float64(len(seg)) > maxSamples:
				sp.metrics.RecordSegmentSkipped("oversized")
				sp.logger.Debug("speech segment too long", "segment", i,
					"seconds", float64(len(seg))/float64(sp.rate),
					"avg_seconds", float64(len(audio))/float64(max(len(st.lines), 1))/float64(sp.rate))
			case line == align.Unmatched || line >= len(st.lines):
				sp.metrics.RecordSegmentSkipped("unmatched")
			default:
				sp.cache.Put(st.lines[line], line, seg)
				sp.metrics.RecordLineCached()
				done = append(done, completion{line, seg})
			}
		}
	}
	langPts, nlPts := st.seg.SplitCounts()
	st.mu.Unlock()

	sp.logger.Debug("speech finalized",
		"samples", len(audio), "segments", len(res.Segments), "mode", res.Mode,
		"lang_splits", langPts, "newline_splits", nlPts,
		"mapping", []int(res.Mapping), "cached", len(done))
	if st.opts.OnLineComplete != nil {
		for _, c := range done {
			st.opts.OnLineComplete(c.line, c.samples)
		}
	}
	return res
}
