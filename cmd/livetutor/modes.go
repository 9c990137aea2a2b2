package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-go/livetutor/pkg/config"
	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/speech"
)

// transcriptPrinter writes streamed transcripts, starting a new labelled
// line whenever the speaker changes.
type transcriptPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	last live.TranscriptSource
}

func (p *transcriptPrinter) delta(src live.TranscriptSource, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if src != p.last {
		if p.last != "" {
			fmt.Fprintln(p.w)
		}
		label := "model"
		if src == live.TranscriptUser {
			label = "you"
		}
		fmt.Fprintf(p.w, "%s: ", label)
		p.last = src
	}
	fmt.Fprint(p.w, text)
}

func (p *transcriptPrinter) note(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != "" {
		fmt.Fprintln(p.w)
		p.last = ""
	}
	fmt.Fprintln(p.w, s)
}

func (p *transcriptPrinter) endTurn() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last != "" {
		fmt.Fprintln(p.w)
		p.last = ""
	}
}

// runConversation streams the microphone to the model until ctx ends or the
// session closes or fails. Lines typed on stdin are sent as text turns.
func runConversation(ctx context.Context, logger *slog.Logger, opt options, cfg config.Config, ctrl *live.Controller, stdin io.Reader, stdout io.Writer) error {
	out := &transcriptPrinter{w: stdout}
	failed := make(chan string, 1)
	closed := make(chan struct{}, 1)
	voice := opt.voice
	if voice == "" {
		voice = cfg.Voice
	}

	ctrl.SetCallbacks(live.Callbacks{
		OnStateChange: func(e *live.StateChangedEvent) {
			logger.Debug("conversation state", "from", e.From, "to", e.To)
			if e.To == live.StateActive {
				out.note("[listening]")
			}
			if e.To == live.StateIdle && e.From != live.StateIdle {
				select {
				case closed <- struct{}{}:
				default:
				}
			}
		},
		OnError: func(e *live.ErrorEvent) {
			select {
			case failed <- e.Message:
			default:
			}
		},
		OnTranscript: func(e *live.TranscriptEvent) {
			out.delta(e.Source, e.Delta)
		},
		OnInterrupted: func(*live.InterruptedEvent) {
			out.note("[interrupted]")
		},
		OnTurnComplete: func(*live.TurnCompleteEvent) {
			out.endTurn()
		},
	})

	if err := ctrl.Start(ctx, live.StartOptions{
		SystemInstruction:   opt.system,
		Voice:               voice,
		InputTranscription:  true,
		OutputTranscription: true,
	}); err != nil {
		return err
	}

	if stdin != nil {
		go func() {
			sc := bufio.NewScanner(stdin)
			for sc.Scan() {
				text := strings.TrimSpace(sc.Text())
				if text == "" {
					continue
				}
				if err := ctrl.SendText(text); err != nil {
					logger.Warn("text turn dropped", "err", err)
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		ctrl.Stop()
		return nil
	case msg := <-failed:
		ctrl.Stop()
		return fmt.Errorf("session failed: %s", msg)
	case <-closed:
		out.note("[session closed]")
		logger.Info("conversation ended by server")
		return nil
	}
}

// runSTT prints what the microphone hears until ctx ends or the session
// ends.
func runSTT(ctx context.Context, logger *slog.Logger, opt options, ctrl *live.Controller, stdout io.Writer) error {
	tr := speech.NewTranscriber(ctrl, logger)
	var (
		mu      sync.Mutex
		printed int
	)
	tr.OnUpdate(func(transcript string) {
		mu.Lock()
		defer mu.Unlock()
		if len(transcript) > printed {
			fmt.Fprint(stdout, transcript[printed:])
			printed = len(transcript)
		}
	})

	ended := make(chan struct{}, 1)
	signal := func() {
		select {
		case ended <- struct{}{}:
		default:
		}
	}
	tr.OnError(func(string) { signal() })
	tr.OnClose(signal)

	if err := tr.Start(ctx, opt.system); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-ended:
	}
	tr.Stop()
	fmt.Fprintln(stdout)
	if msg := tr.Err(); msg != "" {
		return fmt.Errorf("transcription failed: %s", msg)
	}
	logger.Info("transcription finished", "chars", len(tr.Transcript()))
	return nil
}
