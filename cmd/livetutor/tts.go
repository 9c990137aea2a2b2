package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vango-go/livetutor/pkg/config"
	"github.com/vango-go/livetutor/pkg/core/align"
	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/speech"
	"github.com/vango-go/livetutor/pkg/metrics"
)

// watchDebounce collapses the burst of events an editor save produces.
const watchDebounce = 300 * time.Millisecond

func newSpeaker(logger *slog.Logger, cfg config.Config, ctrl *live.Controller, m *metrics.Metrics) *speech.Speaker {
	opts := []speech.Option{
		speech.WithLogger(logger),
		speech.WithMetrics(m),
		speech.WithAligner(align.New(cfg.Aligner(), logger)),
		speech.WithTimeout(cfg.TTSTimeout),
	}
	if mode, ok := cfg.ForcedSplit(); ok {
		opts = append(opts, speech.WithSplitMode(mode))
	}
	return speech.NewSpeaker(ctrl, cfg.PlaybackRate, opts...)
}

func runTTS(ctx context.Context, logger *slog.Logger, opt options, cfg config.Config, ctrl *live.Controller, m *metrics.Metrics, stdout io.Writer) error {
	sp := newSpeaker(logger, cfg, ctrl, m)
	if !opt.watch {
		return speakScript(ctx, logger, opt, cfg, sp, stdout)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch script: %w", err)
	}
	defer w.Close()
	// Editors often replace the file, so the directory is watched.
	target := filepath.Clean(opt.script)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch script: %w", err)
	}

	if err := speakScript(ctx, logger, opt, cfg, sp, stdout); err != nil {
		logger.Error("speak failed", "err", err)
	}
	fmt.Fprintf(stdout, "watching %s\n", target)

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			debounce = time.After(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("script watcher error", "err", err)
		case <-debounce:
			debounce = nil
			logger.Info("script changed", "path", target)
			if err := speakScript(ctx, logger, opt, cfg, sp, stdout); err != nil {
				logger.Error("speak failed", "err", err)
			}
		}
	}
}

// speakScript loads the script, speaks every line and exports the cache when
// a dump directory is set. Cancellation is not an error.
func speakScript(ctx context.Context, logger *slog.Logger, opt options, cfg config.Config, sp *speech.Speaker, stdout io.Writer) error {
	script, err := speech.LoadScript(opt.script)
	if err != nil {
		return err
	}
	voice := opt.voice
	if voice == "" {
		voice = script.Voice
	}
	if voice == "" {
		voice = cfg.Voice
	}

	res, err := sp.Speak(ctx, script.Lines, speech.SpeakOptions{
		Voice: voice,
		OnLineStart: func(i int, text string) {
			fmt.Fprintf(stdout, "> %d. %s\n", i+1, text)
		},
		OnLineComplete: func(i int, samples []int16) {
			logger.Debug("line cached", "line", i, "samples", len(samples))
		},
		OnStatus: func(s string) {
			logger.Debug("tts status", "status", s)
		},
	})
	if res != nil {
		fmt.Fprintf(stdout, "cached %d/%d lines\n", res.Mapping.Matched(), len(script.Lines))
	}
	if err != nil && !(errors.Is(err, speech.ErrAborted) && ctx.Err() != nil) {
		return err
	}

	if opt.dumpDir == "" || sp.Cache().Len() == 0 {
		return nil
	}
	var paths []string
	if opt.format == "mp3" {
		paths, err = sp.Cache().ExportMP3(opt.dumpDir)
	} else {
		paths, err = sp.Cache().ExportWAV(opt.dumpDir)
	}
	if err != nil {
		return err
	}
	logger.Info("line cache exported", "dir", opt.dumpDir, "files", len(paths), "format", opt.format)
	return nil
}
