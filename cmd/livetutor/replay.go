package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vango-go/livetutor/pkg/config"
	"github.com/vango-go/livetutor/pkg/core/pcm"
	"github.com/vango-go/livetutor/pkg/core/playback"
	"github.com/vango-go/livetutor/pkg/core/speech"
)

// runReplay plays every cached line in order without contacting the model.
func runReplay(ctx context.Context, logger *slog.Logger, opt options, _ config.Config, deps cliDeps) error {
	cache, err := speech.LoadDir(opt.dumpDir)
	if err != nil {
		return err
	}
	if cache.Len() == 0 {
		return fmt.Errorf("no cached lines in %s", opt.dumpDir)
	}

	format := pcm.Format{SampleRate: cache.SampleRate(), Channels: 1, BitsPerSample: 16}
	var out playback.Output
	if opt.noSpeaker {
		out = playback.NewDiscard(nil)
	} else if out, err = deps.openOutput(format, logger); err != nil {
		return fmt.Errorf("open playback output: %w", err)
	}
	sched := playback.NewScheduler(logger)
	sched.Attach(out)
	defer func() {
		if err := sched.Reset(); err != nil {
			logger.Warn("playback close failed", "err", err)
		}
	}()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for i, e := range cache.Entries() {
		chunk := e.Chunk()
		chunk.Index = int64(i)
		fmt.Fprintf(deps.stdout, "> %d. %s\n", e.Line+1, e.Text)
		end := sched.Schedule(chunk) + chunk.Duration()
		for out.CurrentTime() < end {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	}
	logger.Info("replay finished", "lines", cache.Len())
	return nil
}
