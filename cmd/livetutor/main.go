package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/vango-go/livetutor/internal/dotenv"
	"github.com/vango-go/livetutor/pkg/config"
	"github.com/vango-go/livetutor/pkg/core/capture"
	"github.com/vango-go/livetutor/pkg/core/live"
	"github.com/vango-go/livetutor/pkg/core/live/gemini"
	"github.com/vango-go/livetutor/pkg/core/live/geminiws"
	"github.com/vango-go/livetutor/pkg/core/pcm"
	"github.com/vango-go/livetutor/pkg/core/playback"
	"github.com/vango-go/livetutor/pkg/metrics"
)

const shutdownTimeout = 5 * time.Second

type cliDeps struct {
	loadConfig   func() (config.Config, error)
	newTransport func(context.Context, config.Config, *slog.Logger) (live.Transport, error)
	newCapture   func(*slog.Logger) live.CaptureSource
	openOutput   func(pcm.Format, *slog.Logger) (playback.Output, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
	stdin        io.Reader
	stdout       io.Writer
}

func defaultDeps() cliDeps {
	return cliDeps{
		loadConfig:   config.LoadFromEnv,
		newTransport: newTransport,
		newCapture: func(l *slog.Logger) live.CaptureSource {
			return capture.NewMalgoSource(l)
		},
		openOutput: func(f pcm.Format, l *slog.Logger) (playback.Output, error) {
			return playback.OpenDevice(f, l)
		},
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}
}

func newTransport(ctx context.Context, cfg config.Config, logger *slog.Logger) (live.Transport, error) {
	switch cfg.Transport {
	case config.TransportWebSocket:
		return geminiws.New(cfg.WebSocket(), logger), nil
	default:
		return gemini.NewFromAPIKey(ctx, cfg.APIKey, logger)
	}
}

// newLogger writes text to terminals and JSON everywhere else.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if f, ok := w.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func startMetricsServer(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

func run(ctx context.Context, logger *slog.Logger, opt options, deps cliDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newTransport == nil || deps.newCapture == nil || deps.openOutput == nil {
		return errors.New("missing audio dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if deps.stdout == nil {
		deps.stdout = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	m := metrics.New("livetutor")
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, m, logger)
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	if opt.mode == modeReplay {
		return runReplay(ctx, logger, opt, cfg, deps)
	}

	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	tr, err := deps.newTransport(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create transport: %w", err)
	}

	outputs := func(f pcm.Format) (playback.Output, error) {
		if opt.noSpeaker {
			return playback.NewDiscard(nil), nil
		}
		return deps.openOutput(f, logger)
	}
	var src live.CaptureSource
	if opt.mode != modeTTS {
		src = deps.newCapture(logger)
	}
	ctrl := live.New(cfg.Live(), tr, src,
		live.WithLogger(logger),
		live.WithMetrics(m),
		live.WithOutputFactory(outputs),
	)
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := ctrl.Shutdown(sctx); err != nil {
			logger.Warn("live shutdown incomplete", "err", err)
		}
	}()

	logger.Info("livetutor starting", "mode", opt.mode, "model", cfg.Model, "transport", cfg.Transport)
	switch opt.mode {
	case modeTTS:
		return runTTS(ctx, logger, opt, cfg, ctrl, m, deps.stdout)
	case modeSTT:
		return runSTT(ctx, logger, opt, ctrl, deps.stdout)
	default:
		return runConversation(ctx, logger, opt, cfg, ctrl, deps.stdin, deps.stdout)
	}
}

func runMain(ctx context.Context, args []string, stderr io.Writer, deps cliDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	opt, err := parseOptions(args)
	if err != nil {
		fmt.Fprintf(stderr, "livetutor: %v\n\n%s", err, usage)
		return 2
	}
	logger := newLogger(stderr, opt.debug)

	if err := dotenv.LoadFile(opt.envFile); err != nil {
		fmt.Fprintf(stderr, "livetutor: %v\n", err)
		return 1
	}

	if err := run(ctx, logger, opt, deps); err != nil {
		fmt.Fprintf(stderr, "livetutor: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stderr, defaultDeps()))
}
