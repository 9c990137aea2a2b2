package live

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vango-go/livetutor/pkg/core/playback"
)

type outboundItem struct {
	frame  *MediaFrame
	text   string
	isText bool
}

// run is the per-session state owned by a Controller. It lives from Start
// until teardown.
type run struct {
	id      string
	gen     uint64
	opts    StartOptions
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	output   playback.Output
	outbound chan outboundItem

	ready     chan struct{}
	readyOnce sync.Once

	mu       sync.Mutex
	detached bool
	session  Session
	stream   CaptureStream
	timer    *time.Timer

	chunks atomic.Int64
}

func newRun(parent context.Context, id string, gen uint64, opts StartOptions, queue int, now time.Time) *run {
	ctx, cancel := context.WithCancel(parent)
	group, gctx := errgroup.WithContext(ctx)
	return &run{
		id:       id,
		gen:      gen,
		opts:     opts,
		started:  now,
		ctx:      gctx,
		cancel:   cancel,
		group:    group,
		outbound: make(chan outboundItem, queue),
		ready:    make(chan struct{}),
	}
}

// resolve publishes the session handle. It returns false when the run was
// already torn down; the caller then owns sess and must close it.
func (r *run) resolve(sess Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer r.readyOnce.Do(func() { close(r.ready) })
	if r.detached {
		return false
	}
	r.session = sess
	return true
}

func (r *run) resolvedSession() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

func (r *run) takeSession() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.session
	r.session = nil
	return s
}

func (r *run) attachStream(s CaptureStream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.detached {
		return false
	}
	r.stream = s
	return true
}

func (r *run) takeStream() CaptureStream {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.stream
	r.stream = nil
	return s
}

func (r *run) detach() {
	r.mu.Lock()
	r.detached = true
	r.mu.Unlock()
}

func (r *run) isDetached() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.detached
}

func (r *run) setTimer(t *time.Timer) {
	r.mu.Lock()
	r.timer = t
	r.mu.Unlock()
}

func (r *run) stopTimer() {
	r.mu.Lock()
	t := r.timer
	r.timer = nil
	r.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// enqueue never blocks.
func (r *run) enqueue(item outboundItem) error {
	if r.isDetached() {
		return ErrSessionClosed
	}
	select {
	case r.outbound <- item:
		return nil
	default:
		return ErrQueueFull
	}
}

func (r *run) nextChunkIndex() int64 {
	return r.chunks.Add(1) - 1
}
