// Package worker hosts isolated timer workers.
//
// A worker is a supervised goroutine that talks to its owner only through two
// channels: an inbox of protocol.Command and an outbox of
// protocol.Notification. Nothing else is shared.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"workertimer/internal/native"
	"workertimer/internal/protocol"
	"workertimer/internal/runtime/supervisor"
	logx "workertimer/pkg/logx"
)

var (
	ErrUnavailable = errors.New("background workers are not available")
	ErrWorkerLimit = errors.New("worker limit reached")
	ErrHostClosed  = errors.New("worker host closed")
)

// DefaultMailboxSize is the inbox and outbox capacity used when none is configured.
const DefaultMailboxSize = 8

// Script is the code a worker runs. It must return once ctx is done.
type Script func(ctx context.Context, inbox <-chan protocol.Command, outbox chan<- protocol.Notification, timers native.Timers)

// Host decides whether workers can run and builds them.
type Host interface {
	// Available reports whether Spawn can be expected to succeed.
	Available() bool
	Spawn(script Script) (*Worker, error)
}

// Worker is a running script plus the channels to reach it.
type Worker struct {
	id     uint64
	inbox  chan protocol.Command
	outbox chan protocol.Notification
	done   chan struct{}
	log    logx.Logger

	cancel  context.CancelFunc
	release func()

	once sync.Once
	gone atomic.Bool
}

func (w *Worker) ID() uint64 { return w.id }

// Messages delivers the worker's notifications in the order they were sent.
func (w *Worker) Messages() <-chan protocol.Notification { return w.outbox }

// Done is closed once the script has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

// PostMessage hands cmd to the worker without blocking.
// It reports false when the worker is gone or its mailbox is full.
func (w *Worker) PostMessage(cmd protocol.Command) bool {
	if w.gone.Load() {
		w.log.Debug("post to terminated worker dropped", logx.Any("cmd", cmd))
		return false
	}
	select {
	case <-w.done:
		return false
	default:
	}
	select {
	case w.inbox <- cmd:
		return true
	default:
		w.log.Warn("worker mailbox full, command dropped", logx.Any("cmd", cmd))
		return false
	}
}

// Terminate stops the script and frees the worker's slot. Safe to call more than once.
func (w *Worker) Terminate() {
	w.once.Do(func() {
		w.gone.Store(true)
		if w.cancel != nil {
			w.cancel()
		}
		if w.release != nil {
			w.release()
		}
	})
}

// GoroutineHost runs each worker on its own supervised goroutine.
type GoroutineHost struct {
	enabled bool
	mailbox int
	max     int64
	slots   *semaphore.Weighted
	timers  native.Timers
	log     logx.Logger

	sup *supervisor.Supervisor
	seq atomic.Uint64
}

type HostOption func(*GoroutineHost)

// WithEnabled toggles the capability. A disabled host reports Available() == false.
func WithEnabled(enabled bool) HostOption {
	return func(h *GoroutineHost) { h.enabled = enabled }
}

// WithMaxWorkers caps live workers. Zero or less means unlimited.
func WithMaxWorkers(n int) HostOption {
	return func(h *GoroutineHost) { h.max = int64(n) }
}

func WithMailboxSize(n int) HostOption {
	return func(h *GoroutineHost) { h.mailbox = n }
}

func WithTimers(t native.Timers) HostOption {
	return func(h *GoroutineHost) { h.timers = t }
}

func WithLogger(log logx.Logger) HostOption {
	return func(h *GoroutineHost) { h.log = log }
}

var _ Host = (*GoroutineHost)(nil)

// NewGoroutineHost builds a host whose workers live until parent is done or Close is called.
func NewGoroutineHost(parent context.Context, opts ...HostOption) *GoroutineHost {
	h := &GoroutineHost{
		enabled: true,
		mailbox: DefaultMailboxSize,
	}
	for _, o := range opts {
		o(h)
	}
	if h.mailbox <= 0 {
		h.mailbox = DefaultMailboxSize
	}
	if h.timers == nil {
		h.timers = native.Default()
	}
	if h.max > 0 {
		h.slots = semaphore.NewWeighted(h.max)
	}
	h.log = h.log.With(logx.String("comp", "worker"))
	h.sup = supervisor.NewSupervisor(parent, supervisor.WithLogger(h.log))
	return h
}

func (h *GoroutineHost) Available() bool { return h.enabled }

func (h *GoroutineHost) Spawn(script Script) (*Worker, error) {
	if !h.enabled {
		return nil, ErrUnavailable
	}
	if script == nil {
		return nil, errors.New("worker: nil script")
	}
	if h.slots != nil && !h.slots.TryAcquire(1) {
		return nil, fmt.Errorf("%w (max %d)", ErrWorkerLimit, h.max)
	}

	id := h.seq.Add(1)
	w := &Worker{
		id:     id,
		inbox:  make(chan protocol.Command, h.mailbox),
		outbox: make(chan protocol.Notification, h.mailbox),
		done:   make(chan struct{}),
		log:    h.log.With(logx.Uint64("worker", id)),
	}
	if h.slots != nil {
		w.release = func() { h.slots.Release(1) }
	}

	cancel, err := h.sup.Spawn("timer-worker", func(ctx context.Context) error {
		defer close(w.done)
		script(ctx, w.inbox, w.outbox, h.timers)
		return nil
	})
	if err != nil {
		if w.release != nil {
			w.release()
		}
		if errors.Is(err, supervisor.ErrStopped) {
			return nil, ErrHostClosed
		}
		return nil, err
	}
	w.cancel = cancel
	return w, nil
}

// Stats returns the supervisor's view of the worker goroutines.
func (h *GoroutineHost) Stats() supervisor.SupervisorSnapshot { return h.sup.Snapshot() }

// Close terminates every worker and waits for them to exit.
func (h *GoroutineHost) Close(ctx context.Context) error {
	return h.sup.Stop(ctx)
}
