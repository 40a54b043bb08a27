package workertimer

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"workertimer/internal/eventbus"
	"workertimer/internal/native"
	"workertimer/internal/protocol"
	"workertimer/internal/worker"
	logx "workertimer/pkg/logx"
)

var errNilCallback = errors.New("nil callback")

// Handle cancels a scheduled timer. Clear is safe to call more than once.
type Handle interface {
	Clear()
}

// Dispatcher schedules timers on background workers when the host supports
// them, and on native timers otherwise. The choice is made once, in New.
type Dispatcher struct {
	host     worker.Host
	timers   native.Timers
	log      logx.Logger
	bus      eventbus.Bus
	fallback bool

	primary strategy
	direct  strategy

	seq atomic.Uint64
}

type Option func(*Dispatcher)

// WithHost sets the worker host. Defaults to a goroutine host sharing the
// dispatcher's timers and logger.
func WithHost(h worker.Host) Option {
	return func(d *Dispatcher) { d.host = h }
}

// WithTimers sets the native timers used by the direct path (and by the
// default host).
func WithTimers(t native.Timers) Option {
	return func(d *Dispatcher) { d.timers = t }
}

func WithLogger(log logx.Logger) Option {
	return func(d *Dispatcher) { d.log = log }
}

// WithBus publishes timer lifecycle events to bus.
func WithBus(bus eventbus.Bus) Option {
	return func(d *Dispatcher) { d.bus = bus }
}

// WithConstructionFallback controls what happens when a worker cannot be
// built. Enabled (the default), the call falls back to a native timer.
// Disabled, the call yields a handle that never fires and warns on Clear.
func WithConstructionFallback(enabled bool) Option {
	return func(d *Dispatcher) { d.fallback = enabled }
}

func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		fallback: true,
		log:      logx.NewConsole("warn"),
	}
	for _, o := range opts {
		o(d)
	}
	if d.bus == nil {
		d.bus = eventbus.Discard
	}
	if d.timers == nil {
		d.timers = native.Default()
	}
	if d.host == nil {
		d.host = worker.NewGoroutineHost(context.Background(),
			worker.WithTimers(d.timers),
			worker.WithLogger(d.log),
		)
	}
	d.log = d.log.With(logx.String("comp", "workertimer"))

	d.direct = &directStrategy{d: d}
	if d.host.Available() {
		d.primary = &workerStrategy{d: d}
	} else {
		d.log.Error("background workers are not supported in this environment, using direct timers")
		d.primary = d.direct
	}
	return d
}

var std = sync.OnceValue(func() *Dispatcher { return New() })

// Default returns the process-wide dispatcher. Its capability check runs once.
func Default() *Dispatcher { return std() }

// SetInterval calls fn every delay on the default dispatcher.
func SetInterval(fn func(), delay time.Duration) Handle { return Default().SetInterval(fn, delay) }

// SetTimeout calls fn once after delay on the default dispatcher.
func SetTimeout(fn func(), delay time.Duration) Handle { return Default().SetTimeout(fn, delay) }

// SetInterval calls fn every delay, starting one delay from now, until the
// handle is cleared.
func (d *Dispatcher) SetInterval(fn func(), delay time.Duration) Handle {
	return d.schedule(protocol.KindInterval, fn, delay)
}

// SetTimeout calls fn once, delay from now, unless the handle is cleared first.
func (d *Dispatcher) SetTimeout(fn func(), delay time.Duration) Handle {
	return d.schedule(protocol.KindTimeout, fn, delay)
}

// Background reports whether timers run on workers.
func (d *Dispatcher) Background() bool {
	_, ok := d.primary.(*workerStrategy)
	return ok
}

func (d *Dispatcher) schedule(kind protocol.Kind, fn func(), delay time.Duration) Handle {
	req := request{
		session: d.seq.Add(1),
		kind:    kind,
		delay:   delay,
		fn:      fn,
	}
	if fn == nil {
		d.logFor(req).Warn("timer scheduled without a callback")
		return d.inert(req, errNilCallback)
	}
	return d.primary.start(req)
}

// request is one SetInterval/SetTimeout call.
type request struct {
	session uint64
	kind    protocol.Kind
	delay   time.Duration
	fn      func()
}

func (d *Dispatcher) logFor(req request) logx.Logger {
	return d.log.With(
		logx.Uint64("session", req.session),
		logx.String("kind", req.kind.String()),
		logx.Duration("delay", req.delay),
	)
}

func (d *Dispatcher) publish(topic eventbus.Topic, req request, path eventbus.Path, err error) {
	d.bus.Publish(eventbus.Event{
		Topic: topic,
		Timer: eventbus.TimerEvent{
			Session: req.session,
			Kind:    req.kind.String(),
			Delay:   req.delay,
			Path:    path,
			Err:     err,
		},
	})
}

// invoke runs the callback, containing any panic.
func (d *Dispatcher) invoke(req request) {
	defer func() {
		if r := recover(); r != nil {
			d.logFor(req).Error("timer callback panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	req.fn()
}
