package workertimer

import (
	"sync"
	"sync/atomic"

	"workertimer/internal/eventbus"
	"workertimer/internal/loop"
	"workertimer/internal/native"
	"workertimer/internal/protocol"
	"workertimer/internal/worker"
	logx "workertimer/pkg/logx"
)

// strategy starts a timer for one request; the Handle it returns cancels it.
type strategy interface {
	start(req request) Handle
}

// ---- worker path ----

type workerStrategy struct{ d *Dispatcher }

func (s *workerStrategy) start(req request) Handle {
	d := s.d
	w, err := d.host.Spawn(loop.Main)
	if err != nil {
		d.logFor(req).Error("failed to create background worker", logx.Err(err))
		if d.fallback {
			d.publish(eventbus.TopicFallback, req, eventbus.PathDirect, err)
			return d.direct.start(req)
		}
		return d.inert(req, err)
	}

	h := &workerHandle{d: d, req: req, w: w}
	go h.relay()
	w.PostMessage(req.kind.Start(req.delay))
	d.publish(eventbus.TopicStarted, req, eventbus.PathWorker, nil)
	return h
}

type workerHandle struct {
	d       *Dispatcher
	req     request
	w       *worker.Worker
	cleared atomic.Bool
	once    sync.Once
}

// relay is the dispatcher side of the channel: it runs the callback for each
// tick until the worker is gone.
func (h *workerHandle) relay() {
	for {
		select {
		case <-h.w.Done():
			return
		case n := <-h.w.Messages():
			switch n {
			case protocol.Tick:
				if h.cleared.Load() {
					continue
				}
				h.d.invoke(h.req)
				h.d.publish(eventbus.TopicTick, h.req, eventbus.PathWorker, nil)
				if h.req.kind == protocol.KindTimeout {
					// The session is spent; give the slot back without waiting for Clear.
					h.w.Terminate()
					return
				}
			case protocol.Stopped:
				h.d.publish(eventbus.TopicStopped, h.req, eventbus.PathWorker, nil)
			}
		}
	}
}

func (h *workerHandle) Clear() {
	h.once.Do(func() {
		h.cleared.Store(true)
		h.w.PostMessage(protocol.Clear{})
		h.w.Terminate()
		h.d.publish(eventbus.TopicCleared, h.req, eventbus.PathWorker, nil)
	})
}

// ---- direct path ----

type directStrategy struct{ d *Dispatcher }

func (s *directStrategy) start(req request) Handle {
	d := s.d
	h := &directHandle{d: d, req: req}
	fire := func() {
		if h.cleared.Load() {
			return
		}
		d.invoke(req)
		d.publish(eventbus.TopicTick, req, eventbus.PathDirect, nil)
	}
	switch req.kind {
	case protocol.KindInterval:
		h.id = d.timers.SetInterval(fire, req.delay)
	case protocol.KindTimeout:
		h.id = d.timers.SetTimeout(fire, req.delay)
	}
	d.publish(eventbus.TopicStarted, req, eventbus.PathDirect, nil)
	return h
}

type directHandle struct {
	d       *Dispatcher
	req     request
	id      native.ID
	cleared atomic.Bool
	once    sync.Once
}

func (h *directHandle) Clear() {
	h.once.Do(func() {
		h.cleared.Store(true)
		switch h.req.kind {
		case protocol.KindInterval:
			h.d.timers.ClearInterval(h.id)
		case protocol.KindTimeout:
			h.d.timers.ClearTimeout(h.id)
		}
		h.d.publish(eventbus.TopicCleared, h.req, eventbus.PathDirect, nil)
	})
}

// ---- inert ----

func (d *Dispatcher) inert(req request, err error) Handle {
	d.publish(eventbus.TopicFallback, req, eventbus.PathInert, err)
	return &inertHandle{log: d.logFor(req)}
}

// inertHandle stands in for a timer that was never armed.
type inertHandle struct {
	log logx.Logger
}

func (h *inertHandle) Clear() {
	h.log.Warn("clear called on a timer that was never started; nothing to cancel")
}
