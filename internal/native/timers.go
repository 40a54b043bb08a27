// Package native exposes the host timer primitives behind small integer ids,
// the way an event-loop runtime hands out timer handles.
package native

import (
	"sync"
	"time"

	"workertimer/internal/protocol"
)

// MinInterval is the shortest period an interval timer will run at.
// time.Ticker rejects non-positive periods.
const MinInterval = time.Millisecond

// ID identifies an armed timer. Ids are never reused by a Host; zero is never issued.
type ID uint64

// Timers is the native timer primitive.
//
// Clearing an unknown id, an already fired timeout, or an id armed by the
// other primitive is a no-op.
type Timers interface {
	SetInterval(fn func(), d time.Duration) ID
	SetTimeout(fn func(), d time.Duration) ID
	ClearInterval(id ID)
	ClearTimeout(id ID)
}

type entry struct {
	kind   protocol.Kind
	timer  *time.Timer
	ticker *time.Ticker
	stop   chan struct{}
}

// Host implements Timers on top of the runtime's timers.
// Callbacks run on their own goroutines, never while Host's lock is held.
type Host struct {
	mu     sync.Mutex
	seq    uint64
	active map[ID]*entry
}

var _ Timers = (*Host)(nil)

func New() *Host {
	return &Host{active: map[ID]*entry{}}
}

var (
	defaultOnce sync.Once
	defaultHost *Host
)

// Default returns the process-wide Host.
func Default() *Host {
	defaultOnce.Do(func() { defaultHost = New() })
	return defaultHost
}

// SetTimeout runs fn once after d. Negative delays count as zero.
func (h *Host) SetTimeout(fn func(), d time.Duration) ID {
	if d < 0 {
		d = 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID()
	e := &entry{kind: protocol.KindTimeout}
	h.active[id] = e
	// The callback takes h.mu, so it cannot observe e before e.timer is set.
	e.timer = time.AfterFunc(d, func() {
		if !h.forget(id, protocol.KindTimeout) {
			return
		}
		fn()
	})
	return id
}

// SetInterval runs fn every d until cleared. Periods below MinInterval are raised to it.
// A slow fn delays the next run rather than stacking runs.
func (h *Host) SetInterval(fn func(), d time.Duration) ID {
	if d < MinInterval {
		d = MinInterval
	}

	e := &entry{
		kind:   protocol.KindInterval,
		ticker: time.NewTicker(d),
		stop:   make(chan struct{}),
	}

	h.mu.Lock()
	id := h.nextID()
	h.active[id] = e
	h.mu.Unlock()

	go func() {
		for {
			select {
			case <-e.stop:
				return
			case <-e.ticker.C:
			}
			// Both cases may be ready at once; stop wins.
			select {
			case <-e.stop:
				return
			default:
			}
			fn()
		}
	}()
	return id
}

func (h *Host) ClearTimeout(id ID) {
	if e := h.take(id, protocol.KindTimeout); e != nil {
		e.timer.Stop()
	}
}

func (h *Host) ClearInterval(id ID) {
	if e := h.take(id, protocol.KindInterval); e != nil {
		e.ticker.Stop()
		close(e.stop)
	}
}

// Len reports how many timers are armed.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

func (h *Host) nextID() ID {
	h.seq++
	return ID(h.seq)
}

func (h *Host) take(id ID, kind protocol.Kind) *entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.active[id]
	if !ok || e.kind != kind {
		return nil
	}
	delete(h.active, id)
	return e
}

func (h *Host) forget(id ID, kind protocol.Kind) bool {
	return h.take(id, kind) != nil
}
