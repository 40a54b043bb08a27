package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Topic names a timer lifecycle event.
type Topic string

const (
	TopicStarted  Topic = "timer.started"
	TopicFallback Topic = "timer.fallback"
	TopicTick     Topic = "timer.tick"
	TopicStopped  Topic = "timer.stopped"
	TopicCleared  Topic = "timer.cleared"
)

// Path is the code path serving a timer.
type Path string

const (
	PathWorker Path = "worker"
	PathDirect Path = "direct"
	PathInert  Path = "inert"
)

// TimerEvent describes one timer session at the moment of an event.
type TimerEvent struct {
	Session uint64
	Kind    string
	Delay   time.Duration
	Path    Path
	Err     error
}

// Event is a lightweight, in-memory signal.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Subscribers get buffered channels.
//   - Slow subscribers drop events (bounded backpressure).
type Event struct {
	Topic Topic
	Time  time.Time
	Timer TimerEvent
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Sends happen under the read lock so Unsubscribe cannot close a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Discard is a Bus that drops everything.
var Discard Bus = discard{}

type discard struct{}

func (discard) Publish(Event) {}
func (discard) Subscribe(int) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
