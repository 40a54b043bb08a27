// Package loop is the timer loop run inside every worker.
//
// The loop owns at most one native timer. Native callbacks never touch loop
// state: they only signal the loop, which then emits the notification, so all
// session state is confined to the loop goroutine.
package loop

import (
	"context"

	"workertimer/internal/native"
	"workertimer/internal/protocol"
	"workertimer/internal/worker"
)

// Main is the script handed to every worker. It is shared by reference; no
// per-worker copy is built.
var Main worker.Script = Run

// Run handles commands from inbox until ctx is cancelled or inbox is closed.
// Any armed timer is disarmed on the way out.
func Run(ctx context.Context, inbox <-chan protocol.Command, outbox chan<- protocol.Notification, timers native.Timers) {
	s := &session{
		ctx:    ctx,
		timers: timers,
		outbox: outbox,
		fired:  make(chan uint64, 1),
	}
	defer s.disarm()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-inbox:
			if !ok {
				return
			}
			cmd.Dispatch(s)
		case gen := <-s.fired:
			s.onFire(gen)
		}
	}
}

type session struct {
	ctx    context.Context
	timers native.Timers
	outbox chan<- protocol.Notification

	// fired carries the generation of the timer that went off.
	fired chan uint64

	kind protocol.Kind
	id   native.ID
	// gen changes every time a timer is armed or disarmed; fires from
	// older generations are stale.
	gen uint64
}

var _ protocol.CommandHandler = (*session)(nil)

func (s *session) StartInterval(cmd protocol.StartInterval) {
	gen := s.rearm(protocol.KindInterval)
	s.id = s.timers.SetInterval(s.signal(gen), cmd.Delay)
}

func (s *session) StartTimeout(cmd protocol.StartTimeout) {
	gen := s.rearm(protocol.KindTimeout)
	s.id = s.timers.SetTimeout(s.signal(gen), cmd.Delay)
}

func (s *session) Clear(protocol.Clear) {
	if s.id == 0 {
		return
	}
	s.disarm()
	s.emit(protocol.Stopped)
}

// rearm drops any armed timer silently and opens a new generation.
func (s *session) rearm(kind protocol.Kind) uint64 {
	s.disarm()
	s.kind = kind
	return s.gen
}

func (s *session) disarm() {
	if s.id != 0 {
		switch s.kind {
		case protocol.KindInterval:
			s.timers.ClearInterval(s.id)
		case protocol.KindTimeout:
			s.timers.ClearTimeout(s.id)
		}
	}
	s.id = 0
	s.kind = 0
	s.gen++
}

func (s *session) signal(gen uint64) func() {
	return func() {
		select {
		case s.fired <- gen:
		case <-s.ctx.Done():
		}
	}
}

func (s *session) onFire(gen uint64) {
	if gen != s.gen || s.id == 0 {
		return
	}
	// A fired timeout keeps its id recorded: a later Clear still reports Stopped.
	s.emit(protocol.Tick)
}

func (s *session) emit(n protocol.Notification) {
	select {
	case s.outbox <- n:
	case <-s.ctx.Done():
	}
}
