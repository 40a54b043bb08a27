// Package protocol defines the messages exchanged between a dispatcher and a
// worker running the timer loop.
//
// Commands flow dispatcher -> worker, notifications flow worker -> dispatcher.
// Both sets are closed: Command is sealed and every variant is routed through
// CommandHandler, so adding a variant breaks every handler at compile time.
package protocol

import (
	"fmt"
	"time"
)

// Kind is the flavour of native timer a session arms.
type Kind uint8

const (
	KindInterval Kind = iota + 1
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInterval:
		return "interval"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Start returns the start command for this kind.
func (k Kind) Start(delay time.Duration) Command {
	if k == KindTimeout {
		return StartTimeout{Delay: delay}
	}
	return StartInterval{Delay: delay}
}

// CommandHandler reacts to each command variant.
type CommandHandler interface {
	StartInterval(cmd StartInterval)
	StartTimeout(cmd StartTimeout)
	Clear(cmd Clear)
}

// Command is a message sent to a worker.
type Command interface {
	Dispatch(h CommandHandler)
	sealed()
}

// StartInterval arms a repeating timer.
type StartInterval struct {
	Delay time.Duration
}

// StartTimeout arms a one-shot timer.
type StartTimeout struct {
	Delay time.Duration
}

// Clear disarms whatever timer the worker holds.
type Clear struct{}

func (c StartInterval) Dispatch(h CommandHandler) { h.StartInterval(c) }
func (c StartTimeout) Dispatch(h CommandHandler)  { h.StartTimeout(c) }
func (c Clear) Dispatch(h CommandHandler)         { h.Clear(c) }

func (StartInterval) sealed() {}
func (StartTimeout) sealed()  {}
func (Clear) sealed()         {}

func (c StartInterval) String() string { return "startInterval(" + c.Delay.String() + ")" }
func (c StartTimeout) String() string  { return "startTimeout(" + c.Delay.String() + ")" }
func (Clear) String() string           { return "clear" }

// Notification is a message sent back from a worker.
type Notification uint8

const (
	// Tick means the timer fired and the callback should run.
	Tick Notification = iota + 1
	// Stopped means the timer was disarmed by a Clear command.
	Stopped
)

func (n Notification) String() string {
	switch n {
	case Tick:
		return "tick"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("notification(%d)", uint8(n))
	}
}
