package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workertimer/internal/native"
	"workertimer/internal/protocol"
	logx "workertimer/pkg/logx"
)

// echo answers every command with a Tick until cancelled.
func echo(ctx context.Context, inbox <-chan protocol.Command, outbox chan<- protocol.Notification, _ native.Timers) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-inbox:
			outbox <- protocol.Tick
		}
	}
}

func newHost(t *testing.T, opts ...HostOption) *GoroutineHost {
	t.Helper()
	h := NewGoroutineHost(context.Background(), append([]HostOption{WithLogger(logx.Nop())}, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.Close(ctx)
	})
	return h
}

func TestSpawnRoundTrip(t *testing.T) {
	t.Parallel()
	h := newHost(t)
	require.True(t, h.Available())

	w, err := h.Spawn(echo)
	require.NoError(t, err)
	require.NotZero(t, w.ID())

	require.True(t, w.PostMessage(protocol.Clear{}))
	select {
	case n := <-w.Messages():
		assert.Equal(t, protocol.Tick, n)
	case <-time.After(time.Second):
		t.Fatal("no reply from worker")
	}

	w.Terminate()
	w.Terminate()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.False(t, w.PostMessage(protocol.Clear{}), "post after terminate must be dropped")
}

func TestDisabledHost(t *testing.T) {
	t.Parallel()
	h := newHost(t, WithEnabled(false))
	assert.False(t, h.Available())
	_, err := h.Spawn(echo)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestWorkerLimit(t *testing.T) {
	t.Parallel()
	h := newHost(t, WithMaxWorkers(1))

	w, err := h.Spawn(echo)
	require.NoError(t, err)

	_, err = h.Spawn(echo)
	require.ErrorIs(t, err, ErrWorkerLimit)

	// Terminating frees the slot.
	w.Terminate()
	w2, err := h.Spawn(echo)
	require.NoError(t, err)
	w2.Terminate()
}

func TestSpawnAfterClose(t *testing.T) {
	t.Parallel()
	h := newHost(t)
	w, err := h.Spawn(echo)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Close(ctx))

	select {
	case <-w.Done():
	default:
		t.Fatal("close should stop running workers")
	}

	_, err = h.Spawn(echo)
	assert.True(t, errors.Is(err, ErrHostClosed), "got %v", err)
}

func TestSpawnNilScript(t *testing.T) {
	t.Parallel()
	h := newHost(t)
	_, err := h.Spawn(nil)
	assert.Error(t, err)
}

func TestMailboxFullDrops(t *testing.T) {
	t.Parallel()
	h := newHost(t, WithMailboxSize(1))
	block := make(chan struct{})
	w, err := h.Spawn(func(ctx context.Context, inbox <-chan protocol.Command, _ chan<- protocol.Notification, _ native.Timers) {
		select {
		case <-block:
		case <-ctx.Done():
		}
	})
	require.NoError(t, err)
	defer w.Terminate()
	defer close(block)

	assert.True(t, w.PostMessage(protocol.Clear{}))
	assert.False(t, w.PostMessage(protocol.Clear{}))
}

func TestPanickingScriptIsContained(t *testing.T) {
	t.Parallel()
	h := newHost(t)
	w, err := h.Spawn(func(context.Context, <-chan protocol.Command, chan<- protocol.Notification, native.Timers) {
		panic("boom")
	})
	require.NoError(t, err)
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("panicking worker never finished")
	}

	require.Eventually(t, func() bool {
		for _, g := range h.Stats().Goroutines {
			if g.Name == "timer-worker" && g.Panics == 1 {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}
