package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnCancelStopsOneGoroutine(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())

	stopped := make(chan string, 2)
	run := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			<-ctx.Done()
			stopped <- name
			return ctx.Err()
		}
	}
	cancelA, err := s.Spawn("a", run("a"))
	require.NoError(t, err)
	_, err = s.Spawn("b", run("b"))
	require.NoError(t, err)

	cancelA()
	select {
	case name := <-stopped:
		assert.Equal(t, "a", name)
	case <-time.After(time.Second):
		t.Fatal("a did not stop")
	}
	require.Eventually(t, func() bool { return s.Counters().Active == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx), "context.Canceled is a clean exit")
	assert.Equal(t, SupervisorCounters{Active: 0, Started: 2}, s.Counters())
}

func TestSpawnAfterStop(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	_, err := s.Spawn("late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPanicAndErrorAreRecorded(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	_, err := s.Spawn("worker", func(context.Context) error { panic("boom") })
	require.NoError(t, err)
	_, err = s.Spawn("worker", func(context.Context) error { return errors.New("late failure") })
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = s.Wait(ctx)
	require.Error(t, err, "first failure surfaces from Wait")
	assert.Equal(t, err, s.Err())
	assert.Equal(t, int64(0), s.Counters().Active)
}

func TestSnapshotAggregatesByName(t *testing.T) {
	t.Parallel()
	s := NewSupervisor(context.Background())
	done := make(chan struct{})
	for i := 0; i < 3; i++ {
		_, err := s.Spawn("timer-worker", func(context.Context) error {
			<-done
			return nil
		})
		require.NoError(t, err)
	}
	_, err := s.Spawn("crash", func(context.Context) error { panic("boom") })
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return len(snap.Goroutines) == 2 && snap.Goroutines[0].Name == "timer-worker" && snap.Goroutines[0].Active == 3
	}, time.Second, time.Millisecond)

	close(done)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = s.Stop(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in crash")

	snap := s.Snapshot()
	assert.Contains(t, snap.FirstError, "panic in crash")
	for _, g := range snap.Goroutines {
		assert.Zero(t, g.Active, g.Name)
		switch g.Name {
		case "timer-worker":
			assert.EqualValues(t, 3, g.Started)
		case "crash":
			assert.EqualValues(t, 1, g.Panics)
			assert.Equal(t, "boom", g.LastPanic)
		}
	}
}
