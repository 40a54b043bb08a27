package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
logging:
  level: debug
  console: true
  rate_per_sec: 20
workers:
  enabled: false
  max_workers: 4
timers:
  - name: heartbeat
    kind: interval
    delay: "@every 1m30s"
    max_ticks: 3
  - name: once
    kind: timeout
    delay: 250ms
`

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 20, cfg.Logging.Logx().RatePerSec)
	assert.False(t, cfg.Workers.IsEnabled())
	assert.True(t, cfg.Workers.FallbackEnabled())
	assert.Equal(t, 4, cfg.Workers.MaxWorkers)

	timers, err := cfg.ResolveTimers()
	require.NoError(t, err)
	assert.Equal(t, []Timer{
		{Name: "heartbeat", Interval: true, Delay: 90 * time.Second, MaxTicks: 3},
		{Name: "once", Interval: false, Delay: 250 * time.Millisecond},
	}, timers)
}

func TestDecodeJSONDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("config.json", []byte(`{"logging":{"level":"info"}}`))
	require.NoError(t, err)
	assert.True(t, cfg.Workers.IsEnabled())
	assert.True(t, cfg.Workers.FallbackEnabled())
	assert.Empty(t, cfg.Timers)
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		doc  string
		want string
	}{
		{name: "unknown field", path: "c.json", doc: `{"logging":{},"nope":1}`, want: "unknown field"},
		{name: "trailing data", path: "c.json", doc: `{} {}`, want: "trailing data"},
		{name: "bad kind", path: "c.yaml", doc: "timers:\n  - kind: cron\n    delay: 1s\n", want: "timers[0].kind"},
		{name: "cron without fixed delay", path: "c.yaml", doc: "timers:\n  - delay: \"@hourly\"\n", want: "no fixed delay"},
		{name: "negative max workers", path: "c.yaml", doc: "workers:\n  max_workers: -1\n", want: "workers.max_workers"},
		{name: "duplicate names", path: "c.yaml", doc: "timers:\n  - {name: a, delay: 1s}\n  - {name: a, delay: 2s}\n", want: "duplicate name"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.path, []byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()
	cfg := &Config{Timers: []TimerConfig{
		{Name: "a", Kind: "interval", Delay: "soon"},
		{Name: "b", Kind: "timeout", Delay: ""},
	}}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timers[0].delay")
	assert.Contains(t, err.Error(), "timers[1].delay")
}

func TestParseDelay(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "1500ms", want: 1500 * time.Millisecond},
		{raw: " 2m ", want: 2 * time.Minute},
		{raw: "0s", want: 0},
		{raw: "@every 5s", want: 5 * time.Second},
		{raw: "@every 250ms", want: time.Second},
		{raw: "@daily", wantErr: true},
		{raw: "@every", wantErr: true},
		{raw: "-1s", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "*/5 * * * *", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDelay("delay", tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watchErr := make(chan error, 1)
	go func() { watchErr <- m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	select {
	case cfg := <-ch:
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "debug", m.Get().Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("reload was not published")
	}

	cancel()
	assert.NoError(t, <-watchErr)
}
