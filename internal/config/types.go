package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	logx "workertimer/pkg/logx"
)

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Workers WorkersConfig `json:"workers"`

	// Timers are run by the CLI; the library itself never reads them.
	Timers []TimerConfig `json:"timers,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
	// RatePerSec caps WARN+ lines per second. 0 disables the cap.
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// Logx converts the section into the logger's own config.
func (c LoggingConfig) Logx() logx.Config {
	return logx.Config{
		Level:      c.Level,
		Console:    c.Console,
		File:       logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		RatePerSec: c.RatePerSec,
	}
}

// WorkersConfig controls the background worker host.
//
// Enabled and ConstructionFallback are pointers so an omitted key can default
// to true while an explicit false is still honoured.
//
// Defaults (when fields are omitted/zero):
//   - enabled: true
//   - max_workers: 0 (unlimited)
//   - mailbox_size: 8
//   - construction_fallback: true
type WorkersConfig struct {
	Enabled              *bool `json:"enabled,omitempty"`
	MaxWorkers           int   `json:"max_workers,omitempty"`
	MailboxSize          int   `json:"mailbox_size,omitempty"`
	ConstructionFallback *bool `json:"construction_fallback,omitempty"`
}

func (w WorkersConfig) IsEnabled() bool { return w.Enabled == nil || *w.Enabled }

func (w WorkersConfig) FallbackEnabled() bool {
	return w.ConstructionFallback == nil || *w.ConstructionFallback
}

// TimerConfig declares one timer for the CLI.
type TimerConfig struct {
	Name string `json:"name"`
	// Kind is "interval" or "timeout".
	Kind string `json:"kind"`
	// Delay is a Go duration ("250ms") or an "@every" descriptor ("@every 2s").
	Delay string `json:"delay"`
	// MaxTicks clears an interval after that many ticks. 0 runs until shutdown.
	MaxTicks int `json:"max_ticks,omitempty"`
}

// Timer is a validated TimerConfig.
type Timer struct {
	Name     string
	Interval bool
	Delay    time.Duration
	MaxTicks int
}

// Validate checks the whole config and reports every problem found.
func (c *Config) Validate() error {
	var err error
	if c.Workers.MaxWorkers < 0 {
		err = multierr.Append(err, fmt.Errorf("workers.max_workers: must be >= 0"))
	}
	if c.Workers.MailboxSize < 0 {
		err = multierr.Append(err, fmt.Errorf("workers.mailbox_size: must be >= 0"))
	}
	_, terr := c.ResolveTimers()
	return multierr.Append(err, terr)
}

// ResolveTimers parses every timer declaration.
func (c *Config) ResolveTimers() ([]Timer, error) {
	var (
		out  []Timer
		err  error
		seen = map[string]bool{}
	)
	for i, tc := range c.Timers {
		path := fmt.Sprintf("timers[%d]", i)
		name := strings.TrimSpace(tc.Name)
		if name == "" {
			name = fmt.Sprintf("timer-%d", i+1)
		}
		if seen[name] {
			err = multierr.Append(err, fmt.Errorf("%s.name: duplicate name %q", path, name))
			continue
		}
		seen[name] = true

		var interval bool
		switch strings.ToLower(strings.TrimSpace(tc.Kind)) {
		case "interval", "":
			interval = true
		case "timeout":
		default:
			err = multierr.Append(err, fmt.Errorf("%s.kind: unknown kind %q (use interval or timeout)", path, tc.Kind))
			continue
		}

		d, derr := ParseDelay(path+".delay", tc.Delay)
		if derr != nil {
			err = multierr.Append(err, derr)
			continue
		}
		if tc.MaxTicks < 0 {
			err = multierr.Append(err, fmt.Errorf("%s.max_ticks: must be >= 0", path))
			continue
		}
		out = append(out, Timer{Name: name, Interval: interval, Delay: d, MaxTicks: tc.MaxTicks})
	}
	return out, err
}
