package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseDelay accepts a Go duration ("1500ms", "2m") or a cron "@every"
// descriptor ("@every 1m30s"). Other cron schedules have no fixed delay and
// are rejected.
//
// cron rounds "@every" down to whole seconds (minimum 1s); use a Go duration
// for sub-second delays.
func ParseDelay(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%s: delay required", path)
	}

	if strings.HasPrefix(s, "@") {
		sched, err := cron.ParseStandard(s)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid schedule %q: %w", path, raw, err)
		}
		every, ok := sched.(cron.ConstantDelaySchedule)
		if !ok {
			return 0, fmt.Errorf("%s: schedule %q has no fixed delay (use @every)", path, raw)
		}
		return every.Delay, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
