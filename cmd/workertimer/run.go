package main

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"workertimer/internal/config"
	"workertimer/internal/eventbus"
	"workertimer/internal/native"
	"workertimer/internal/worker"
	logx "workertimer/pkg/logx"
	"workertimer/pkg/workertimer"
)

const shutdownTimeout = 5 * time.Second

func run(ctx context.Context, cfgPath string) (err error) {
	mgr := config.NewConfigManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}

	logSvc, log := logx.New(cfg.Logging.Logx())
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	timers := native.New()
	host := worker.NewGoroutineHost(ctx,
		worker.WithEnabled(cfg.Workers.IsEnabled()),
		worker.WithMaxWorkers(cfg.Workers.MaxWorkers),
		worker.WithMailboxSize(cfg.Workers.MailboxSize),
		worker.WithTimers(timers),
		worker.WithLogger(log),
	)
	bus := eventbus.New()
	disp := workertimer.New(
		workertimer.WithHost(host),
		workertimer.WithTimers(timers),
		workertimer.WithLogger(log),
		workertimer.WithBus(bus),
		workertimer.WithConstructionFallback(cfg.Workers.FallbackEnabled()),
	)

	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		closeErr := host.Close(sctx)
		log.Info("stopped", logx.Uint64("workers_started", host.Stats().Counters.Started))
		err = multierr.Combine(err, closeErr, logSvc.Close())
	}()

	resolved, err := cfg.ResolveTimers()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Timers keep running without live reload.
		if err := mgr.Watch(gctx); err != nil {
			log.Warn("config watch disabled", logx.Err(err))
		}
		return nil
	})
	g.Go(func() error {
		applyLogging(gctx, mgr, logSvc)
		return nil
	})
	g.Go(func() error {
		traceEvents(gctx, bus, log)
		return nil
	})

	log.Info("starting timers",
		logx.Int("timers", len(resolved)),
		logx.Bool("background", disp.Background()),
	)
	finished := startTimers(gctx, g, disp, resolved, log)
	g.Go(func() error {
		select {
		case <-finished:
			log.Info("all timers finished")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	return g.Wait()
}

// startTimers schedules every configured timer. The returned channel is
// closed once every bounded timer is done; it stays open when any timer runs
// until shutdown.
func startTimers(ctx context.Context, g *errgroup.Group, disp *workertimer.Dispatcher, timers []config.Timer, log logx.Logger) <-chan struct{} {
	var (
		wg      sync.WaitGroup
		forever bool
	)
	for _, t := range timers {
		t := t
		tlog := log.With(logx.String("timer", t.Name))

		if !t.Interval {
			fired := make(chan struct{})
			h := disp.SetTimeout(func() {
				tlog.Info("timeout fired", logx.Duration("delay", t.Delay))
				close(fired)
			}, t.Delay)
			wg.Add(1)
			g.Go(func() error {
				defer wg.Done()
				select {
				case <-fired:
				case <-ctx.Done():
				}
				h.Clear()
				return nil
			})
			continue
		}

		if t.MaxTicks == 0 {
			forever = true
		}
		var (
			ticks   atomic.Int64
			reached = make(chan struct{})
			once    sync.Once
		)
		h := disp.SetInterval(func() {
			n := ticks.Add(1)
			tlog.Info("tick", logx.Int64("n", n))
			if t.MaxTicks > 0 && n >= int64(t.MaxTicks) {
				once.Do(func() { close(reached) })
			}
		}, t.Delay)
		wg.Add(1)
		g.Go(func() error {
			defer wg.Done()
			select {
			case <-reached:
			case <-ctx.Done():
			}
			h.Clear()
			return nil
		})
	}

	done := make(chan struct{})
	if forever || len(timers) == 0 {
		return done
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	return done
}

// applyLogging feeds reloaded logging settings into the log service.
func applyLogging(ctx context.Context, mgr *config.ConfigManager, svc *logx.Service) {
	ch := mgr.Subscribe(1)
	defer mgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			svc.Apply(cfg.Logging.Logx())
		}
	}
}

func traceEvents(ctx context.Context, bus eventbus.Bus, log logx.Logger) {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			log.Debug(string(ev.Topic),
				logx.Uint64("session", ev.Timer.Session),
				logx.String("kind", ev.Timer.Kind),
				logx.String("path", string(ev.Timer.Path)),
				logx.Err(ev.Timer.Err),
			)
		}
	}
}
