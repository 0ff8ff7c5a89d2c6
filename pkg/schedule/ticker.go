package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// TickFunc is one pass of a periodic job.
type TickFunc func(ctx context.Context) error

// Ticker runs a TickFunc on a fixed interval. A tick never overlaps itself; different
// tickers run independently.
type Ticker struct {
	name         string
	interval     time.Duration
	initialDelay time.Duration
	fn           TickFunc
	logger       *slog.Logger

	running atomic.Bool
	cron    *cron.Cron
}

func NewTicker(name string, interval, initialDelay time.Duration, fn TickFunc, logger *slog.Logger) *Ticker {
	return &Ticker{
		name:         name,
		interval:     interval,
		initialDelay: initialDelay,
		fn:           fn,
		logger:       logger.With("module", "ticker", "ticker", name),
	}
}

// Tick runs one pass unless one is already in flight. It reports whether it ran.
func (t *Ticker) Tick(ctx context.Context) bool {
	if !t.running.CompareAndSwap(false, true) {
		t.logger.DebugContext(ctx, "Previous tick still running, skipping")

		return false
	}
	defer t.running.Store(false)

	if err := t.fn(ctx); err != nil {
		t.logger.ErrorContext(ctx, "Tick failed", "error", err)
	}

	return true
}

// Start schedules the ticker until ctx is done. The first tick runs after initialDelay.
func (t *Ticker) Start(ctx context.Context) error {
	if t.interval <= 0 {
		return fmt.Errorf("ticker %s: interval must be positive", t.name)
	}

	cronLogger := cron.PrintfLogger(slog.NewLogLogger(t.logger.Handler(), slog.LevelWarn))

	t.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLogger),
		cron.Recover(cronLogger),
	))

	if _, err := t.cron.AddFunc("@every "+t.interval.String(), func() { t.Tick(ctx) }); err != nil {
		return fmt.Errorf("ticker %s: %w", t.name, err)
	}

	t.cron.Start()
	t.logger.InfoContext(ctx, "Ticker started", "interval", t.interval.String())

	go func() {
		timer := time.NewTimer(t.initialDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			t.Tick(ctx)
		}
	}()

	go func() {
		<-ctx.Done()
		t.Stop()
	}()

	return nil
}

// Stop stops scheduling and waits for a running tick to return.
func (t *Ticker) Stop() {
	if t.cron == nil {
		return
	}

	<-t.cron.Stop().Done()
}
