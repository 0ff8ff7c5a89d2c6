// Package main provides the Autoflow scheduler, which drives cron triggers and mailbox polling.
package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/mailbox"
	"github.com/dukex/autoflow/pkg/schedule"
	"github.com/dukex/autoflow/pkg/web"
)

const (
	defaultCronInterval    = 30 * time.Second
	defaultMailboxInterval = 2 * time.Minute
	cronInitialDelay       = 5 * time.Second
	mailboxInitialDelay    = 10 * time.Second
)

// Scheduler drives the cron evaluator and the mailbox poller on their own tickers.
type Scheduler struct {
	tickers []*schedule.Ticker
	logger  *slog.Logger
}

func NewScheduler(
	cron web.CronRunner,
	poller web.MailboxPoller,
	cronInterval, mailboxInterval time.Duration,
	logger *slog.Logger,
) *Scheduler {
	s := &Scheduler{logger: logger}

	if cronInterval > 0 {
		s.tickers = append(s.tickers, schedule.NewTicker("cron", cronInterval, cronInitialDelay,
			func(ctx context.Context) error {
				result, err := cron.RunCron(ctx, nil)
				if err == nil && result.Queued > 0 {
					logger.InfoContext(ctx, "Cron pass queued executions", "queued", result.Queued)
				}

				return err
			}, logger))
	}

	if mailboxInterval > 0 {
		s.tickers = append(s.tickers, schedule.NewTicker("mailbox", mailboxInterval, mailboxInitialDelay,
			func(ctx context.Context) error {
				_, err := poller.PollAll(ctx)

				return err
			}, logger))
	}

	return s
}

// Run starts every ticker and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, t := range s.tickers {
		if err := t.Start(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()

	for _, t := range s.tickers {
		t.Stop()
	}

	return nil
}

var _ web.MailboxPoller = (*mailbox.Poller)(nil)
