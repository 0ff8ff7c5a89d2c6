package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/mailbox"
	"github.com/dukex/autoflow/pkg/schedule"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cronStub struct{ calls int }

func (c *cronStub) RunCron(context.Context, any) (schedule.CronRunResult, error) {
	c.calls++

	return schedule.CronRunResult{Queued: 1}, nil
}

type pollerStub struct{ calls int }

func (p *pollerStub) PollAll(context.Context) (mailbox.PollSummary, error) {
	p.calls++

	return mailbox.PollSummary{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewScheduler_TicksCallBothPasses(t *testing.T) {
	t.Parallel()

	cron := &cronStub{}
	poller := &pollerStub{}

	s := NewScheduler(cron, poller, time.Minute, time.Minute, discardLogger())
	require.Len(t, s.tickers, 2)

	for _, ticker := range s.tickers {
		assert.True(t, ticker.Tick(context.Background()))
	}

	assert.Equal(t, 1, cron.calls)
	assert.Equal(t, 1, poller.calls)
}

func TestNewScheduler_ZeroIntervalDisables(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&cronStub{}, &pollerStub{}, 0, time.Minute, discardLogger())
	assert.Len(t, s.tickers, 1)

	s = NewScheduler(&cronStub{}, &pollerStub{}, 0, 0, discardLogger())
	assert.Empty(t, s.tickers)
}

func TestScheduler_RunReturnsOnCancel(t *testing.T) {
	t.Parallel()

	s := NewScheduler(&cronStub{}, &pollerStub{}, time.Hour, time.Hour, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- s.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
