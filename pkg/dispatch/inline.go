package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
)

// Inline runs each job on its own goroutine, detached from the caller's cancellation.
// Run errors and panics are logged and never returned, so a trigger never fails because its
// workflow did.
type Inline struct {
	handler Handler
	logger  *slog.Logger
	running sync.WaitGroup
}

func NewInline(handler Handler, logger *slog.Logger) *Inline {
	return &Inline{handler: handler, logger: logger.With("module", "dispatch")}
}

// Enqueue validates the job and returns as soon as its run has been started.
func (i *Inline) Enqueue(ctx context.Context, job models.Job) error {
	if err := Validate(job); err != nil {
		return err
	}

	runCtx := context.WithoutCancel(ctx)

	i.running.Add(1)

	go func() {
		defer i.running.Done()

		if err := i.run(runCtx, job); err != nil {
			i.logger.ErrorContext(runCtx, "Inline execution failed",
				"workflow_id", job.WorkflowID,
				"execution_id", job.ExecutionID,
				"error", err)
		}
	}()

	return nil
}

// Wait blocks until every started run has returned.
func (i *Inline) Wait() {
	i.running.Wait()
}

func (i *Inline) run(ctx context.Context, job models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return i.handler.Run(ctx, job)
}
