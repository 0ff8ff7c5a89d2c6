// Package dispatch hands jobs from triggers to the execution runner, either through a message
// queue or inline in the calling process.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

const (
	// Topic carries encoded models.Job payloads.
	Topic = "autoflow.workflow.jobs"
	// DedupKeyMetadata is the message metadata key holding the job's dedup key.
	DedupKeyMetadata = "dedup_key"
)

// Dispatcher accepts jobs for asynchronous execution.
type Dispatcher interface {
	Enqueue(ctx context.Context, job models.Job) error
}

// Handler runs one job to completion. The runner implements it.
type Handler interface {
	Run(ctx context.Context, job models.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job models.Job) error

func (f HandlerFunc) Run(ctx context.Context, job models.Job) error {
	return f(ctx, job)
}

// DedupKey is the execution id when present, else workflowId:source:unixMillis.
func DedupKey(job models.Job, now time.Time) string {
	if job.ExecutionID != "" {
		return job.ExecutionID
	}

	return fmt.Sprintf("%s:%s:%d", job.WorkflowID, job.Source, now.UnixMilli())
}
