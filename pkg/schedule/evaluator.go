package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/graph"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// Launcher creates and dispatches one execution. *services.Launcher implements it.
type Launcher interface {
	Launch(ctx context.Context, workflowID string, source models.Source, payload any, message string) (string, error)
}

// QueuedExecution identifies one run queued by a cron pass.
type QueuedExecution struct {
	WorkflowID  string `json:"workflowId"`
	ExecutionID string `json:"executionId"`
}

// CronRunResult is the outcome of one cron pass.
type CronRunResult struct {
	Queued     int               `json:"queued"`
	Executions []QueuedExecution `json:"executions"`
}

type Evaluator struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	launcher   Launcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewEvaluator(store persistence.Persistence, launcher Launcher, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		workflows:  store.WorkflowRepository(),
		executions: store.ExecutionRepository(),
		launcher:   launcher,
		logger:     logger.With("module", "schedule"),
		now:        time.Now,
	}
}

// IsDue is Due with schedule errors logged and treated as not due.
func (e *Evaluator) IsDue(g models.Graph, now time.Time, lastRunAt *time.Time) bool {
	due, err := Due(g, now, lastRunAt)
	if err != nil {
		e.logger.Warn("Invalid cron expression", "error", err)

		return false
	}

	return due
}

// RunCron queues one run for every ACTIVE workflow whose schedule fired since its last run.
// A failure on one workflow is logged and does not stop the others.
func (e *Evaluator) RunCron(ctx context.Context, payload any) (CronRunResult, error) {
	result := CronRunResult{Executions: []QueuedExecution{}}

	if payload == nil {
		payload = map[string]any{}
	}

	workflows, err := e.workflows.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to list active workflows: %w", err)
	}

	now := e.now()

	for _, wf := range workflows {
		if !scheduled(wf) {
			continue
		}

		logger := e.logger.With("workflow_id", wf.ID)

		lastRunAt, err := e.executions.LastRunAt(ctx, wf.ID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to read last run", "error", err)

			continue
		}

		due, err := Due(wf.Graph, now, lastRunAt)
		if err != nil {
			logger.WarnContext(ctx, "Invalid cron expression", "error", err)

			continue
		}

		if !due {
			continue
		}

		executionID, err := e.launcher.Launch(ctx, wf.ID, models.SourceCron, map[string]any{
			"scheduledAt": e.now().UTC().Format(time.RFC3339Nano),
			"payload":     payload,
		}, "Cron trigger received")
		if err != nil {
			logger.ErrorContext(ctx, "Failed to queue cron run", "error", err)

			continue
		}

		result.Executions = append(result.Executions, QueuedExecution{WorkflowID: wf.ID, ExecutionID: executionID})
	}

	result.Queued = len(result.Executions)

	if result.Queued > 0 {
		e.logger.InfoContext(ctx, "Queued cron workflows", "queued", result.Queued)
	}

	return result, nil
}

func scheduled(wf *models.Workflow) bool {
	if wf.TriggerType == models.TriggerTypeCron {
		return true
	}

	_, ok := graph.ConnectedTrigger(wf.Graph, graph.TriggerSchedule)

	return ok
}
