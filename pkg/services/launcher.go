package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/autoflow/pkg/dispatch"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/google/uuid"
)

// Launcher creates the PENDING execution for a trigger firing and hands the job to the
// dispatcher.
type Launcher struct {
	executions persistence.ExecutionRepository
	dispatcher dispatch.Dispatcher
	logger     *slog.Logger
}

func NewLauncher(executions persistence.ExecutionRepository, dispatcher dispatch.Dispatcher, logger *slog.Logger) *Launcher {
	return &Launcher{executions: executions, dispatcher: dispatcher, logger: logger.With("module", "launcher")}
}

// Launch returns the new execution id. When dispatch fails the execution is closed as FAIL
// so it does not stay PENDING forever.
func (l *Launcher) Launch(
	ctx context.Context,
	workflowID string,
	source models.Source,
	payload any,
	message string,
) (string, error) {
	execution := &models.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		Status:     models.ExecutionStatusPending,
		Logs:       []models.LogEntry{models.NewLogEntry(models.LogLevelInfo, message)},
	}

	if err := l.executions.Create(ctx, execution); err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}

	job := models.Job{
		WorkflowID:  workflowID,
		ExecutionID: execution.ID,
		Payload:     payload,
		Source:      source,
	}

	if err := l.dispatcher.Enqueue(ctx, job); err != nil {
		l.logger.ErrorContext(ctx, "Dispatch failed",
			"workflow_id", workflowID, "execution_id", execution.ID, "error", err)

		entry := models.NewLogEntry(models.LogLevelError, "Dispatch failed")
		entry.Error = err.Error()
		now := time.Now().UTC()

		if logErr := l.executions.AppendLog(ctx, execution.ID, entry); logErr != nil {
			l.logger.WarnContext(ctx, "Failed to record dispatch failure", "error", logErr)
		}

		if updErr := l.executions.Update(ctx, execution.ID, models.ExecutionUpdate{
			Status:     models.ExecutionStatusFail,
			FinishedAt: &now,
		}); updErr != nil {
			l.logger.WarnContext(ctx, "Failed to close undispatched execution", "error", updErr)
		}

		return "", fmt.Errorf("failed to dispatch workflow %s: %w", workflowID, err)
	}

	l.logger.DebugContext(ctx, "Execution queued",
		"workflow_id", workflowID, "execution_id", execution.ID, "source", source)

	return execution.ID, nil
}
