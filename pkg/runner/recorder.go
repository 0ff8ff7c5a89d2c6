package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// recorder writes the audit trail of one execution.
type recorder struct {
	executions  persistence.ExecutionRepository
	executionID string
}

func (rc *recorder) log(ctx context.Context, entry models.LogEntry) error {
	if err := rc.executions.AppendLog(ctx, rc.executionID, entry); err != nil {
		return fmt.Errorf("failed to append execution log: %w", err)
	}

	return nil
}

func (rc *recorder) update(ctx context.Context, update models.ExecutionUpdate) error {
	if err := rc.executions.Update(ctx, rc.executionID, update); err != nil {
		return fmt.Errorf("failed to update execution to %s: %w", update.Status, err)
	}

	return nil
}

func (rc *recorder) errorEntry(message, stepKey, errMessage string) models.LogEntry {
	entry := models.NewLogEntry(models.LogLevelError, message)
	entry.StepKey = stepKey
	entry.Error = errMessage

	return entry
}

// finish appends entry and moves the execution to a terminal status stamped with finishedAt.
func (rc *recorder) finish(
	ctx context.Context,
	status models.ExecutionStatus,
	entry models.LogEntry,
) (models.ExecutionStatus, error) {
	if err := rc.log(ctx, entry); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	if err := rc.update(ctx, models.ExecutionUpdate{Status: status, FinishedAt: &now}); err != nil {
		return "", err
	}

	return status, nil
}
