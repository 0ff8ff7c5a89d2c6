package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

// Stats summarises every run of one workflow.
type Stats struct {
	Total         int                            `json:"total"`
	StatusCounts  map[models.ExecutionStatus]int `json:"statusCounts"`
	SuccessRate   float64                        `json:"successRate"`
	AvgDurationMs int64                          `json:"avgDurationMs"`
	LastRunAt     *time.Time                     `json:"lastRunAt"`
	LastStatus    *models.ExecutionStatus        `json:"lastStatus"`
}

func (w *Workflow) Stats(ctx context.Context, workflowID string) (*Stats, error) {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	executions, err := w.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load executions: %w", err)
	}

	return ComputeStats(executions), nil
}

// ComputeStats derives Stats. Unfinished and unstarted runs are left out of the average
// duration; only started runs count for the last run.
func ComputeStats(executions []*models.Execution) *Stats {
	stats := &Stats{
		Total:        len(executions),
		StatusCounts: make(map[models.ExecutionStatus]int),
	}

	var (
		totalMs  int64
		measured int64
		last     *models.Execution
	)

	for _, execution := range executions {
		stats.StatusCounts[execution.Status]++

		if d, ok := execution.Duration(); ok && d > 0 {
			totalMs += d.Milliseconds()
			measured++
		}

		if execution.StartedAt != nil && (last == nil || execution.StartedAt.After(*last.StartedAt)) {
			last = execution
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.StatusCounts[models.ExecutionStatusSuccess]) / float64(stats.Total)
	}

	if measured > 0 {
		stats.AvgDurationMs = (totalMs + measured/2) / measured
	}

	if last != nil {
		startedAt := *last.StartedAt
		status := last.Status
		stats.LastRunAt = &startedAt
		stats.LastStatus = &status
	}

	return stats
}
