package file

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

const (
	executionsCollection = "executions"
	stepsCollection      = "execution_steps"
)

// ExecutionRepository stores executions and their steps as separate documents.
type ExecutionRepository struct {
	store *jsonStore
	mu    *sync.RWMutex
}

func (er *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if execution.CreatedAt.IsZero() {
		execution.CreatedAt = time.Now().UTC()
	}

	if execution.Logs == nil {
		execution.Logs = []models.LogEntry{}
	}

	stored := *execution
	stored.Steps = nil

	return er.store.write(executionsCollection, execution.ID, &stored)
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	execution, err := er.get(id)
	if err != nil {
		return nil, err
	}

	steps, err := er.steps(id)
	if err != nil {
		return nil, err
	}

	execution.Steps = steps

	return execution, nil
}

func (er *ExecutionRepository) get(id string) (*models.Execution, error) {
	var execution models.Execution

	err := er.store.read(executionsCollection, id, &execution)
	if errors.Is(err, errNotExist) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, err
	}

	return &execution, nil
}

func (er *ExecutionRepository) Update(_ context.Context, id string, update models.ExecutionUpdate) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.get(id)
	if err != nil {
		return err
	}

	if update.Status != "" {
		execution.Status = update.Status
	}

	if update.StartedAt != nil {
		execution.StartedAt = update.StartedAt
	}

	if update.FinishedAt != nil {
		execution.FinishedAt = update.FinishedAt
	}

	return er.store.write(executionsCollection, id, execution)
}

func (er *ExecutionRepository) AppendLog(_ context.Context, id string, entry models.LogEntry) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	execution, err := er.get(id)
	if err != nil {
		return err
	}

	execution.Logs = append(execution.Logs, entry)

	return er.store.write(executionsCollection, id, execution)
}

func (er *ExecutionRepository) ListByWorkflow(_ context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	ids, err := er.store.ids(executionsCollection)
	if err != nil {
		return nil, err
	}

	var executions []*models.Execution

	for _, id := range ids {
		execution, err := er.get(id)
		if err != nil {
			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.After(executions[j].CreatedAt)
	})

	if limit > 0 && len(executions) > limit {
		executions = executions[:limit]
	}

	for _, execution := range executions {
		steps, err := er.steps(execution.ID)
		if err != nil {
			return nil, err
		}

		execution.Steps = steps
	}

	return executions, nil
}

func (er *ExecutionRepository) LastRunAt(ctx context.Context, workflowID string) (*time.Time, error) {
	executions, err := er.ListByWorkflow(ctx, workflowID, 0)
	if err != nil {
		return nil, err
	}

	var last *time.Time

	for _, e := range executions {
		at := e.StartedAt
		if at == nil {
			at = &e.CreatedAt
		}

		if last == nil || at.After(*last) {
			last = at
		}
	}

	return last, nil
}

func (er *ExecutionRepository) CreateStep(_ context.Context, step *models.ExecutionStep) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	if step.CreatedAt.IsZero() {
		step.CreatedAt = time.Now().UTC()
	}

	return er.store.write(stepsCollection, step.ID, step)
}

func (er *ExecutionRepository) CompleteStep(_ context.Context, id string, status models.StepStatus, output any, durationMs int64) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	var step models.ExecutionStep

	err := er.store.read(stepsCollection, id, &step)
	if errors.Is(err, errNotExist) {
		return fmt.Errorf("complete step %s: %w", id, persistence.ErrStepNotFound)
	}

	if err != nil {
		return err
	}

	step.Status = status
	step.Output = output
	step.DurationMs = durationMs

	return er.store.write(stepsCollection, id, &step)
}

func (er *ExecutionRepository) StepsByExecution(_ context.Context, executionID string) ([]*models.ExecutionStep, error) {
	er.mu.RLock()
	defer er.mu.RUnlock()

	return er.steps(executionID)
}

func (er *ExecutionRepository) steps(executionID string) ([]*models.ExecutionStep, error) {
	ids, err := er.store.ids(stepsCollection)
	if err != nil {
		return nil, err
	}

	var steps []*models.ExecutionStep

	for _, id := range ids {
		var step models.ExecutionStep
		if err := er.store.read(stepsCollection, id, &step); err != nil {
			return nil, err
		}

		if step.ExecutionID == executionID {
			steps = append(steps, &step)
		}
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].StepOrder < steps[j].StepOrder })

	return steps, nil
}
