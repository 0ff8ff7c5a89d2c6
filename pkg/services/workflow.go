package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/google/uuid"
)

const (
	DefaultExecutionsLimit = 20
	MaxExecutionsLimit     = 100
)

type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().GetByID(ctx, id)
}

// Create stores a new workflow. Status defaults to ACTIVE.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	now := time.Now().UTC()
	workflow.ID = uuid.NewString()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusActive
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update replaces name, status, trigger hint and graph of an existing workflow.
func (w *Workflow) Update(
	ctx context.Context,
	workflowID string,
	workflow *models.Workflow,
) (*models.Workflow, error) {
	existing, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	workflow.ID = workflowID
	workflow.UserID = existing.UserID
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if workflow.Status == "" {
		workflow.Status = existing.Status
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Executions returns the latest runs of a workflow with their steps. limit is clamped to
// 1..MaxExecutionsLimit, zero or less meaning DefaultExecutionsLimit.
func (w *Workflow) Executions(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error) {
	if _, err := w.persistence.WorkflowRepository().GetByID(ctx, workflowID); err != nil {
		return nil, err
	}

	switch {
	case limit <= 0:
		limit = DefaultExecutionsLimit
	case limit > MaxExecutionsLimit:
		limit = MaxExecutionsLimit
	}

	executions, err := w.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return executions, nil
}

// Summary is a workflow with its most recent run, the shape of the workflow list.
type Summary struct {
	ID          string                  `json:"id"`
	Name        string                  `json:"name"`
	Status      models.WorkflowStatus   `json:"status"`
	TriggerType models.TriggerType      `json:"triggerType"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
	LastRun     *time.Time              `json:"lastRun"`
	LastStatus  *models.ExecutionStatus `json:"lastStatus"`
}

// Summaries lists every workflow, most recently updated first.
func (w *Workflow) Summaries(ctx context.Context) ([]Summary, error) {
	workflows, err := w.List(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(workflows, func(i, j int) bool {
		return workflows[i].UpdatedAt.After(workflows[j].UpdatedAt)
	})

	summaries := make([]Summary, 0, len(workflows))

	for _, wf := range workflows {
		summary := Summary{
			ID:          wf.ID,
			Name:        wf.Name,
			Status:      wf.Status,
			TriggerType: wf.TriggerType,
			CreatedAt:   wf.CreatedAt,
			UpdatedAt:   wf.UpdatedAt,
		}

		last, err := w.persistence.ExecutionRepository().ListByWorkflow(ctx, wf.ID, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to load last run: %w", err)
		}

		if len(last) > 0 {
			status := last[0].Status
			summary.LastRun = last[0].StartedAt
			summary.LastStatus = &status
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}
