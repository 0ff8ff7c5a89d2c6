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

const workflowsCollection = "workflows"

// WorkflowRepository handles workflow-related file operations.
type WorkflowRepository struct {
	store *jsonStore
	mu    *sync.RWMutex
}

func (wr *WorkflowRepository) GetAll(_ context.Context) ([]*models.Workflow, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	return wr.all()
}

func (wr *WorkflowRepository) all() ([]*models.Workflow, error) {
	ids, err := wr.store.ids(workflowsCollection)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(ids))

	for _, id := range ids {
		var workflow models.Workflow
		if err := wr.store.read(workflowsCollection, id, &workflow); err != nil {
			return nil, fmt.Errorf("failed to load workflow %s: %w", id, err)
		}

		workflows = append(workflows, &workflow)
	}

	sort.Slice(workflows, func(i, j int) bool {
		return workflows[i].CreatedAt.After(workflows[j].CreatedAt)
	})

	return workflows, nil
}

// GetByID retrieves a workflow by its ID from the file system.
func (wr *WorkflowRepository) GetByID(_ context.Context, workflowID string) (*models.Workflow, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	return wr.get(workflowID)
}

func (wr *WorkflowRepository) get(workflowID string) (*models.Workflow, error) {
	var workflow models.Workflow

	err := wr.store.read(workflowsCollection, workflowID, &workflow)
	if errors.Is(err, errNotExist) {
		return nil, persistence.NewWorkflowError("GetByID", workflowID, persistence.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, err
	}

	return &workflow, nil
}

func (wr *WorkflowRepository) ListActive(_ context.Context) ([]*models.Workflow, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	all, err := wr.all()
	if err != nil {
		return nil, err
	}

	active := make([]*models.Workflow, 0, len(all))
	for _, w := range all {
		if w.IsActive() {
			active = append(active, w)
		}
	}

	return active, nil
}

// Save saves a workflow to the file system.
func (wr *WorkflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	return wr.store.write(workflowsCollection, workflow.ID, workflow)
}

func (wr *WorkflowRepository) UpdateGraph(_ context.Context, id string, graph models.Graph) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	workflow, err := wr.get(id)
	if err != nil {
		return persistence.NewWorkflowError("UpdateGraph", id, err)
	}

	workflow.Graph = graph
	workflow.UpdatedAt = time.Now().UTC()

	return wr.store.write(workflowsCollection, id, workflow)
}

// Delete removes a workflow by its ID from the file system.
func (wr *WorkflowRepository) Delete(_ context.Context, id string) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	err := wr.store.remove(workflowsCollection, id)
	if errors.Is(err, errNotExist) {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	return err
}
