// Package persistence provides the data storage abstraction for workflows, executions and
// the generic records exposed to Database steps.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/autoflow/pkg/models"
)

type Persistence interface {
	WorkflowRepository() WorkflowRepository
	ExecutionRepository() ExecutionRepository
	RecordRepository() RecordRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	GetAll(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	// ListActive returns every ACTIVE workflow regardless of its trigger hint.
	ListActive(ctx context.Context) ([]*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	// UpdateGraph replaces only the graph document, used when a trigger cursor advances.
	UpdateGraph(ctx context.Context, id string, graph models.Graph) error
	Delete(ctx context.Context, id string) error
}

// ExecutionRepository stores runs, their append-only logs and their steps.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	Update(ctx context.Context, id string, update models.ExecutionUpdate) error
	AppendLog(ctx context.Context, id string, entry models.LogEntry) error
	// ListByWorkflow returns the newest executions first, with their steps. limit <= 0 means all.
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.Execution, error)
	// LastRunAt returns the latest start time among runs, counting a run that has not
	// started yet by its creation time. Nil if the workflow never ran.
	LastRunAt(ctx context.Context, workflowID string) (*time.Time, error)

	CreateStep(ctx context.Context, step *models.ExecutionStep) error
	CompleteStep(ctx context.Context, id string, status models.StepStatus, output any, durationMs int64) error
	StepsByExecution(ctx context.Context, executionID string) ([]*models.ExecutionStep, error)
}

// RecordRepository is a schemaless document store keyed by model name. A where clause
// matches records whose data contains every given key/value; the key "id" matches the
// record id.
type RecordRepository interface {
	Create(ctx context.Context, model string, data map[string]any) (*models.Record, error)
	Update(ctx context.Context, model string, where, data map[string]any) (*models.Record, error)
	Upsert(ctx context.Context, model string, where, create, update map[string]any) (*models.Record, error)
	Delete(ctx context.Context, model string, where map[string]any) (*models.Record, error)
	FindMany(ctx context.Context, model string, where map[string]any, take int) ([]*models.Record, error)
	// FindUnique returns nil without error when nothing matches.
	FindUnique(ctx context.Context, model string, where map[string]any) (*models.Record, error)
}
