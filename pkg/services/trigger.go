package services

import (
	"context"
	"fmt"

	"github.com/dukex/autoflow/pkg/graph"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// TriggerResult is returned to the caller of an inbound trigger.
type TriggerResult struct {
	Queued      bool   `json:"queued"`
	ExecutionID string `json:"executionId"`
}

// Trigger accepts pushed trigger events: webhooks and inbound email.
type Trigger struct {
	workflows persistence.WorkflowRepository
	launcher  *Launcher
}

func NewTrigger(workflows persistence.WorkflowRepository, launcher *Launcher) *Trigger {
	return &Trigger{workflows: workflows, launcher: launcher}
}

// Webhook starts a run of an ACTIVE webhook workflow whose webhook trigger is connected.
func (t *Trigger) Webhook(ctx context.Context, workflowID string, payload any) (*TriggerResult, error) {
	workflow, err := t.activeWorkflow(ctx, "Webhook", workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.TriggerType != models.TriggerTypeWebhook {
		return nil, newPolicyError("Webhook", "TRIGGER_TYPE_MISMATCH",
			"Workflow trigger type is not webhook", ErrTriggerTypeMismatch)
	}

	if _, ok := graph.ConnectedTrigger(workflow.Graph, graph.TriggerWebhook); !ok {
		return nil, newPolicyError("Webhook", "TRIGGER_NOT_CONNECTED",
			"Workflow does not have a connected webhook trigger", ErrTriggerNotConnected)
	}

	return t.launch(ctx, workflow, models.SourceWebhook, payload, "Webhook received")
}

// InboundEmail starts a run for an email pushed by a mail provider. Only a connected email
// trigger is required; the trigger hint is not consulted.
func (t *Trigger) InboundEmail(ctx context.Context, workflowID string, payload any) (*TriggerResult, error) {
	workflow, err := t.activeWorkflow(ctx, "InboundEmail", workflowID)
	if err != nil {
		return nil, err
	}

	if _, ok := graph.ConnectedTrigger(workflow.Graph, graph.TriggerEmail); !ok {
		return nil, newPolicyError("InboundEmail", "TRIGGER_NOT_CONNECTED",
			"Workflow does not have a connected email trigger", ErrTriggerNotConnected)
	}

	return t.launch(ctx, workflow, models.SourceEmail, payload, "Inbound email received")
}

func (t *Trigger) activeWorkflow(ctx context.Context, op, workflowID string) (*models.Workflow, error) {
	if workflowID == "" {
		return nil, newPolicyError(op, "MISSING_WORKFLOW_ID", "Missing workflowId", ErrInvalidRequest)
	}

	workflow, err := t.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsActive() {
		return nil, newPolicyError(op, "WORKFLOW_INACTIVE", "Workflow not found or inactive", ErrWorkflowInactive)
	}

	return workflow, nil
}

func (t *Trigger) launch(
	ctx context.Context,
	workflow *models.Workflow,
	source models.Source,
	payload any,
	message string,
) (*TriggerResult, error) {
	executionID, err := t.launcher.Launch(ctx, workflow.ID, source, payload, message)
	if err != nil {
		return nil, fmt.Errorf("failed to start workflow: %w", err)
	}

	return &TriggerResult{Queued: true, ExecutionID: executionID}, nil
}
