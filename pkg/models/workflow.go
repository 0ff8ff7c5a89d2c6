// Package models defines the core domain models for graph-based workflow automation.
package models

import "time"

// WorkflowStatus represents whether a workflow accepts new runs.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "ACTIVE"
	WorkflowStatusInactive WorkflowStatus = "INACTIVE"
)

// TriggerType is the trigger hint stored with a workflow. The graph remains the authority
// on which triggers are actually connected.
type TriggerType string

const (
	TriggerTypeWebhook TriggerType = "WEBHOOK"
	TriggerTypeCron    TriggerType = "CRON"
	TriggerTypeEmail   TriggerType = "EMAIL"
)

// Workflow is a user-defined automation made of trigger and action nodes.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"        validate:"required,min=1,max=255"`
	Status      WorkflowStatus `json:"status"      validate:"required,oneof=ACTIVE INACTIVE"`
	TriggerType TriggerType    `json:"triggerType" validate:"required,oneof=WEBHOOK CRON EMAIL"`
	Graph       Graph          `json:"graphData"`
	UserID      string         `json:"userId,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// IsActive reports whether the workflow accepts new runs.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}
