// Package web provides the HTTP handlers of the workflow API: trigger intake, queue
// delivery, scheduler passes and workflow management.
package web

import "github.com/dukex/autoflow/pkg/models"

// SaveWorkflowRequest is the body of workflow create and update calls.
type SaveWorkflowRequest struct {
	Name        string                `json:"name"        validate:"required,min=1,max=255"`
	Status      models.WorkflowStatus `json:"status"      validate:"omitempty,oneof=ACTIVE INACTIVE"`
	TriggerType models.TriggerType    `json:"triggerType" validate:"required,oneof=WEBHOOK CRON EMAIL"`
	GraphData   *models.Graph         `json:"graphData"   validate:"required"`
}

// Workflow builds the model to store. An empty status is left for the service to default.
func (r SaveWorkflowRequest) Workflow() *models.Workflow {
	return &models.Workflow{
		Name:        r.Name,
		Status:      r.Status,
		TriggerType: r.TriggerType,
		Graph:       *r.GraphData,
	}
}

// WorkflowResponse is returned by workflow create and update calls.
type WorkflowResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Status      models.WorkflowStatus `json:"status"`
	TriggerType models.TriggerType    `json:"triggerType"`
}

func newWorkflowResponse(wf *models.Workflow) WorkflowResponse {
	return WorkflowResponse{ID: wf.ID, Name: wf.Name, Status: wf.Status, TriggerType: wf.TriggerType}
}

// CheckMailboxRequest is the body of the IMAP connection check.
type CheckMailboxRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Host     string `json:"host"`
	Port     int    `json:"port"     validate:"omitempty,min=1,max=65535"`
}
