package models

import "time"

// Source names the trigger kind that fired a run.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceCron    Source = "cron"
	SourceEmail   Source = "email"
)

// Job is the unit handed from triggers to the dispatcher and from the queue to the runner.
type Job struct {
	WorkflowID  string `json:"workflowId"`
	ExecutionID string `json:"executionId,omitempty"`
	Payload     any    `json:"payload"`
	Source      Source `json:"source"`
}

// Record is a generic row of the data store exposed to Database steps.
type Record struct {
	ID        string         `json:"id"`
	Model     string         `json:"model"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Flatten returns the record data with id and timestamps merged in, the shape passed on
// to the next step.
func (r *Record) Flatten() map[string]any {
	out := make(map[string]any, len(r.Data)+3)
	for k, v := range r.Data {
		out[k] = v
	}

	out["id"] = r.ID
	out["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	out["updatedAt"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)

	return out
}
