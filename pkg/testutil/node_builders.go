// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/google/uuid"
)

// TriggerNode creates a graph node with an explicit trigger role.
func TriggerNode(id, triggerType string, config map[string]any) models.GraphNode {
	return models.GraphNode{
		ID:   id,
		Type: "trigger",
		Data: map[string]any{
			"label":  triggerType,
			"type":   triggerType,
			"role":   "trigger",
			"config": orEmpty(config),
		},
		Position: map[string]any{"x": 0.0, "y": 0.0},
	}
}

// ActionNode creates a graph node with an explicit action role. Overrides can change data.
func ActionNode(id, actionType string, config map[string]any, overrides ...func(map[string]any)) models.GraphNode {
	data := map[string]any{
		"label":      actionType,
		"type":       actionType,
		"actionType": actionType,
		"role":       "action",
		"config":     orEmpty(config),
	}

	for _, override := range overrides {
		override(data)
	}

	return models.GraphNode{
		ID:       id,
		Type:     "action",
		Data:     data,
		Position: map[string]any{"x": 100.0, "y": 0.0},
	}
}

// WithOrder sets the numeric order hint on an action node.
func WithOrder(order float64) func(map[string]any) {
	return func(data map[string]any) {
		data["order"] = order
	}
}

// WithTimeoutMs sets the per-node timeout.
func WithTimeoutMs(ms float64) func(map[string]any) {
	return func(data map[string]any) {
		data["timeoutMs"] = ms
	}
}

// Edge links source to target.
func Edge(source, target string) models.Edge {
	return models.Edge{ID: "e-" + source + "-" + target, Source: source, Target: target}
}

// NewGraph assembles a graph document.
func NewGraph(nodes []models.GraphNode, edges ...models.Edge) models.Graph {
	return models.Graph{Nodes: nodes, Edges: edges}
}

// CreateTestWorkflow creates an active webhook workflow with default values that can be overridden.
func CreateTestWorkflow(overrides ...func(*models.Workflow)) *models.Workflow {
	now := time.Now().UTC()
	workflow := &models.Workflow{
		ID:          uuid.NewString(),
		Name:        "Test Workflow",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerTypeWebhook,
		Graph: NewGraph(
			[]models.GraphNode{
				TriggerNode("trigger", "webhook", nil),
				ActionNode("transform", "Transformation", map[string]any{"mapping": map[string]any{"ok": true}}),
			},
			Edge("trigger", "transform"),
		),
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// WithGraph replaces the workflow graph.
func WithGraph(g models.Graph) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Graph = g
	}
}

// WithTriggerType sets the trigger hint.
func WithTriggerType(t models.TriggerType) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.TriggerType = t
	}
}

// WithStatus sets the workflow status.
func WithStatus(s models.WorkflowStatus) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Status = s
	}
}

func orEmpty(config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}

	return config
}
