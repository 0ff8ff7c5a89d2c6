package transform

import (
	"time"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

// ActionFactory is the factory for creating Transformation actions.
type ActionFactory struct {
	budget time.Duration
}

// NewActionFactory creates a factory; a zero budget uses DefaultExpressionBudget.
func NewActionFactory(budget time.Duration) *ActionFactory {
	return &ActionFactory{budget: budget}
}

//nolint:ireturn // factories return the protocol interface
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.budget)
}

func (f *ActionFactory) ID() models.StepType {
	return models.StepTypeTransformation
}

func (f *ActionFactory) Description() string {
	return "Transforms the previous step output with an expression or a field mapping."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"format":      "code",
				"description": "Expression evaluated with only `input` in scope.",
				"examples": []string{
					"input.user.name",
					"{\"total\": sum(map(input.items, .price))}",
					"filter(input.orders, .total > 100)",
				},
			},
			"mapping": map[string]any{
				"description": "Output key to input path (\"input.user.name\", \"$.id\") or literal value.",
				"examples": []map[string]any{
					{"name": "input.user.name", "source": "webhook"},
				},
			},
		},
	}
}
