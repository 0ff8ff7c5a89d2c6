// Package protocol defines the contracts shared by step handlers and the runner.
package protocol

import (
	"context"

	"github.com/dukex/autoflow/pkg/models"
)

// Action executes one configured step. Implementations must not touch execution records.
type Action interface {
	Execute(ctx context.Context, input any) (any, error)
}

// ActionFactory builds an Action from a step's config and describes it.
type ActionFactory interface {
	Create(config map[string]any) (Action, error)
	ID() models.StepType
	Description() string
	Schema() map[string]any
}
