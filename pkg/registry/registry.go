// Package registry maps canonical step types to the factories that build their handlers.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

// ErrUnsupportedStepType is returned for step types without a registered factory.
var ErrUnsupportedStepType = errors.New("Unsupported step type") //nolint:stylecheck // surfaced verbatim in execution logs

type Registry struct {
	logger          *slog.Logger
	actionFactories map[models.StepType]protocol.ActionFactory
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log,
		actionFactories: make(map[models.StepType]protocol.ActionFactory),
	}
}

// RegisterAction adds a factory, replacing any previous one for the same type.
func (r *Registry) RegisterAction(actionFactory protocol.ActionFactory) {
	if _, exists := r.actionFactories[actionFactory.ID()]; exists {
		r.logger.Warn("Replacing registered action", "type", actionFactory.ID())
	}

	r.actionFactories[actionFactory.ID()] = actionFactory
}

// CreateAction builds the handler for one step.
//
//nolint:ireturn // returns the protocol interface
func (r *Registry) CreateAction(step models.WorkflowStep) (protocol.Action, error) {
	factory, ok := r.actionFactories[step.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStepType, step.Type)
	}

	return factory.Create(step.Config)
}

// ActionInfo describes a registered action for API listings.
type ActionInfo struct {
	Type        models.StepType `json:"type"`
	Description string          `json:"description"`
	Schema      map[string]any  `json:"schema"`
}

// Actions returns the registered actions sorted by type.
func (r *Registry) Actions() []ActionInfo {
	infos := make([]ActionInfo, 0, len(r.actionFactories))

	for _, f := range r.actionFactories {
		infos = append(infos, ActionInfo{Type: f.ID(), Description: f.Description(), Schema: f.Schema()})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })

	return infos
}
