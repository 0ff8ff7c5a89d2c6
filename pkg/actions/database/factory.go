package database

import (
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/protocol"
)

type ActionFactory struct {
	store persistence.RecordRepository
}

func NewActionFactory(store persistence.RecordRepository) *ActionFactory {
	return &ActionFactory{store: store}
}

//nolint:ireturn // factories return the protocol interface
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.store)
}

func (f *ActionFactory) ID() models.StepType {
	return models.StepTypeDatabase
}

func (f *ActionFactory) Description() string {
	return "Creates, updates, deletes or queries records of a model."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"model": map[string]any{"type": "string"},
			"operation": map[string]any{
				"type":    "string",
				"default": OpCreate,
				"enum":    []string{OpCreate, OpUpdate, OpUpsert, OpDelete, OpFindMany, OpFindUnique},
			},
			"args": map[string]any{
				"description": "Operation arguments (where, data, create, update, take) as an object or JSON string.",
			},
		},
		"required": []string{"model"},
	}
}
