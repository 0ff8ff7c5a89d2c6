// Package database provides the Database step handler on top of the generic record store.
package database

import (
	"context"
	"fmt"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/graph"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// Supported operations.
const (
	OpCreate     = "create"
	OpUpdate     = "update"
	OpUpsert     = "upsert"
	OpDelete     = "delete"
	OpFindMany   = "findMany"
	OpFindUnique = "findUnique"
)

var allowedOperations = map[string]bool{
	OpCreate: true, OpUpdate: true, OpUpsert: true, OpDelete: true, OpFindMany: true, OpFindUnique: true,
}

// Action runs one operation against a model of the record store.
type Action struct {
	Model     string
	Operation string
	Args      map[string]any

	store persistence.RecordRepository
}

func NewAction(config map[string]any, store persistence.RecordRepository) (*Action, error) {
	model := actions.String(config, "model")
	if model == "" {
		return nil, actions.ConfigError("Database step missing model")
	}

	operation := actions.String(config, "operation")
	if operation == "" {
		operation = OpCreate
	}

	if !allowedOperations[operation] {
		return nil, actions.ConfigError("Unsupported database operation: %s", operation)
	}

	return &Action{
		Model:     model,
		Operation: operation,
		Args:      actions.Object(config["args"]),
		store:     store,
	}, nil
}

func (a *Action) Execute(ctx context.Context, input any) (any, error) {
	where := actions.Object(a.Args["where"])

	switch a.Operation {
	case OpCreate:
		data, ok := a.Args["data"].(map[string]any)
		if !ok {
			data = wrapInput(input)
		}

		return flatten(a.store.Create(ctx, a.Model, data))
	case OpUpdate:
		return flatten(a.store.Update(ctx, a.Model, where, actions.Object(a.Args["data"])))
	case OpUpsert:
		return flatten(a.store.Upsert(ctx, a.Model, where, actions.Object(a.Args["create"]), actions.Object(a.Args["update"])))
	case OpDelete:
		return flatten(a.store.Delete(ctx, a.Model, where))
	case OpFindUnique:
		return flatten(a.store.FindUnique(ctx, a.Model, where))
	case OpFindMany:
		take := 0
		if n, ok := graph.Number(a.Args["take"]); ok {
			take = int(n)
		}

		records, err := a.store.FindMany(ctx, a.Model, where, take)
		if err != nil {
			return nil, fmt.Errorf("database %s.%s failed: %w", a.Model, a.Operation, err)
		}

		out := make([]any, 0, len(records))
		for _, r := range records {
			out = append(out, r.Flatten())
		}

		return out, nil
	default:
		return nil, actions.ConfigError("Unsupported database operation: %s.%s", a.Model, a.Operation)
	}
}

func wrapInput(input any) map[string]any {
	if m, ok := input.(map[string]any); ok {
		return m
	}

	return map[string]any{"value": input}
}

func flatten(record *models.Record, err error) (any, error) {
	if err != nil {
		return nil, err
	}

	if record == nil {
		return nil, nil //nolint:nilnil // findUnique without a match yields null output
	}

	return record.Flatten(), nil
}
