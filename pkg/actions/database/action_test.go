package database_test

import (
	"context"
	"testing"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/actions/database"
	"github.com/dukex/autoflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAction_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		config map[string]any
	}{
		{name: "missing model", config: map[string]any{"operation": "create"}},
		{name: "unsupported operation", config: map[string]any{"model": "contacts", "operation": "truncate"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := database.NewAction(tt.config, nil)
			require.ErrorIs(t, err, actions.ErrConfig)
		})
	}
}

func TestAction_CreateWrapsInput(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir()).RecordRepository()

	action, err := database.NewAction(map[string]any{"model": "events"}, store)
	require.NoError(t, err)
	assert.Equal(t, database.OpCreate, action.Operation)

	out, err := action.Execute(ctx, "hello")
	require.NoError(t, err)

	record, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hello", record["value"])
	assert.NotEmpty(t, record["id"])

	out, err = action.Execute(ctx, map[string]any{"kind": "signup"})
	require.NoError(t, err)
	assert.Equal(t, "signup", out.(map[string]any)["kind"])
}

func TestAction_QueriesWithArgs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := file.NewPersistence(t.TempDir()).RecordRepository()

	create, err := database.NewAction(map[string]any{
		"model": "contacts",
		"args":  `{"data": {"email": "ada@example.com", "plan": "free"}}`,
	}, store)
	require.NoError(t, err)

	_, err = create.Execute(ctx, map[string]any{"ignored": true})
	require.NoError(t, err)

	update, err := database.NewAction(map[string]any{
		"model":     "contacts",
		"operation": "update",
		"args":      map[string]any{"where": map[string]any{"email": "ada@example.com"}, "data": map[string]any{"plan": "pro"}},
	}, store)
	require.NoError(t, err)

	out, err := update.Execute(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, "pro", out.(map[string]any)["plan"])

	findMany, err := database.NewAction(map[string]any{
		"model":     "contacts",
		"operation": "findMany",
		"args":      `{"where": {"plan": "pro"}, "take": 5}`,
	}, store)
	require.NoError(t, err)

	out, err = findMany.Execute(ctx, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	findUnique, err := database.NewAction(map[string]any{
		"model":     "contacts",
		"operation": "findUnique",
		"args":      `{"where": {"email": "nobody@example.com"}}`,
	}, store)
	require.NoError(t, err)

	out, err = findUnique.Execute(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	del, err := database.NewAction(map[string]any{
		"model":     "contacts",
		"operation": "delete",
		"args":      `{"where": {"email": "nobody@example.com"}}`,
	}, store)
	require.NoError(t, err)

	_, err = del.Execute(ctx, nil)
	require.Error(t, err)
}
