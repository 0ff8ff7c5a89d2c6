package transform_test

import (
	"context"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/actions/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_Mapping(t *testing.T) {
	t.Parallel()

	action, err := transform.NewAction(map[string]any{"mapping": `{"name": "input.user.name"}`}, 0)
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), map[string]any{"user": map[string]any{"name": "Ada"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Ada"}, out)
}

func TestAction_MappingPathsAndLiterals(t *testing.T) {
	t.Parallel()

	input := map[string]any{
		"id":    "42",
		"items": []any{map[string]any{"sku": "a"}, map[string]any{"sku": "b"}},
	}

	action, err := transform.NewAction(map[string]any{"mapping": map[string]any{
		"id":      "$.id",
		"second":  "items.1.sku",
		"missing": "input.nope.deeper",
		"all":     "$.",
		"flag":    true,
		"count":   3.0,
	}}, 0)
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), input)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"id":      "42",
		"second":  "b",
		"missing": nil,
		"all":     input,
		"flag":    true,
		"count":   3.0,
	}, out)
}

func TestAction_InvalidOrEmptyMappingPassesThrough(t *testing.T) {
	t.Parallel()

	for _, config := range []map[string]any{
		{},
		{"mapping": "{not json"},
		{"mapping": map[string]any{}},
	} {
		action, err := transform.NewAction(config, 0)
		require.NoError(t, err)

		out, err := action.Execute(context.Background(), "payload")
		require.NoError(t, err)
		assert.Equal(t, "payload", out)
	}
}

func TestAction_Expression(t *testing.T) {
	t.Parallel()

	action, err := transform.NewAction(map[string]any{
		"expression": `{"greeting": "hi " + input.user.name, "count": len(input.items)}`,
	}, 0)
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), map[string]any{
		"user":  map[string]any{"name": "Ada"},
		"items": []any{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hi Ada", "count": 3}, out)
}

func TestAction_ExpressionReadsDecodedJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expression string
		input      any
		want       any
	}{
		{"input.amount * 2", map[string]any{"amount": 21.0}, 42.0},
		{"input.user.active ? 'yes' : 'no'", map[string]any{"user": map[string]any{"active": true}}, "yes"},
		{"input[1]", []any{"a", "b"}, "b"},
		{"input", "raw", "raw"},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			t.Parallel()

			action, err := transform.NewAction(map[string]any{"expression": tt.expression}, 0)
			require.NoError(t, err)

			out, err := action.Execute(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestAction_ExpressionErrors(t *testing.T) {
	t.Parallel()

	_, err := transform.NewAction(map[string]any{"expression": "input.("}, 0)
	require.ErrorIs(t, err, actions.ErrConfig)

	_, err = transform.NewAction(map[string]any{"expression": "os.Exit(1)"}, 0)
	require.ErrorIs(t, err, actions.ErrConfig, "only input is in scope")

	action, err := transform.NewAction(map[string]any{"expression": "input.a / input.b"}, 0)
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), map[string]any{"a": "x", "b": 1})
	require.Error(t, err)
}

func TestAction_ExpressionBudget(t *testing.T) {
	t.Parallel()

	action, err := transform.NewAction(map[string]any{
		"expression": "len(filter(1..input, # % 7 == 0 && string(#) != '')) > 0",
	}, time.Millisecond)
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), 900_000)
	require.ErrorIs(t, err, transform.ErrExpressionTimeout)
}
