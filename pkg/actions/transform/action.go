// Package transform provides the Transformation step handler: a sandboxed expression or a
// declarative field mapping.
package transform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

const (
	// DefaultExpressionBudget bounds a single expression evaluation.
	DefaultExpressionBudget = 100 * time.Millisecond

	maxExpressionNodes = 2000
)

// ErrExpressionTimeout is returned when an expression exceeds its budget.
var ErrExpressionTimeout = errors.New("transformation expression timed out")

// env is the only scope an expression sees. Input is left untyped so field access is
// resolved at run time.
type env struct {
	Input any `expr:"input"`
}

// Action evaluates Expression when set, otherwise applies Mapping.
type Action struct {
	Expression string
	Mapping    map[string]any

	program *vm.Program
	budget  time.Duration
}

// NewAction compiles the expression up front so syntax errors surface as config errors.
func NewAction(config map[string]any, budget time.Duration) (*Action, error) {
	if budget <= 0 {
		budget = DefaultExpressionBudget
	}

	action := &Action{budget: budget}

	if expression, ok := config["expression"].(string); ok {
		program, err := expr.Compile(expression,
			expr.Env(env{}),
			expr.MaxNodes(maxExpressionNodes),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid expression: %w", actions.ErrConfig, err)
		}

		action.Expression = expression
		action.program = program

		return action, nil
	}

	action.Mapping = actions.Object(config["mapping"])

	return action, nil
}

func (a *Action) Execute(ctx context.Context, input any) (any, error) {
	if a.program != nil {
		return a.evaluate(ctx, input)
	}

	if len(a.Mapping) == 0 {
		return input, nil
	}

	return Map(input, a.Mapping), nil
}

type evalResult struct {
	value any
	err   error
}

func (a *Action) evaluate(ctx context.Context, input any) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	done := make(chan evalResult, 1)

	go func() {
		value, err := expr.Run(a.program, env{Input: input})
		done <- evalResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("transformation expression failed: %w", res.err)
		}

		return res.value, nil
	case <-ctx.Done():
		return nil, ErrExpressionTimeout
	}
}

// Map builds an object where string values are paths into input (optionally prefixed
// with "$." or "input.") and every other value is copied as a literal.
func Map(input any, mapping map[string]any) map[string]any {
	out := make(map[string]any, len(mapping))

	for key, value := range mapping {
		if path, ok := value.(string); ok {
			out[key] = Lookup(input, path)
		} else {
			out[key] = value
		}
	}

	return out
}

// Lookup resolves a dotted path. Missing segments yield nil; an empty path is input itself.
func Lookup(input any, path string) any {
	normalized := strings.TrimPrefix(path, "$.")
	if normalized == path {
		normalized = strings.TrimPrefix(path, "input.")
	}

	if normalized == "" {
		return input
	}

	current := input

	for _, segment := range strings.Split(normalized, ".") {
		switch node := current.(type) {
		case map[string]any:
			current = node[segment]
		case []any:
			idx, ok := index(segment, len(node))
			if !ok {
				return nil
			}

			current = node[idx]
		default:
			return nil
		}
	}

	return current
}

func index(segment string, length int) (int, bool) {
	var idx int
	if _, err := fmt.Sscanf(segment, "%d", &idx); err != nil {
		return 0, false
	}

	if idx < 0 || idx >= length {
		return 0, false
	}

	return idx, true
}
