package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
)

// ErrCyclicGraph is returned when the eligible action nodes cannot be ordered.
var ErrCyclicGraph = errors.New("workflow graph contains a cycle")

// CycleError lists the nodes that could not be placed in the topological order.
type CycleError struct {
	NodeIDs []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCyclicGraph, strings.Join(e.NodeIDs, ", "))
}

func (e *CycleError) Unwrap() error {
	return ErrCyclicGraph
}

var stepTypeAliases = map[string]models.StepType{
	"http request":   models.StepTypeHTTPRequest,
	"http":           models.StepTypeHTTPRequest,
	"webhook":        models.StepTypeHTTPRequest,
	"email":          models.StepTypeEmail,
	"telegram":       models.StepTypeTelegram,
	"database":       models.StepTypeDatabase,
	"db":             models.StepTypeDatabase,
	"transformation": models.StepTypeTransformation,
	"transform":      models.StepTypeTransformation,
	"filter":         models.StepTypeTransformation,
	"cron":           models.StepTypeTransformation,
}

// NormalizeStepType maps a free-form node type to its canonical handler name. Unknown
// names are returned unchanged so the runner can report them.
func NormalizeStepType(raw string) models.StepType {
	if t, ok := stepTypeAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}

	return models.StepType(raw)
}

// Normalizer derives ordered steps from a graph.
type Normalizer struct {
	permissiveCycles bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithPermissiveCycles makes a cycle fall back to the eligible nodes in document order
// instead of failing.
func WithPermissiveCycles() Option {
	return func(n *Normalizer) {
		n.permissiveCycles = true
	}
}

func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{}
	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Normalize is a shorthand for NewNormalizer().Normalize.
func Normalize(g models.Graph, source models.Source) ([]models.WorkflowStep, error) {
	return NewNormalizer().Normalize(g, source)
}

// Normalize returns the steps reachable from the triggers matching source, in an order
// that respects every edge between them.
func (n *Normalizer) Normalize(g models.Graph, source models.Source) ([]models.WorkflowStep, error) {
	if len(g.Nodes) == 0 && len(g.Steps) > 0 {
		return legacySteps(g.Steps), nil
	}

	nodes := Parse(g)
	reachable := reachableActions(nodes, g.Edges, string(source))

	eligible := make([]Node, 0, len(nodes))

	for _, node := range nodes {
		if node.Kind != KindAction {
			continue
		}

		if reachable != nil && !reachable[node.ID] {
			continue
		}

		eligible = append(eligible, node)
	}

	ordered := eligible

	if len(g.Edges) > 0 {
		sorted, err := topologicalSort(eligible, g.Edges)
		if err != nil && !n.permissiveCycles {
			return nil, err
		}

		if err == nil {
			ordered = sorted
		}
	}

	steps := make([]models.WorkflowStep, 0, len(ordered))
	for i, node := range ordered {
		steps = append(steps, toStep(node, i+1))
	}

	return steps, nil
}

func toStep(node Node, position int) models.WorkflowStep {
	step := models.WorkflowStep{
		Key:    node.ID,
		Type:   NormalizeStepType(node.RawType),
		Order:  position,
		Config: node.Config,
	}

	if timeout, ok := node.Data["timeoutMs"].(float64); ok && timeout > 0 {
		step.TimeoutMs = int64(timeout)
	}

	return step
}

// reachableActions returns the action ids reachable from the triggers matching source.
// A nil map means every action node is eligible.
func reachableActions(nodes []Node, edges []models.Edge, source string) map[string]bool {
	triggerType := NormalizeTriggerType(source)
	if triggerType == "" || len(edges) == 0 {
		return nil
	}

	var queue []string

	visited := map[string]bool{}

	for _, node := range nodes {
		if node.Kind == KindTrigger && node.TriggerType() == triggerType {
			visited[node.ID] = true
			queue = append(queue, node.ID)
		}
	}

	if len(queue) == 0 {
		return nil
	}

	adjacency := map[string][]string{}

	for _, edge := range edges {
		if edge.Source == "" || edge.Target == "" {
			continue
		}

		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range adjacency[current] {
			if visited[next] {
				continue
			}

			visited[next] = true
			queue = append(queue, next)
		}
	}

	reachable := map[string]bool{}

	for _, node := range nodes {
		if node.Kind == KindAction && visited[node.ID] {
			reachable[node.ID] = true
		}
	}

	return reachable
}

// topologicalSort runs Kahn's algorithm over the edges whose endpoints are both in nodes.
// Initially ready nodes are ordered by their order hint, then document index.
func topologicalSort(nodes []Node, edges []models.Edge) ([]Node, error) {
	byID := make(map[string]Node, len(nodes))
	indegree := make(map[string]int, len(nodes))
	adjacency := make(map[string][]string, len(nodes))
	seen := map[[2]string]bool{}

	for _, node := range nodes {
		byID[node.ID] = node
		indegree[node.ID] = 0
	}

	for _, edge := range edges {
		_, okSource := byID[edge.Source]
		_, okTarget := byID[edge.Target]

		if !okSource || !okTarget {
			continue
		}

		pair := [2]string{edge.Source, edge.Target}
		if seen[pair] {
			continue
		}

		seen[pair] = true
		adjacency[edge.Source] = append(adjacency[edge.Source], edge.Target)
		indegree[edge.Target]++
	}

	var queue []Node

	for _, node := range nodes {
		if indegree[node.ID] == 0 {
			queue = append(queue, node)
		}
	}

	sort.SliceStable(queue, func(i, j int) bool {
		oi, oj := orderHint(queue[i]), orderHint(queue[j])
		if oi != oj {
			return oi < oj
		}

		return queue[i].Index < queue[j].Index
	})

	result := make([]Node, 0, len(nodes))

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		result = append(result, current)

		for _, next := range adjacency[current.ID] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, byID[next])
			}
		}
	}

	if len(result) != len(nodes) {
		var stuck []string

		for _, node := range nodes {
			if indegree[node.ID] > 0 {
				stuck = append(stuck, node.ID)
			}
		}

		return nil, &CycleError{NodeIDs: stuck}
	}

	return result, nil
}

func orderHint(node Node) float64 {
	if v, ok := Number(node.Data["order"]); ok && !math.IsNaN(v) {
		return v
	}

	return 0
}

func legacySteps(raw []map[string]any) []models.WorkflowStep {
	steps := make([]models.WorkflowStep, 0, len(raw))

	for i, record := range raw {
		rawType := firstString(record["type"], record["actionType"])
		if rawType == "" {
			rawType = string(models.StepTypeTransformation)
		}

		if IsTriggerTypeName(rawType) {
			continue
		}

		step := models.WorkflowStep{
			Key:   firstString(record["key"], record["id"]),
			Type:  NormalizeStepType(rawType),
			Order: i + 1,
		}

		if step.Key == "" {
			step.Key = strconv.Itoa(i)
		}

		if order, ok := Number(record["order"]); ok {
			step.Order = int(order)
		}

		switch {
		case isMap(record["config"]):
			step.Config = record["config"].(map[string]any)
		case isMap(record["data"]):
			step.Config = record["data"].(map[string]any)
		default:
			step.Config = map[string]any{}
		}

		if timeout, ok := record["timeoutMs"].(float64); ok && timeout > 0 {
			step.TimeoutMs = int64(timeout)
		}

		steps = append(steps, step)
	}

	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Order < steps[j].Order })

	return steps
}

func isMap(v any) bool {
	_, ok := v.(map[string]any)

	return ok
}
