// Package graph turns a persisted workflow graph into the ordered list of steps a run executes.
package graph

import (
	"strconv"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
)

// Kind is the classified role of a node.
type Kind int

const (
	KindAction Kind = iota
	KindTrigger
)

func (k Kind) String() string {
	if k == KindTrigger {
		return "trigger"
	}

	return "action"
}

// Node is a graph node classified once at parse time.
type Node struct {
	ID    string
	Index int
	Kind  Kind

	// Explicit is true when the document declared the role instead of it being inferred.
	Explicit bool

	// RawType is the first present of data.actionType, data.type and node.type.
	RawType string

	Data   map[string]any
	Config map[string]any
}

// TriggerType returns the normalized trigger name of the node (schedule for cron).
func (n Node) TriggerType() string {
	return NormalizeTriggerType(n.RawType)
}

var triggerTypeNames = map[string]bool{
	"webhook":  true,
	"schedule": true,
	"cron":     true,
	"email":    true,
}

var actionOnlyKeys = []string{
	"url", "endpoint", "method", "botToken", "chatId", "model", "operation",
	"expression", "mapping", "to", "subject",
}

var triggerOnlyKeys = []string{"cron", "timezone", "imapEmail", "imapHost"}

// IsTriggerTypeName reports whether raw names one of the trigger kinds.
func IsTriggerTypeName(raw string) bool {
	return triggerTypeNames[strings.ToLower(strings.TrimSpace(raw))]
}

// NormalizeTriggerType lowercases a trigger name and folds cron into schedule.
func NormalizeTriggerType(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "cron" {
		return "schedule"
	}

	return key
}

// Parse classifies every node of g.
func Parse(g models.Graph) []Node {
	nodes := make([]Node, 0, len(g.Nodes))

	for i, raw := range g.Nodes {
		nodes = append(nodes, classify(raw, i))
	}

	return nodes
}

func classify(raw models.GraphNode, index int) Node {
	data := raw.Data
	if data == nil {
		data = map[string]any{}
	}

	node := Node{
		ID:      raw.ID,
		Index:   index,
		RawType: firstString(data["actionType"], data["type"], raw.Type),
		Data:    data,
	}

	if node.ID == "" {
		node.ID = strconv.Itoa(index)
	}

	if node.RawType == "" {
		node.RawType = string(models.StepTypeTransformation)
	}

	if config, ok := data["config"].(map[string]any); ok {
		node.Config = config
	} else {
		node.Config = data
	}

	switch strings.ToLower(strings.TrimSpace(stringValue(data["role"]))) {
	case "trigger":
		node.Kind, node.Explicit = KindTrigger, true
	case "action":
		node.Kind, node.Explicit = KindAction, true
	default:
		node.Kind = inferKind(node)
	}

	return node
}

func inferKind(node Node) Kind {
	for _, key := range actionOnlyKeys {
		if _, ok := node.Config[key]; ok {
			return KindAction
		}
	}

	for _, key := range triggerOnlyKeys {
		if _, ok := node.Config[key]; ok {
			return KindTrigger
		}
	}

	if IsTriggerTypeName(node.RawType) {
		return KindTrigger
	}

	return KindAction
}

func firstString(values ...any) string {
	for _, v := range values {
		if s := stringValue(v); s != "" {
			return s
		}
	}

	return ""
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// Number converts a JSON-decoded scalar to float64. Numeric strings are accepted.
func Number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}

		return f, true
	default:
		return 0, false
	}
}
