package models

import (
	"encoding/json"
	"maps"
)

// Graph is the persisted node/edge document drawn in the editor. It is kept close to the
// stored JSON so that rewriting a single node config never drops editor-only fields.
type Graph struct {
	Nodes []GraphNode `json:"nodes,omitempty"`
	Edges []Edge      `json:"edges,omitempty"`

	// Steps holds the legacy linear format used before graphs were introduced.
	Steps []map[string]any `json:"steps,omitempty"`
}

// GraphNode is one raw node of a graph document.
type GraphNode struct {
	ID       string
	Type     string
	Data     map[string]any
	Position map[string]any

	// extra keeps unknown top-level keys (width, selected, measured, ...).
	extra map[string]json.RawMessage
}

// Edge is a directed precedence link between two nodes.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

var graphNodeKnownKeys = []string{"id", "type", "data", "position"}

func (n *GraphNode) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	if v, ok := raw["id"]; ok {
		n.ID = rawString(v)
	}

	if v, ok := raw["type"]; ok {
		n.Type = rawString(v)
	}

	if v, ok := raw["data"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &n.Data); err != nil {
			return err
		}
	}

	if v, ok := raw["position"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &n.Position); err != nil {
			return err
		}
	}

	for _, key := range graphNodeKnownKeys {
		delete(raw, key)
	}

	if len(raw) > 0 {
		n.extra = raw
	}

	return nil
}

func (n GraphNode) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(n.extra)+4)
	for k, v := range n.extra {
		out[k] = v
	}

	out["id"] = n.ID
	if n.Type != "" {
		out["type"] = n.Type
	}

	if n.Data != nil {
		out["data"] = n.Data
	}

	if n.Position != nil {
		out["position"] = n.Position
	}

	return json.Marshal(out)
}

// Config returns the nested data.config object, or nil when the node has none.
func (n GraphNode) Config() map[string]any {
	if n.Data == nil {
		return nil
	}

	config, _ := n.Data["config"].(map[string]any)

	return config
}

// WithConfigValue returns a copy of the graph where node nodeID has config[key] = value,
// config being data.config or, for flat nodes, data itself.
// The receiver is left untouched. ok is false when no node has that id.
func (g Graph) WithConfigValue(nodeID, key string, value any) (Graph, bool) {
	updated := g
	updated.Nodes = make([]GraphNode, len(g.Nodes))
	copy(updated.Nodes, g.Nodes)

	found := false

	for i, node := range updated.Nodes {
		if node.ID != nodeID {
			continue
		}

		data := maps.Clone(node.Data)
		if data == nil {
			data = map[string]any{}
		}

		// Flat nodes keep their config directly in data.
		if config := node.Config(); config != nil || len(data) == 0 {
			config = maps.Clone(config)
			if config == nil {
				config = map[string]any{}
			}

			config[key] = value
			data["config"] = config
		} else {
			data[key] = value
		}

		node.Data = data
		updated.Nodes[i] = node
		found = true
	}

	return updated, found
}

// rawString decodes a JSON scalar id. Editors sometimes store numeric ids.
func rawString(b json.RawMessage) string {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		return n.String()
	}

	return ""
}
