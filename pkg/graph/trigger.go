package graph

import "github.com/dukex/autoflow/pkg/models"

// Trigger names accepted by ConnectedTrigger.
const (
	TriggerWebhook  = "webhook"
	TriggerSchedule = "schedule"
	TriggerEmail    = "email"
)

// ConnectedTrigger returns the first trigger node of the given type that is the source of
// at least one edge. Disconnected triggers never fire.
func ConnectedTrigger(g models.Graph, triggerType string) (Node, bool) {
	want := NormalizeTriggerType(triggerType)

	sources := make(map[string]bool, len(g.Edges))
	for _, edge := range g.Edges {
		sources[edge.Source] = true
	}

	for _, node := range Parse(g) {
		if node.Kind != KindTrigger || node.TriggerType() != want {
			continue
		}

		if sources[node.ID] {
			return node, true
		}
	}

	return Node{}, false
}

// TriggerForSource maps a run source to the trigger node type that produces it.
func TriggerForSource(source models.Source) string {
	switch source {
	case models.SourceCron:
		return TriggerSchedule
	case models.SourceEmail:
		return TriggerEmail
	default:
		return TriggerWebhook
	}
}
