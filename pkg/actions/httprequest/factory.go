package httprequest

import (
	"net/http"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

// ActionFactory creates HTTP Request actions sharing one client.
type ActionFactory struct {
	client *http.Client
}

// NewActionFactory creates a factory. A nil client falls back to http.DefaultClient.
func NewActionFactory(client *http.Client) *ActionFactory {
	return &ActionFactory{client: client}
}

// Create creates a new Action from the given configuration.
//
//nolint:ireturn // factories return the protocol interface
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.client)
}

// ID returns the canonical step type.
func (f *ActionFactory) ID() models.StepType {
	return models.StepTypeHTTPRequest
}

// Description returns a brief description of the action.
func (f *ActionFactory) Description() string {
	return "Performs an HTTP request and passes status, ok and the decoded body to the next step."
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "Target URL, http or https only.",
				"examples":    []string{"https://api.example.com/users"},
			},
			"method": map[string]any{
				"type":    "string",
				"default": "POST",
				"enum":    []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
			},
			"headers": map[string]any{
				"description": "Headers as an object or a JSON string.",
				"oneOf": []map[string]any{
					{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
					{"type": "string"},
				},
			},
			"body": map[string]any{
				"description": "Request body. Defaults to the previous step output.",
			},
		},
		"required": []string{"url"},
	}
}
