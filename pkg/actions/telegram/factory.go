package telegram

import (
	"net/http"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

type ActionFactory struct {
	apiBase string
	client  *http.Client
}

// NewActionFactory creates a factory. An empty apiBase targets the public Bot API.
func NewActionFactory(apiBase string, client *http.Client) *ActionFactory {
	return &ActionFactory{apiBase: apiBase, client: client}
}

//nolint:ireturn // factories return the protocol interface
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.apiBase, f.client)
}

func (f *ActionFactory) ID() models.StepType {
	return models.StepTypeTelegram
}

func (f *ActionFactory) Description() string {
	return "Sends a Telegram message through a bot."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"botToken":  map[string]any{"type": "string"},
			"chatId":    map[string]any{"type": "string"},
			"message":   map[string]any{"type": "string", "description": "Defaults to the previous step output as JSON."},
			"parseMode": map[string]any{"type": "string", "enum": []string{"HTML", "Markdown", "MarkdownV2"}},
		},
		"required": []string{"botToken", "chatId"},
	}
}
