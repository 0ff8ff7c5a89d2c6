package email

import (
	"github.com/dukex/autoflow/pkg/mail"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/protocol"
)

type ActionFactory struct {
	mailer mail.Mailer
}

func NewActionFactory(mailer mail.Mailer) *ActionFactory {
	return &ActionFactory{mailer: mailer}
}

//nolint:ireturn // factories return the protocol interface
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	return NewAction(config, f.mailer)
}

func (f *ActionFactory) ID() models.StepType {
	return models.StepTypeEmail
}

func (f *ActionFactory) Description() string {
	return "Sends an email. The body defaults to the previous step output rendered as JSON."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to":      map[string]any{"type": "string", "description": "Recipient, comma separated for several."},
			"subject": map[string]any{"type": "string", "default": defaultSubject},
			"html":    map[string]any{"type": "string"},
			"text":    map[string]any{"type": "string"},
		},
		"required": []string{"to"},
	}
}
