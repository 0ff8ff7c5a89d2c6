// Package email provides the Email step handler.
package email

import (
	"context"
	"fmt"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/mail"
)

const defaultSubject = "Workflow notification"

// Action sends one email built from the step config and its input.
type Action struct {
	To      string
	Subject string
	HTML    string
	Text    string

	mailer mail.Mailer
}

// NewAction creates an Action. Missing html/text fall back to the input as JSON.
func NewAction(config map[string]any, mailer mail.Mailer) (*Action, error) {
	to := actions.String(config, "to", "email")
	if to == "" {
		return nil, actions.ConfigError("Email step missing recipient")
	}

	subject := actions.String(config, "subject")
	if subject == "" {
		subject = defaultSubject
	}

	html, _ := config["html"].(string)
	text, _ := config["text"].(string)

	return &Action{To: to, Subject: subject, HTML: html, Text: text, mailer: mailer}, nil
}

func (a *Action) Execute(ctx context.Context, input any) (any, error) {
	msg := mail.Message{To: a.To, Subject: a.Subject, HTML: a.HTML, Text: a.Text}

	if msg.HTML == "" {
		msg.HTML = "<pre>" + actions.PrettyJSON(input) + "</pre>"
	}

	if msg.Text == "" {
		msg.Text = actions.PrettyJSON(input)
	}

	result, err := a.mailer.Send(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("email send failed: %w", err)
	}

	return map[string]any{"ok": true, "result": result}, nil
}
