// Package mail delivers outbound email for Email steps and failure notifications.
package mail

import (
	"context"
	"errors"
	"log/slog"
)

// ErrMissingRecipient is returned when a message has no recipient.
var ErrMissingRecipient = errors.New("email recipient is required")

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Result is what a provider reports for an accepted message.
type Result struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}

// Mailer sends messages through one provider.
type Mailer interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// Discard is used when no provider is configured. It logs and accepts every message.
type Discard struct {
	logger *slog.Logger
}

func NewDiscard(logger *slog.Logger) *Discard {
	return &Discard{logger: logger}
}

func (d *Discard) Send(ctx context.Context, msg Message) (Result, error) {
	if msg.To == "" {
		return Result{}, ErrMissingRecipient
	}

	d.logger.WarnContext(ctx, "No mail provider configured, email skipped", "to", msg.To, "subject", msg.Subject)

	return Result{ID: "dev-skipped", Provider: "discard"}, nil
}
