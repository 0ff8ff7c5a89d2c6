package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/autoflow/pkg/mail"
)

// MailerConfig selects and configures the outbound mail provider.
type MailerConfig struct {
	Provider     string
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	ResendAPIKey string
}

// NewMailer builds the provider named by config.Provider. An empty provider logs and
// drops messages.
//
//nolint:ireturn // returns the mailer interface
func NewMailer(config MailerConfig, logger *slog.Logger) (mail.Mailer, error) {
	switch config.Provider {
	case "smtp":
		mailer, err := mail.NewSMTP(mail.SMTPConfig{
			Host:     config.SMTPHost,
			Port:     config.SMTPPort,
			Username: config.SMTPUsername,
			Password: config.SMTPPassword,
			From:     config.From,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to configure smtp mailer: %w", err)
		}

		return mailer, nil
	case "resend":
		if config.ResendAPIKey == "" {
			return nil, fmt.Errorf("resend mailer requires RESEND_API_KEY")
		}

		return mail.NewResend(config.ResendAPIKey, config.From, nil), nil
	case "":
		return mail.NewDiscard(logger.With("module", "mail")), nil
	default:
		return nil, fmt.Errorf("unsupported mail provider: %s", config.Provider)
	}
}
