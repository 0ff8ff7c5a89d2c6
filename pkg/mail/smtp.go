package mail

import (
	"context"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

const implicitTLSPort = 465

// SMTPConfig holds the relay credentials.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// KnownSMTPServers maps provider names to their submission endpoints.
var KnownSMTPServers = map[string]SMTPConfig{
	"gmail":   {Host: "smtp.gmail.com", Port: 587},
	"mail.ru": {Host: "smtp.mail.ru", Port: 465},
	"yandex":  {Host: "smtp.yandex.ru", Port: 465},
	"outlook": {Host: "smtp.office365.com", Port: 587},
	"yahoo":   {Host: "smtp.mail.yahoo.com", Port: 465},
}

// SMTP sends mail through an SMTP relay with go-mail.
type SMTP struct {
	config SMTPConfig
}

func NewSMTP(config SMTPConfig) (*SMTP, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	if config.Port == 0 {
		config.Port = 587
	}

	if config.From == "" {
		config.From = config.Username
	}

	return &SMTP{config: config}, nil
}

func (s *SMTP) Send(ctx context.Context, msg Message) (Result, error) {
	if strings.TrimSpace(msg.To) == "" {
		return Result{}, ErrMissingRecipient
	}

	m := gomail.NewMsg()
	if err := m.From(s.config.From); err != nil {
		return Result{}, fmt.Errorf("invalid from address: %w", err)
	}

	if err := m.To(splitRecipients(msg.To)...); err != nil {
		return Result{}, fmt.Errorf("invalid recipient: %w", err)
	}

	m.Subject(msg.Subject)
	m.SetMessageID()

	switch {
	case msg.Text != "" && msg.HTML != "":
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
		m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	case msg.HTML != "":
		m.SetBodyString(gomail.TypeTextHTML, msg.HTML)
	default:
		m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	}

	client, err := s.client()
	if err != nil {
		return Result{}, err
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return Result{}, fmt.Errorf("smtp send failed: %w", err)
	}

	var id string
	if ids := m.GetGenHeader(gomail.HeaderMessageID); len(ids) > 0 {
		id = ids[0]
	}

	return Result{ID: id, Provider: "smtp"}, nil
}

func (s *SMTP) client() (*gomail.Client, error) {
	opts := []gomail.Option{
		gomail.WithPort(s.config.Port),
	}

	if s.config.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.config.Username),
			gomail.WithPassword(s.config.Password),
		)
	}

	if s.config.Port == implicitTLSPort {
		opts = append(opts, gomail.WithSSL())
	} else {
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSOpportunistic))
	}

	client, err := gomail.NewClient(s.config.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return client, nil
}

func splitRecipients(to string) []string {
	parts := strings.Split(to, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
