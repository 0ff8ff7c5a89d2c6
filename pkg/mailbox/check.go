package mailbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrConnectionCheck wraps every failure reported by CheckConnection.
var ErrConnectionCheck = errors.New("mailbox connection check failed")

// CheckConnection logs in with the trigger credentials and lists the folders, translating
// common failures into messages a user can act on.
func CheckConnection(ctx context.Context, dialer Dialer, trigger TriggerConfig) ([]string, error) {
	if !trigger.Configured() {
		return nil, ErrNoCredentials
	}

	account, err := trigger.Account()
	if err != nil {
		return nil, fmt.Errorf("%w: Unknown email provider. Please specify IMAP server manually", ErrConnectionCheck)
	}

	session, err := dialer.Dial(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionCheck, explain(err, account.Server))
	}

	defer func() { _ = session.Close() }()

	folders, err := session.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConnectionCheck, explain(err, account.Server))
	}

	return folders, nil
}

func explain(err error, server Server) string {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "AUTHENTICATIONFAILED"),
		strings.Contains(lower, "invalid credentials"),
		strings.Contains(lower, "authentication failed"),
		strings.Contains(lower, "lookup failed"):
		return "Authentication failed. Check your email and App Password. For Gmail, enable 2FA and create an App Password."
	case strings.Contains(lower, "connection refused"):
		return fmt.Sprintf("Cannot connect to %s:%d. Check if IMAP is enabled in your email settings.", server.Host, server.Port)
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return "Connection timed out. The IMAP server may be unreachable."
	case strings.Contains(lower, "no such host"):
		return fmt.Sprintf("Cannot resolve %s. Check the IMAP server address.", server.Host)
	case strings.Contains(lower, "certificate"), strings.Contains(lower, "tls"):
		return "SSL/TLS certificate error. The IMAP server might have an invalid certificate."
	default:
		return msg
	}
}
