// Package mailbox polls IMAP inboxes configured on email triggers and starts one run per
// new message.
package mailbox

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/graph"
	"github.com/dukex/autoflow/pkg/models"
)

// DefaultFolder is polled when a trigger does not name one.
const DefaultFolder = "INBOX"

var (
	ErrNoEmailTrigger = errors.New("No email trigger config found")
	ErrNoCredentials  = errors.New("IMAP credentials not configured")
)

// Account identifies one mailbox login.
type Account struct {
	Server
	Username string
	Password string
}

// Criteria narrows a UID search. From and Subject are case-insensitive substrings.
type Criteria struct {
	SinceUID uint32
	From     string
	Subject  string
}

// Message is the part of a mail message handed to a run.
type Message struct {
	UID       uint32
	From      string
	To        string
	Subject   string
	Date      time.Time
	Text      string
	HTML      string
	MessageID string
	InReplyTo string
}

// Payload is the job payload of the run started for the message.
func (m Message) Payload() map[string]any {
	date := m.Date
	if date.IsZero() {
		date = time.Now()
	}

	return map[string]any{
		"uid":     m.UID,
		"from":    m.From,
		"to":      m.To,
		"subject": m.Subject,
		"date":    date.UTC().Format(time.RFC3339Nano),
		"text":    m.Text,
		"html":    m.HTML,
		"headers": map[string]any{
			"messageId": m.MessageID,
			"inReplyTo": m.InReplyTo,
		},
	}
}

// Session is an authenticated connection to one mailbox server.
type Session interface {
	// Select opens folder read-only and returns its UIDNEXT.
	Select(ctx context.Context, folder string) (uint32, error)
	// Search returns the UIDs in the selected folder matching c, in any order.
	Search(ctx context.Context, c Criteria) ([]uint32, error)
	Fetch(ctx context.Context, uids []uint32) ([]Message, error)
	// List returns every folder name.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Dialer opens sessions.
type Dialer interface {
	Dial(ctx context.Context, account Account) (Session, error)
}

// TriggerConfig is the email trigger node config.
type TriggerConfig struct {
	NodeID        string
	Email         string
	Password      string
	Host          string
	Port          int
	Folder        string
	LastUID       uint32
	FilterFrom    string
	FilterSubject string
}

// Configured reports whether credentials are present.
func (c TriggerConfig) Configured() bool {
	return c.Email != "" && c.Password != ""
}

// Account resolves the server and returns the login for this trigger.
func (c TriggerConfig) Account() (Account, error) {
	server, err := ResolveServer(c.Email, c.Host, c.Port)
	if err != nil {
		return Account{}, err
	}

	return Account{Server: server, Username: c.Email, Password: c.Password}, nil
}

// FindTrigger reads the config of the first connected email trigger of g.
func FindTrigger(g models.Graph) (TriggerConfig, bool) {
	node, ok := graph.ConnectedTrigger(g, graph.TriggerEmail)
	if !ok {
		return TriggerConfig{}, false
	}

	cfg := node.Config
	c := TriggerConfig{
		NodeID:        node.ID,
		Email:         actions.String(cfg, "imapEmail"),
		Password:      actions.String(cfg, "imapPassword"),
		Host:          actions.String(cfg, "imapHost"),
		Folder:        actions.String(cfg, "imapFolder"),
		FilterFrom:    actions.String(cfg, "filterFrom"),
		FilterSubject: actions.String(cfg, "filterSubject"),
	}

	if c.Folder == "" {
		c.Folder = DefaultFolder
	}

	if n, ok := graph.Number(cfg["imapPort"]); ok && n > 0 {
		c.Port = int(n)
	}

	if n, ok := graph.Number(cfg["lastUid"]); ok && n > 0 {
		c.LastUID = uint32(n)
	}

	return c, true
}
