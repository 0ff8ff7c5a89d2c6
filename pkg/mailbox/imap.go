package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// DefaultDialTimeout bounds connecting and logging in.
const DefaultDialTimeout = 30 * time.Second

// IMAPDialer opens go-imap sessions. Port 993 uses implicit TLS, any other port upgrades
// with STARTTLS when the server offers it.
type IMAPDialer struct {
	Timeout   time.Duration
	TLSConfig *tls.Config
}

func NewIMAPDialer() *IMAPDialer {
	return &IMAPDialer{Timeout: DefaultDialTimeout}
}

//nolint:ireturn // callers only need the session contract
func (d *IMAPDialer) Dial(ctx context.Context, account Account) (Session, error) {
	addr := net.JoinHostPort(account.Host, strconv.Itoa(account.Port))

	tlsConfig := d.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: account.Host, MinVersion: tls.VersionTLS12}
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}

	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}

	netDialer := &net.Dialer{Timeout: timeout}

	var (
		c   *client.Client
		err error
	)

	if account.Port == DefaultPort {
		c, err = client.DialWithDialerTLS(netDialer, addr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(netDialer, addr)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// Abort blocking commands when the poll is cancelled.
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })

	if account.Port != DefaultPort {
		if ok, _ := c.SupportStartTLS(); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				stop()
				_ = c.Terminate()

				return nil, fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}

	if err := c.Login(account.Username, account.Password); err != nil {
		stop()
		_ = c.Terminate()

		return nil, fmt.Errorf("login failed: %w", err)
	}

	return &imapSession{client: c, stop: stop}, nil
}

type imapSession struct {
	client *client.Client
	stop   func() bool
}

func (s *imapSession) Select(_ context.Context, folder string) (uint32, error) {
	status, err := s.client.Select(folder, true)
	if err != nil {
		return 0, fmt.Errorf("failed to select %s: %w", folder, err)
	}

	return status.UidNext, nil
}

func (s *imapSession) Search(_ context.Context, c Criteria) ([]uint32, error) {
	uids := new(imap.SeqSet)
	// A stop of 0 is "*".
	uids.AddRange(c.SinceUID, 0)

	criteria := imap.NewSearchCriteria()
	criteria.Uid = uids

	if c.From != "" {
		criteria.Header.Add("From", c.From)
	}

	if c.Subject != "" {
		criteria.Header.Add("Subject", c.Subject)
	}

	found, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return found, nil
}

func (s *imapSession) Fetch(_ context.Context, uids []uint32) ([]Message, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	set := new(imap.SeqSet)
	set.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- s.client.UidFetch(set, items, messages)
	}()

	out := make([]Message, 0, len(uids))

	for msg := range messages {
		m := fromEnvelope(msg.Uid, msg.Envelope)

		if body := msg.GetBody(section); body != nil {
			// An unparsable body still triggers with the envelope fields.
			m.Text, m.HTML, _ = parseBody(body)
		}

		out = append(out, m)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}

	return out, nil
}

func (s *imapSession) List(_ context.Context) ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)

	go func() {
		done <- s.client.List("", "*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		names = append(names, m.Name)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("list failed: %w", err)
	}

	return names, nil
}

func (s *imapSession) Close() error {
	s.stop()

	err := s.client.Logout()
	if errors.Is(err, client.ErrAlreadyLoggedOut) {
		return nil
	}

	return err
}

func fromEnvelope(uid uint32, env *imap.Envelope) Message {
	m := Message{UID: uid}
	if env == nil {
		return m
	}

	m.Subject = env.Subject
	m.Date = env.Date
	m.MessageID = env.MessageId
	m.InReplyTo = env.InReplyTo

	if len(env.From) > 0 && env.From[0] != nil {
		m.From = env.From[0].Address()
	}

	if len(env.To) > 0 && env.To[0] != nil {
		m.To = env.To[0].Address()
	}

	return m
}
