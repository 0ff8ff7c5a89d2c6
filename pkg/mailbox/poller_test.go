package mailbox_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/graph"
	"github.com/dukex/autoflow/pkg/mailbox"
	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence/file"
	"github.com/dukex/autoflow/pkg/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	uidNext  uint32
	messages map[uint32]mailbox.Message
	fetched  [][]uint32
	closed   bool
}

func newFakeSession(messages ...mailbox.Message) *fakeSession {
	s := &fakeSession{uidNext: 1, messages: map[uint32]mailbox.Message{}}
	for _, m := range messages {
		s.messages[m.UID] = m
		s.uidNext = max(s.uidNext, m.UID+1)
	}

	return s
}

func (s *fakeSession) Select(_ context.Context, _ string) (uint32, error) {
	return s.uidNext, nil
}

// Search mimics "n:*": the newest message always matches.
func (s *fakeSession) Search(_ context.Context, c mailbox.Criteria) ([]uint32, error) {
	var out []uint32

	for uid := range s.messages {
		if uid >= c.SinceUID || uid == s.uidNext-1 {
			out = append(out, uid)
		}
	}

	return out, nil
}

func (s *fakeSession) Fetch(_ context.Context, uids []uint32) ([]mailbox.Message, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, uids)
	s.mu.Unlock()

	out := make([]mailbox.Message, 0, len(uids))
	for _, uid := range uids {
		out = append(out, s.messages[uid])
	}

	return out, nil
}

func (s *fakeSession) List(_ context.Context) ([]string, error) {
	return []string{"INBOX", "Sent"}, nil
}

func (s *fakeSession) Close() error {
	s.closed = true

	return nil
}

type fakeDialer struct {
	session  *fakeSession
	err      error
	accounts []mailbox.Account
}

//nolint:ireturn
func (d *fakeDialer) Dial(_ context.Context, account mailbox.Account) (mailbox.Session, error) {
	d.accounts = append(d.accounts, account)
	if d.err != nil {
		return nil, d.err
	}

	return d.session, nil
}

type launch struct {
	workflowID string
	source     models.Source
	payload    any
	message    string
}

type recordingLauncher struct {
	mu       sync.Mutex
	launches []launch
	failOn   string
}

func (l *recordingLauncher) Launch(_ context.Context, workflowID string, source models.Source, payload any, message string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failOn != "" && strings.HasSuffix(message, l.failOn) {
		return "", errors.New("queue unavailable")
	}

	l.launches = append(l.launches, launch{workflowID, source, payload, message})

	return uuid.NewString(), nil
}

func emailGraph(config map[string]any) models.Graph {
	base := map[string]any{"imapEmail": "alerts@gmail.com", "imapPassword": "app-password"}
	for k, v := range config {
		base[k] = v
	}

	return testutil.NewGraph(
		[]models.GraphNode{
			testutil.TriggerNode("inbox", "email", base),
			testutil.ActionNode("map", "Transformation", nil),
		},
		testutil.Edge("inbox", "map"),
	)
}

func messages(from, to uint32) []mailbox.Message {
	out := make([]mailbox.Message, 0, to-from+1)
	for uid := from; uid <= to; uid++ {
		out = append(out, mailbox.Message{
			UID:     uid,
			From:    "sender@example.com",
			To:      "alerts@gmail.com",
			Subject: fmt.Sprintf("Message %d", uid),
			Date:    time.Date(2025, 1, 1, 0, 0, int(uid), 0, time.UTC),
		})
	}

	return out
}

type fixture struct {
	store    *file.Persistence
	launcher *recordingLauncher
	dialer   *fakeDialer
	poller   *mailbox.Poller
}

func newFixture(t *testing.T, session *fakeSession, opts ...mailbox.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:    file.NewPersistence(t.TempDir()),
		launcher: &recordingLauncher{},
		dialer:   &fakeDialer{session: session},
	}
	f.poller = mailbox.NewPoller(f.store.WorkflowRepository(), f.launcher, f.dialer, slog.Default(), opts...)

	return f
}

func (f *fixture) save(t *testing.T, g models.Graph) *models.Workflow {
	t.Helper()

	wf := testutil.CreateTestWorkflow(
		testutil.WithTriggerType(models.TriggerTypeEmail),
		testutil.WithGraph(g),
	)
	require.NoError(t, f.store.WorkflowRepository().Save(context.Background(), wf))

	return wf
}

func (f *fixture) cursor(t *testing.T, id string) uint32 {
	t.Helper()

	wf, err := f.store.WorkflowRepository().GetByID(context.Background(), id)
	require.NoError(t, err)

	trigger, ok := mailbox.FindTrigger(wf.Graph)
	require.True(t, ok)

	return trigger.LastUID
}

func TestPoll_FirstPollSkipsHistory(t *testing.T) {
	t.Parallel()

	session := newFakeSession(messages(1, 41)...)
	f := newFixture(t, session)
	wf := f.save(t, emailGraph(nil))

	result := f.poller.Poll(context.Background(), wf)
	require.NoError(t, result.Err)

	assert.Zero(t, result.Triggered)
	assert.Equal(t, uint32(41), result.NewCursor)
	assert.Empty(t, f.launcher.launches)
	assert.Empty(t, session.fetched)
	assert.True(t, session.closed)
	assert.Equal(t, uint32(41), f.cursor(t, wf.ID))

	require.Len(t, f.dialer.accounts, 1)
	assert.Equal(t, "imap.gmail.com", f.dialer.accounts[0].Host)
	assert.Equal(t, 993, f.dialer.accounts[0].Port)
}

func TestPoll_NewMessagesStartRuns(t *testing.T) {
	t.Parallel()

	session := newFakeSession(messages(1, 12)...)
	f := newFixture(t, session)
	wf := f.save(t, emailGraph(map[string]any{"lastUid": 10.0}))

	result := f.poller.Poll(context.Background(), wf)
	require.NoError(t, result.Err)

	assert.Equal(t, 2, result.Triggered)
	assert.Equal(t, uint32(12), result.NewCursor)
	assert.Equal(t, uint32(12), f.cursor(t, wf.ID))

	require.Len(t, f.launcher.launches, 2)

	first := f.launcher.launches[0]
	assert.Equal(t, wf.ID, first.workflowID)
	assert.Equal(t, models.SourceEmail, first.source)
	assert.Equal(t, "Email received from sender@example.com: Message 11", first.message)

	payload, ok := first.payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, uint32(11), payload["uid"])
	assert.Equal(t, "alerts@gmail.com", payload["to"])
	assert.Equal(t, "2025-01-01T00:00:11Z", payload["date"])
	assert.Equal(t, map[string]any{"messageId": "", "inReplyTo": ""}, payload["headers"])
}

func TestPoll_FailedLaunchHoldsCursorAtMessage(t *testing.T) {
	t.Parallel()

	session := newFakeSession(messages(1, 14)...)
	f := newFixture(t, session)
	f.launcher.failOn = "Message 12"
	wf := f.save(t, emailGraph(map[string]any{"lastUid": 10.0}))

	result := f.poller.Poll(context.Background(), wf)
	require.Error(t, result.Err)

	assert.Equal(t, 1, result.Triggered)
	assert.Equal(t, uint32(11), result.NewCursor)
	assert.Equal(t, uint32(11), f.cursor(t, wf.ID))

	f.launcher.failOn = ""

	wf, err := f.store.WorkflowRepository().GetByID(context.Background(), wf.ID)
	require.NoError(t, err)

	result = f.poller.Poll(context.Background(), wf)
	require.NoError(t, result.Err)

	assert.Equal(t, 3, result.Triggered)
	assert.Equal(t, uint32(14), f.cursor(t, wf.ID))
	require.Len(t, f.launcher.launches, 4)
	assert.Equal(t, "Email received from sender@example.com: Message 12", f.launcher.launches[1].message)
}

func TestPoll_NothingNewKeepsCursor(t *testing.T) {
	t.Parallel()

	session := newFakeSession(messages(1, 5)...)
	f := newFixture(t, session)
	wf := f.save(t, emailGraph(map[string]any{"lastUid": 5.0}))

	result := f.poller.Poll(context.Background(), wf)
	require.NoError(t, result.Err)

	assert.Zero(t, result.Triggered)
	assert.Equal(t, uint32(5), result.NewCursor)
	assert.Empty(t, session.fetched)
}

func TestPoll_BatchCapAdvancesCursorPastSkipped(t *testing.T) {
	t.Parallel()

	session := newFakeSession(messages(1, 30)...)
	f := newFixture(t, session)
	wf := f.save(t, emailGraph(map[string]any{"lastUid": 5.0}))

	result := f.poller.Poll(context.Background(), wf)
	require.NoError(t, result.Err)

	assert.Equal(t, mailbox.DefaultMaxMessages, result.Triggered)
	assert.Equal(t, uint32(30), result.NewCursor)
	assert.Equal(t, uint32(30), f.cursor(t, wf.ID))

	require.Len(t, session.fetched, 1)
	assert.Equal(t, []uint32{6, 7, 8, 9, 10, 11, 12, 13, 14, 15}, session.fetched[0])

	second := f.poller.Poll(context.Background(), mustGet(t, f, wf.ID))
	require.NoError(t, second.Err)
	assert.Zero(t, second.Triggered)
}

func TestPoll_WithMaxMessages(t *testing.T) {
	t.Parallel()

	session := newFakeSession(messages(1, 10)...)
	f := newFixture(t, session, mailbox.WithMaxMessages(3))
	wf := f.save(t, emailGraph(map[string]any{"lastUid": 1.0}))

	result := f.poller.Poll(context.Background(), wf)
	require.NoError(t, result.Err)
	assert.Equal(t, 3, result.Triggered)
	assert.Equal(t, uint32(10), result.NewCursor)
}

func TestPoll_Filters(t *testing.T) {
	t.Parallel()

	msgs := messages(1, 4)
	msgs[1].From = "billing@vendor.io"
	msgs[2].Subject = "INVOICE 42"
	msgs[3].From = "billing@vendor.io"
	msgs[3].Subject = "Your invoice"

	session := newFakeSession(msgs...)
	f := newFixture(t, session)
	wf := f.save(t, emailGraph(map[string]any{
		"lastUid":       1.0,
		"filterFrom":    "BILLING@",
		"filterSubject": "invoice",
	}))

	result := f.poller.Poll(context.Background(), wf)
	require.NoError(t, result.Err)

	assert.Equal(t, 1, result.Triggered)
	assert.Equal(t, uint32(4), result.NewCursor)
	require.Len(t, f.launcher.launches, 1)
	assert.Equal(t, "Email received from billing@vendor.io: Your invoice", f.launcher.launches[0].message)
}

func TestPoll_ConfigErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakeSession())

	noTrigger := testutil.CreateTestWorkflow()
	assert.ErrorIs(t, f.poller.Poll(context.Background(), noTrigger).Err, mailbox.ErrNoEmailTrigger)

	noPassword := testutil.CreateTestWorkflow(testutil.WithGraph(emailGraph(map[string]any{"imapPassword": ""})))
	assert.ErrorIs(t, f.poller.Poll(context.Background(), noPassword).Err, mailbox.ErrNoCredentials)

	unknown := testutil.CreateTestWorkflow(testutil.WithGraph(emailGraph(map[string]any{"imapEmail": "me@example.org"})))
	assert.ErrorIs(t, f.poller.Poll(context.Background(), unknown).Err, mailbox.ErrUnknownProvider)

	assert.Empty(t, f.dialer.accounts)
}

func TestPoll_ExplicitServer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, newFakeSession(messages(1, 2)...))
	wf := f.save(t, emailGraph(map[string]any{
		"imapEmail":  "me@example.org",
		"imapHost":   "mail.example.org",
		"imapPort":   "143",
		"imapFolder": "Alerts",
	}))

	trigger, ok := mailbox.FindTrigger(wf.Graph)
	require.True(t, ok)
	assert.Equal(t, "Alerts", trigger.Folder)

	result := f.poller.Poll(context.Background(), wf)
	require.NoError(t, result.Err)

	require.Len(t, f.dialer.accounts, 1)
	assert.Equal(t, mailbox.Account{
		Server:   mailbox.Server{Host: "mail.example.org", Port: 143},
		Username: "me@example.org",
		Password: "app-password",
	}, f.dialer.accounts[0])
}

func TestPollAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	session := newFakeSession(messages(1, 3)...)
	f := newFixture(t, session)

	fresh := f.save(t, emailGraph(nil))
	fresh.Name = "fresh"
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, fresh))

	ready := f.save(t, emailGraph(map[string]any{"lastUid": 2.0}))

	disconnected := testutil.NewGraph([]models.GraphNode{
		testutil.TriggerNode("inbox", "email", map[string]any{"imapEmail": "a@gmail.com", "imapPassword": "x"}),
	})
	f.save(t, disconnected)

	inactive := testutil.CreateTestWorkflow(
		testutil.WithGraph(emailGraph(map[string]any{"lastUid": 1.0})),
		func(w *models.Workflow) { w.Status = models.WorkflowStatusInactive },
	)
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, inactive))

	summary, err := f.poller.PollAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Triggered)
	assert.Empty(t, summary.Errors)

	require.Len(t, f.launcher.launches, 1)
	assert.Equal(t, ready.ID, f.launcher.launches[0].workflowID)
	assert.Equal(t, uint32(3), f.cursor(t, fresh.ID))
}

func TestPollAll_CollectsErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, nil)
	f.dialer.err = errors.New("connection refused")

	wf := f.save(t, emailGraph(map[string]any{"lastUid": 2.0}))
	wf.Name = "Inbox watcher"
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, wf))

	second := f.save(t, emailGraph(map[string]any{"lastUid": 2.0}))

	summary, err := f.poller.PollAll(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Checked)
	assert.Zero(t, summary.Triggered)
	require.Len(t, summary.Errors, 2)
	assert.Contains(t, summary.Errors, "Inbox watcher: connection refused")
	assert.Contains(t, summary.Errors, second.Name+": connection refused")
}

func TestFindTrigger_RequiresConnection(t *testing.T) {
	t.Parallel()

	g := testutil.NewGraph([]models.GraphNode{
		testutil.TriggerNode("inbox", "email", map[string]any{"imapEmail": "a@gmail.com"}),
	})

	_, ok := mailbox.FindTrigger(g)
	assert.False(t, ok)

	_, ok = graph.ConnectedTrigger(emailGraph(nil), graph.TriggerEmail)
	assert.True(t, ok)
}

func TestCheckConnection(t *testing.T) {
	t.Parallel()

	trigger := mailbox.TriggerConfig{Email: "me@gmail.com", Password: "x"}

	folders, err := mailbox.CheckConnection(context.Background(), &fakeDialer{session: newFakeSession()}, trigger)
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX", "Sent"}, folders)

	_, err = mailbox.CheckConnection(context.Background(),
		&fakeDialer{err: errors.New("login failed: [AUTHENTICATIONFAILED] Invalid credentials")}, trigger)
	require.ErrorIs(t, err, mailbox.ErrConnectionCheck)
	assert.Contains(t, err.Error(), "Authentication failed")

	_, err = mailbox.CheckConnection(context.Background(), &fakeDialer{}, mailbox.TriggerConfig{Email: "me@nowhere.test", Password: "x"})
	require.ErrorIs(t, err, mailbox.ErrConnectionCheck)
	assert.Contains(t, err.Error(), "Unknown email provider")

	_, err = mailbox.CheckConnection(context.Background(), &fakeDialer{}, mailbox.TriggerConfig{Email: "me@gmail.com"})
	assert.ErrorIs(t, err, mailbox.ErrNoCredentials)
}

func TestLookupServer(t *testing.T) {
	t.Parallel()

	s, ok := mailbox.LookupServer("Someone@Proton.Me")
	require.True(t, ok)
	assert.Equal(t, mailbox.Server{Host: "127.0.0.1", Port: 1143}, s)

	_, ok = mailbox.LookupServer("not-an-address")
	assert.False(t, ok)

	known := mailbox.KnownServers()
	require.NotEmpty(t, known)
	assert.Equal(t, "aol.com", known[0].Domain)
}

func mustGet(t *testing.T, f *fixture, id string) *models.Workflow {
	t.Helper()

	wf, err := f.store.WorkflowRepository().GetByID(context.Background(), id)
	require.NoError(t, err)

	return wf
}
