package mailbox

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dukex/autoflow/pkg/models"
	"github.com/dukex/autoflow/pkg/persistence"
)

// DefaultMaxMessages is the number of messages turned into runs per poll of one mailbox.
const DefaultMaxMessages = 10

// Launcher creates and dispatches one execution. *services.Launcher implements it.
type Launcher interface {
	Launch(ctx context.Context, workflowID string, source models.Source, payload any, message string) (string, error)
}

// PollResult is the outcome of polling one workflow's mailbox.
type PollResult struct {
	Triggered int
	NewCursor uint32
	Err       error
}

// PollSummary is the outcome of one pass over every email-triggered workflow.
type PollSummary struct {
	Checked   int      `json:"checked"`
	Triggered int      `json:"triggered"`
	Errors    []string `json:"errors"`
}

type Poller struct {
	workflows   persistence.WorkflowRepository
	launcher    Launcher
	dialer      Dialer
	logger      *slog.Logger
	maxMessages int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Poller)

// WithMaxMessages changes the per-poll batch size.
func WithMaxMessages(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxMessages = n
		}
	}
}

func NewPoller(workflows persistence.WorkflowRepository, launcher Launcher, dialer Dialer, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		workflows:   workflows,
		launcher:    launcher,
		dialer:      dialer,
		logger:      logger.With("module", "mailbox"),
		maxMessages: DefaultMaxMessages,
		locks:       map[string]*sync.Mutex{},
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// PollAll polls every ACTIVE workflow that has a connected, configured email trigger.
// Errors are collected per workflow.
func (p *Poller) PollAll(ctx context.Context) (PollSummary, error) {
	summary := PollSummary{Errors: []string{}}

	workflows, err := p.workflows.ListActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list active workflows: %w", err)
	}

	for _, wf := range workflows {
		trigger, ok := FindTrigger(wf.Graph)
		if !ok || !trigger.Configured() {
			continue
		}

		summary.Checked++

		result := p.Poll(ctx, wf)
		if result.Triggered > 0 {
			summary.Triggered++
		}

		if result.Err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", wf.Name, result.Err))
		}
	}

	if summary.Checked > 0 {
		p.logger.InfoContext(ctx, "Mailbox poll finished",
			"checked", summary.Checked, "triggered", summary.Triggered, "errors", len(summary.Errors))
	}

	return summary, nil
}

// Poll checks one workflow's mailbox. The first poll of a trigger only records the
// current position so existing mail never starts runs.
func (p *Poller) Poll(ctx context.Context, wf *models.Workflow) PollResult {
	logger := p.logger.With("workflow_id", wf.ID)

	trigger, ok := FindTrigger(wf.Graph)
	if !ok {
		return PollResult{Err: ErrNoEmailTrigger}
	}

	if !trigger.Configured() {
		return PollResult{Err: ErrNoCredentials}
	}

	account, err := trigger.Account()
	if err != nil {
		return PollResult{Err: err}
	}

	unlock := p.lock(account, trigger.Folder)
	defer unlock()

	session, err := p.dialer.Dial(ctx, account)
	if err != nil {
		logger.ErrorContext(ctx, "Mailbox connection failed", "host", account.Host, "error", err)

		return PollResult{Err: err}
	}

	defer func() {
		if err := session.Close(); err != nil {
			logger.DebugContext(ctx, "Mailbox logout failed", "error", err)
		}
	}()

	result := p.poll(ctx, logger, wf, trigger, session)
	if result.Err != nil {
		logger.ErrorContext(ctx, "Mailbox poll failed", "error", result.Err)
	}

	return result
}

func (p *Poller) poll(ctx context.Context, logger *slog.Logger, wf *models.Workflow, trigger TriggerConfig, session Session) PollResult {
	uidNext, err := session.Select(ctx, trigger.Folder)
	if err != nil {
		return PollResult{Err: err}
	}

	if trigger.LastUID == 0 {
		cursor := uint32(0)
		if uidNext > 0 {
			cursor = uidNext - 1
		}

		logger.InfoContext(ctx, "First mailbox poll, skipping existing mail", "cursor", cursor)

		if err := p.saveCursor(ctx, wf, trigger.NodeID, cursor); err != nil {
			return PollResult{NewCursor: cursor, Err: err}
		}

		return PollResult{NewCursor: cursor}
	}

	found, err := session.Search(ctx, Criteria{
		SinceUID: trigger.LastUID + 1,
		From:     trigger.FilterFrom,
		Subject:  trigger.FilterSubject,
	})
	if err != nil {
		return PollResult{NewCursor: trigger.LastUID, Err: err}
	}

	// "n:*" always matches the newest message, even below n.
	uids := slices.DeleteFunc(slices.Clone(found), func(uid uint32) bool { return uid <= trigger.LastUID })
	slices.Sort(uids)
	uids = slices.Compact(uids)

	if len(uids) == 0 {
		return PollResult{NewCursor: trigger.LastUID}
	}

	// Everything seen advances the cursor, including what the batch cap leaves out.
	cursor := uids[len(uids)-1]

	batch := uids
	if len(batch) > p.maxMessages {
		logger.InfoContext(ctx, "Mailbox batch limit reached, skipping the rest",
			"limit", p.maxMessages, "skipped", len(batch)-p.maxMessages)

		batch = batch[:p.maxMessages]
	}

	messages, err := session.Fetch(ctx, batch)
	if err != nil {
		return PollResult{NewCursor: trigger.LastUID, Err: err}
	}

	slices.SortFunc(messages, func(a, b Message) int { return cmp.Compare(a.UID, b.UID) })

	result := PollResult{NewCursor: cursor}

	for _, msg := range messages {
		if !matches(msg, trigger) {
			continue
		}

		executionID, err := p.launcher.Launch(ctx, wf.ID, models.SourceEmail, msg.Payload(),
			fmt.Sprintf("Email received from %s: %s", msg.From, msg.Subject))
		if err != nil {
			// The next poll starts again at the message that failed.
			logger.ErrorContext(ctx, "Failed to queue email run", "uid", msg.UID, "error", err)
			result.Err = err
			result.NewCursor = msg.UID - 1

			break
		}

		result.Triggered++

		logger.InfoContext(ctx, "Queued email run", "uid", msg.UID, "execution_id", executionID)
	}

	if err := p.saveCursor(ctx, wf, trigger.NodeID, result.NewCursor); err != nil {
		result.Err = err
	}

	return result
}

// matches re-checks the search filters locally; servers differ in how they match headers.
func matches(msg Message, trigger TriggerConfig) bool {
	if f := trigger.FilterFrom; f != "" && !containsFold(msg.From, f) {
		return false
	}

	if f := trigger.FilterSubject; f != "" && !containsFold(msg.Subject, f) {
		return false
	}

	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func (p *Poller) saveCursor(ctx context.Context, wf *models.Workflow, nodeID string, cursor uint32) error {
	g, ok := wf.Graph.WithConfigValue(nodeID, "lastUid", int64(cursor))
	if !ok {
		return fmt.Errorf("%w: node %s", ErrNoEmailTrigger, nodeID)
	}

	if err := p.workflows.UpdateGraph(ctx, wf.ID, g); err != nil {
		return fmt.Errorf("failed to save mailbox cursor: %w", err)
	}

	wf.Graph = g

	return nil
}

// lock serializes polls of one mailbox folder.
func (p *Poller) lock(account Account, folder string) func() {
	key := strings.ToLower(account.Host + "/" + account.Username + "/" + folder)

	p.mu.Lock()

	m, ok := p.locks[key]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key] = m
	}

	p.mu.Unlock()

	m.Lock()

	return m.Unlock
}
