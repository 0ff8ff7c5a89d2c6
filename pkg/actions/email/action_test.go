package email_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/actions/email"
	"github.com/dukex/autoflow/pkg/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	sent []mail.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) (mail.Result, error) {
	if m.err != nil {
		return mail.Result{}, m.err
	}

	m.sent = append(m.sent, msg)

	return mail.Result{ID: "id-1", Provider: "test"}, nil
}

func TestNewAction_RequiresRecipient(t *testing.T) {
	t.Parallel()

	_, err := email.NewAction(map[string]any{"subject": "x"}, &recordingMailer{})
	require.ErrorIs(t, err, actions.ErrConfig)
}

func TestAction_Execute_DefaultsBodyToInput(t *testing.T) {
	t.Parallel()

	mailer := &recordingMailer{}
	action, err := email.NewAction(map[string]any{"email": "ops@example.com"}, mailer)
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), map[string]any{"a": 1})
	require.NoError(t, err)

	require.Len(t, mailer.sent, 1)
	msg := mailer.sent[0]
	assert.Equal(t, "ops@example.com", msg.To)
	assert.Equal(t, "Workflow notification", msg.Subject)
	assert.Equal(t, "{\n  \"a\": 1\n}", msg.Text)
	assert.Equal(t, "<pre>{\n  \"a\": 1\n}</pre>", msg.HTML)
	assert.Equal(t, map[string]any{"ok": true, "result": mail.Result{ID: "id-1", Provider: "test"}}, out)
}

func TestAction_Execute_ExplicitContentAndFailure(t *testing.T) {
	t.Parallel()

	mailer := &recordingMailer{}
	action, err := email.NewAction(map[string]any{
		"to": "ops@example.com", "subject": "Report", "html": "<b>hi</b>", "text": "hi",
	}, mailer)
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "<b>hi</b>", mailer.sent[0].HTML)
	assert.Equal(t, "hi", mailer.sent[0].Text)

	mailer.err = errors.New("relay down")
	_, err = action.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
}
