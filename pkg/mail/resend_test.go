package mail_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/autoflow/pkg/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResend_Send(t *testing.T) {
	t.Parallel()

	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_123"}`))
	}))
	defer server.Close()

	mailer := mail.NewResend("key-1", "bot@example.com", server.Client())
	mailer.Endpoint = server.URL

	result, err := mailer.Send(context.Background(), mail.Message{
		To:      "a@example.com, b@example.com",
		Subject: "Hi",
		Text:    "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, mail.Result{ID: "msg_123", Provider: "resend"}, result)
	assert.Equal(t, "bot@example.com", got["from"])
	assert.Equal(t, []any{"a@example.com", "b@example.com"}, got["to"])
	assert.NotContains(t, got, "html")
}

func TestResend_SendErrorStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	mailer := mail.NewResend("nope", "", server.Client())
	mailer.Endpoint = server.URL

	_, err := mailer.Send(context.Background(), mail.Message{To: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestDiscard_Send(t *testing.T) {
	t.Parallel()

	d := mail.NewDiscard(slog.New(slog.DiscardHandler))

	result, err := d.Send(context.Background(), mail.Message{To: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "dev-skipped", result.ID)

	_, err = d.Send(context.Background(), mail.Message{})
	require.ErrorIs(t, err, mail.ErrMissingRecipient)
}

func TestNewSMTP_RequiresHost(t *testing.T) {
	t.Parallel()

	_, err := mail.NewSMTP(mail.SMTPConfig{})
	require.Error(t, err)

	s, err := mail.NewSMTP(mail.KnownSMTPServers["gmail"])
	require.NoError(t, err)
	assert.NotNil(t, s)
}
