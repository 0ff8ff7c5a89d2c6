package telegram_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/actions/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAction_RequiresTokenAndChat(t *testing.T) {
	t.Parallel()

	_, err := telegram.NewAction(map[string]any{"botToken": "t"}, "", nil)
	require.ErrorIs(t, err, actions.ErrConfig)

	_, err = telegram.NewAction(map[string]any{"chatId": "1"}, "", nil)
	require.ErrorIs(t, err, actions.ErrConfig)
}

func TestAction_Execute(t *testing.T) {
	t.Parallel()

	var (
		gotPath string
		gotBody map[string]any
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":42}}`))
	}))
	defer server.Close()

	action, err := telegram.NewAction(map[string]any{
		"botToken":  "123:abc",
		"chatId":    -100.0,
		"parseMode": "HTML",
	}, server.URL, server.Client())
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), map[string]any{"n": 1})
	require.NoError(t, err)

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, map[string]any{"chat_id": "-100", "text": `{"n":1}`, "parse_mode": "HTML"}, gotBody)
	assert.Equal(t, true, out.(map[string]any)["ok"])
}

func TestAction_Execute_APIError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	action, err := telegram.NewAction(map[string]any{"botToken": "t", "chatId": "1", "message": "hi"}, server.URL, server.Client())
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Telegram API error: ")
	assert.Contains(t, err.Error(), "chat not found")
}
