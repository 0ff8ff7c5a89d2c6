// Package telegram provides the Telegram step handler.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dukex/autoflow/pkg/actions"
)

// DefaultAPIBase is the Bot API root.
const DefaultAPIBase = "https://api.telegram.org"

// Action posts one chat message through the Bot API.
type Action struct {
	BotToken  string
	ChatID    string
	Message   string
	ParseMode string

	apiBase string
	client  *http.Client
}

func NewAction(config map[string]any, apiBase string, client *http.Client) (*Action, error) {
	token := actions.String(config, "botToken")
	chatID := actions.String(config, "chatId")

	if token == "" || chatID == "" {
		return nil, actions.ConfigError("Telegram step missing botToken or chatId")
	}

	message, _ := config["message"].(string)

	if apiBase == "" {
		apiBase = DefaultAPIBase
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &Action{
		BotToken:  token,
		ChatID:    chatID,
		Message:   message,
		ParseMode: actions.String(config, "parseMode"),
		apiBase:   apiBase,
		client:    client,
	}, nil
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

func (a *Action) Execute(ctx context.Context, input any) (any, error) {
	text := a.Message
	if text == "" {
		b, err := json.Marshal(input)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input: %w", err)
		}

		text = string(b)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: a.ChatID, Text: text, ParseMode: a.ParseMode})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", a.apiBase, a.BotToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read telegram response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Telegram API error: %s", raw) //nolint:stylecheck // surfaced verbatim in execution logs
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode telegram response: %w", err)
	}

	return out, nil
}
