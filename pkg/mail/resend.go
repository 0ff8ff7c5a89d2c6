package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DefaultResendURL is the Resend send endpoint.
const DefaultResendURL = "https://api.resend.com/emails"

// Resend sends mail through the Resend HTTP API.
type Resend struct {
	APIKey   string
	From     string
	Endpoint string

	client *http.Client
}

func NewResend(apiKey, from string, client *http.Client) *Resend {
	if client == nil {
		client = http.DefaultClient
	}

	if from == "" {
		from = "noreply@autoflow.local"
	}

	return &Resend{APIKey: apiKey, From: from, Endpoint: DefaultResendURL, client: client}
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html,omitempty"`
	Text    string   `json:"text,omitempty"`
}

func (r *Resend) Send(ctx context.Context, msg Message) (Result, error) {
	if msg.To == "" {
		return Result{}, ErrMissingRecipient
	}

	body, err := json.Marshal(resendRequest{
		From:    r.From,
		To:      splitRecipients(msg.To),
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}

	req.Header.Set("Authorization", "Bearer "+r.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("resend request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)

		return Result{}, fmt.Errorf("resend error: %d - %s", resp.StatusCode, text)
	}

	var out struct {
		ID string `json:"id"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("failed to decode resend response: %w", err)
	}

	return Result{ID: out.ID, Provider: "resend"}, nil
}
