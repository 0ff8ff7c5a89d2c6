// Package httprequest provides the HTTP Request step handler.
package httprequest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dukex/autoflow/pkg/actions"
)

var (
	// ErrHTTPRequestURLInvalid is returned when the url is missing or cannot be parsed.
	ErrHTTPRequestURLInvalid = errors.New("HTTP Request step missing url")
	// ErrHTTPRequestProtocol is returned for schemes other than http and https.
	ErrHTTPRequestProtocol = errors.New("HTTP Request step uses unsupported protocol")
)

// Action performs one outbound HTTP call. Non-2xx responses are returned, not failed.
type Action struct {
	URL     *url.URL
	Method  string
	Headers map[string]string
	Body    any
	HasBody bool

	client *http.Client
}

// NewAction creates an Action from a step config.
func NewAction(config map[string]any, client *http.Client) (*Action, error) {
	raw := actions.String(config, "url", "endpoint")
	if raw == "" {
		return nil, fmt.Errorf("%w: %w", actions.ErrConfig, ErrHTTPRequestURLInvalid)
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" && parsed.Scheme != "" {
		return nil, fmt.Errorf("%w: %w: %s", actions.ErrConfig, ErrHTTPRequestURLInvalid, raw)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: %w", actions.ErrConfig, ErrHTTPRequestProtocol)
	}

	method := strings.ToUpper(actions.String(config, "method"))
	if method == "" {
		method = http.MethodPost
	}

	body, hasBody := config["body"]
	if body == nil {
		hasBody = false
	}

	if client == nil {
		client = http.DefaultClient
	}

	return &Action{
		URL:     parsed,
		Method:  method,
		Headers: actions.StringMap(config["headers"]),
		Body:    body,
		HasBody: hasBody,
		client:  client,
	}, nil
}

// Execute sends the request. The context deadline bounds the whole call.
func (a *Action) Execute(ctx context.Context, input any) (any, error) {
	req, err := a.buildRequest(ctx, input)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	return processResponse(resp)
}

func (a *Action) buildRequest(ctx context.Context, input any) (*http.Request, error) {
	var reader io.Reader

	if a.Method != http.MethodGet && a.Method != http.MethodHead {
		payload := input
		if a.HasBody {
			payload = a.Body
		}

		switch v := actions.ParseJSONMaybe(payload).(type) {
		case string:
			reader = strings.NewReader(v)
		case nil:
			reader = strings.NewReader("{}")
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request body: %w", err)
			}

			reader = bytes.NewReader(b)
		}
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, a.URL.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func processResponse(resp *http.Response) (map[string]any, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var data any

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(body, &data); err != nil {
			data = nil
		}
	} else {
		data = string(body)
	}

	return map[string]any{
		"status": resp.StatusCode,
		"ok":     resp.StatusCode >= 200 && resp.StatusCode < 300,
		"data":   data,
	}, nil
}
