package httprequest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukex/autoflow/pkg/actions"
	"github.com/dukex/autoflow/pkg/actions/httprequest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAction_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr error
	}{
		{name: "missing url", config: map[string]any{}, wantErr: httprequest.ErrHTTPRequestURLInvalid},
		{name: "unsupported scheme", config: map[string]any{"url": "ftp://example.com"}, wantErr: httprequest.ErrHTTPRequestProtocol},
		{name: "no scheme", config: map[string]any{"url": "example.com/path"}, wantErr: httprequest.ErrHTTPRequestProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := httprequest.NewAction(tt.config, nil)
			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, actions.ErrConfig)
		})
	}
}

func TestNewAction_Defaults(t *testing.T) {
	t.Parallel()

	action, err := httprequest.NewAction(map[string]any{
		"endpoint": "https://api.example.com/items",
		"headers":  `{"X-Token": "abc", "X-Count": 2}`,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, action.Method)
	assert.Equal(t, "https://api.example.com/items", action.URL.String())
	assert.Equal(t, map[string]string{"X-Token": "abc", "X-Count": "2"}, action.Headers)
	assert.False(t, action.HasBody)
}

func TestAction_Execute_SendsInputAsJSON(t *testing.T) {
	t.Parallel()

	var (
		gotBody        map[string]any
		gotContentType string
		gotToken       string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotToken = r.Header.Get("X-Token")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id": 7}`))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{
		"url":     server.URL,
		"headers": map[string]any{"X-Token": "secret"},
	}, server.Client())
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), map[string]any{"name": "Ada"})
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "secret", gotToken)
	assert.Equal(t, map[string]any{"name": "Ada"}, gotBody)
	assert.Equal(t, map[string]any{
		"status": http.StatusCreated,
		"ok":     true,
		"data":   map[string]any{"id": float64(7)},
	}, out)
}

func TestAction_Execute_StringBodySentVerbatim(t *testing.T) {
	t.Parallel()

	var gotBody string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)

		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{
		"url":    server.URL,
		"method": "put",
		"body":   "plain text",
	}, server.Client())
	require.NoError(t, err)

	out, err := action.Execute(context.Background(), map[string]any{"ignored": true})
	require.NoError(t, err)

	assert.Equal(t, "plain text", gotBody)

	result, ok := out.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, result["status"])
	assert.Equal(t, false, result["ok"])
	assert.Equal(t, "upstream down", result["data"])
}

func TestAction_Execute_GetHasNoBody(t *testing.T) {
	t.Parallel()

	var gotLength int64 = -2

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLength = r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	action, err := httprequest.NewAction(map[string]any{"url": server.URL, "method": "GET"}, server.Client())
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), gotLength)
}

func TestAction_Execute_NetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	action, err := httprequest.NewAction(map[string]any{"url": url}, nil)
	require.NoError(t, err)

	_, err = action.Execute(context.Background(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, actions.ErrConfig)
}
