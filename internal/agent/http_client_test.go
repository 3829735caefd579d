package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientRespond(t *testing.T) {
	t.Parallel()

	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(Response{Response: "Start with 1418 Maple."})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, srv.Client(), nil)
	resp, err := c.Respond(context.Background(), Request{
		Message: "which deal first?",
		Context: map[string]any{"phase": "briefing"},
		UserID:  "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Start with 1418 Maple.", resp.Response)
	assert.Equal(t, "which deal first?", got.Message)
	assert.Equal(t, "briefing", got.Context["phase"])
}

func TestHTTPClientFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"bad json", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}},
		{"empty response", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"response":"  "}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPClient(srv.URL, srv.Client(), nil).Respond(context.Background(), Request{Message: "hi"})
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestHTTPClientUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPClient(url, nil, nil).Respond(context.Background(), Request{Message: "hi"})
	assert.ErrorIs(t, err, ErrUnavailable)
}
