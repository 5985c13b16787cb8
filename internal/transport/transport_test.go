package transport_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/transport"
)

func TestHTTPExecutor_Execute(t *testing.T) {
	var gotBody []byte
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cfg := transport.DefaultHTTPConfig()
	cfg.BaseURL = server.URL
	cfg.Headers = map[string]string{"X-Global": "g", "X-Test-Type": "global"}
	exec := transport.NewHTTPExecutor(cfg)
	defer exec.Close()

	resp, err := exec.Execute(context.Background(), &transport.Request{
		Method:  http.MethodPost,
		URL:     "/orders",
		Headers: map[string]string{"X-Test-Type": "Error-Recovery"},
		Body:    []byte(`{"a":1}`),
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"ok":true}`, string(resp.Body))
	assert.Greater(t, resp.Latency, time.Duration(0))
	assert.Equal(t, `{"a":1}`, string(gotBody))
	assert.Equal(t, "application/json", gotHeader.Get("Content-Type"))
	assert.Equal(t, "g", gotHeader.Get("X-Global"))
	assert.Equal(t, "Error-Recovery", gotHeader.Get("X-Test-Type"))
}

func TestHTTPExecutor_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	exec := transport.NewHTTPExecutor(transport.DefaultHTTPConfig())
	_, err := exec.Execute(context.Background(), &transport.Request{Method: http.MethodGet, URL: url})

	var terr *transport.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.MethodGet, terr.Method)
}

func TestHTTPExecutor_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	exec := transport.NewHTTPExecutor(transport.DefaultHTTPConfig())
	start := time.Now()
	_, err := exec.Execute(context.Background(), &transport.Request{
		Method:  http.MethodGet,
		URL:     server.URL,
		Timeout: 50 * time.Millisecond,
	})

	var terr *transport.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Less(t, time.Since(start), time.Second)
}

func TestHTTPExecutor_ResolveURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		endpoint string
		want     string
	}{
		{"no base", "", "/coffees", "/coffees"},
		{"joined", "http://api.local/", "/coffees", "http://api.local/coffees"},
		{"missing slash", "http://api.local", "coffees", "http://api.local/coffees"},
		{"absolute wins", "http://api.local", "https://other/x", "https://other/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := transport.DefaultHTTPConfig()
			cfg.BaseURL = tt.base
			if got := transport.NewHTTPExecutor(cfg).ResolveURL(tt.endpoint); got != tt.want {
				t.Errorf("ResolveURL(%q) = %q, want %q", tt.endpoint, got, tt.want)
			}
		})
	}
}

func TestTokenAuthenticator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var creds transport.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if creds.Username != "user" || creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"token":"abc123","data":{"jwt":"nested"}}`))
	}))
	defer server.Close()

	exec := transport.NewHTTPExecutor(transport.DefaultHTTPConfig())

	t.Run("default path", func(t *testing.T) {
		auth := transport.NewTokenAuthenticator(server.URL, exec)
		token, err := auth.Authenticate(context.Background(), transport.Credentials{Username: "user", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "abc123", token)
	})

	t.Run("nested path", func(t *testing.T) {
		auth := transport.NewTokenAuthenticator(server.URL, exec)
		auth.TokenPath = "$.data.jwt"
		token, err := auth.Authenticate(context.Background(), transport.Credentials{Username: "user", Password: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "nested", token)
	})

	t.Run("rejected", func(t *testing.T) {
		auth := transport.NewTokenAuthenticator(server.URL, exec)
		_, err := auth.Authenticate(context.Background(), transport.Credentials{Username: "user", Password: "wrong"})
		var aerr *transport.AuthError
		require.ErrorAs(t, err, &aerr)
		assert.Contains(t, aerr.Error(), "401")
	})

	t.Run("missing token", func(t *testing.T) {
		auth := transport.NewTokenAuthenticator(server.URL, exec)
		auth.TokenPath = "nope"
		_, err := auth.Authenticate(context.Background(), transport.Credentials{Username: "user", Password: "secret"})
		var aerr *transport.AuthError
		require.ErrorAs(t, err, &aerr)
	})

	t.Run("transport failure", func(t *testing.T) {
		failing := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			return nil, &transport.TransportError{Method: req.Method, URL: req.URL, Err: errors.New("refused")}
		})
		_, err := transport.NewTokenAuthenticator("http://login", failing).Authenticate(context.Background(), transport.Credentials{})
		var terr *transport.TransportError
		require.ErrorAs(t, err, &terr)
	})
}

func TestRandomPayload_Generate(t *testing.T) {
	gen := transport.RandomPayload{}

	body, err := gen.Generate(500, "soak")
	require.NoError(t, err)

	var doc struct {
		ID        string `json:"id"`
		Timestamp string `json:"timestamp"`
		Kind      string `json:"kind"`
		Data      string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &doc))
	assert.Len(t, doc.Data, 500)
	assert.Equal(t, "soak", doc.Kind)
	assert.NotEmpty(t, doc.ID)
	assert.NotEmpty(t, doc.Timestamp)

	other, err := gen.Generate(500, "soak")
	require.NoError(t, err)
	assert.NotEqual(t, string(body), string(other))

	_, err = gen.Generate(-1, "")
	assert.Error(t, err)
}
