package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wesleyorama2/volley/pkg/jsonpath"
)

// DefaultTokenPath is where the token is read from in the login response.
const DefaultTokenPath = "token"

// TokenAuthenticator logs in by POSTing the credentials as JSON and reading
// the token from the response body.
type TokenAuthenticator struct {
	// URL of the login endpoint
	URL string

	// TokenPath locates the token in the response body, either as a
	// JSONPath expression ($.data.token) or a gjson path
	TokenPath string

	Executor Executor
}

// NewTokenAuthenticator returns an authenticator posting to url through exec.
func NewTokenAuthenticator(url string, exec Executor) *TokenAuthenticator {
	return &TokenAuthenticator{URL: url, TokenPath: DefaultTokenPath, Executor: exec}
}

// Authenticate implements Authenticator.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, creds Credentials) (string, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return "", &AuthError{Reason: "failed to encode credentials", Err: err}
	}

	resp, err := a.Executor.Execute(ctx, &Request{
		Method:  http.MethodPost,
		URL:     a.URL,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return "", &AuthError{Reason: "login request failed", Err: err}
	}
	if resp.Status != http.StatusOK {
		return "", &AuthError{Reason: fmt.Sprintf("login returned status %d", resp.Status)}
	}

	path := a.TokenPath
	if path == "" {
		path = DefaultTokenPath
	}
	token, err := jsonpath.Extract(resp.Body, path)
	if err != nil || token == "" || token == "null" {
		return "", &AuthError{Reason: fmt.Sprintf("no token at path %q in login response", path), Err: err}
	}

	return token, nil
}
