// Package transport defines the outbound capabilities a load run consumes:
// executing a request, acquiring an auth token and generating payloads.
//
// The core packages only depend on the interfaces declared here. The HTTP
// implementations in this package are the defaults wired by the CLI.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// DefaultTimeout is applied to a call when neither the request nor the
// executor configuration sets one.
const DefaultTimeout = 30 * time.Second

// Request is a single outbound call.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// Response is the observable result of a completed call.
type Response struct {
	Status  int
	Latency time.Duration
	Body    []byte
	Header  http.Header
}

// Executor performs a request. Failures to obtain any response are reported
// as *TransportError.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *Request) (*Response, error)

// Execute calls f(ctx, req).
func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Credentials identify the principal a run authenticates as.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (string, error)
}

// PayloadGenerator produces request bodies of roughly sizeHint bytes of
// random data, labelled with kind.
type PayloadGenerator interface {
	Generate(sizeHint int, kind string) ([]byte, error)
}

// TransportError reports that no response was obtained for a call.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthError reports that a token could not be acquired.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
