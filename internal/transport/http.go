package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPConfig contains HTTP client configuration.
type HTTPConfig struct {
	// BaseURL is prepended to request URLs that are not absolute.
	BaseURL string

	// Timeout for a call when the request does not set one
	Timeout time.Duration

	// Headers sent with every request; request headers take precedence
	Headers map[string]string

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration
	DisableKeepAlives   bool
	DisableCompression  bool

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool
}

// DefaultHTTPConfig returns sensible defaults for load testing.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:             DefaultTimeout,
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0, // Unlimited
		IdleConnTimeout:     90 * time.Second,
	}
}

// HTTPExecutor executes requests over a shared, pooled HTTP client.
//
// HTTPExecutor is safe for concurrent use by many virtual users.
type HTTPExecutor struct {
	client *http.Client
	config HTTPConfig
}

// NewHTTPExecutor creates an executor with the given configuration.
func NewHTTPExecutor(config HTTPConfig) *HTTPExecutor {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		DisableKeepAlives:   config.DisableKeepAlives,
		DisableCompression:  config.DisableCompression,
	}
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for test targets
	}

	return &HTTPExecutor{
		// Per-call deadlines come from the request context.
		client: &http.Client{Transport: transport},
		config: config,
	}
}

// Execute performs req and reads the full response body. The reported
// latency covers sending the request and receiving the whole body.
func (e *HTTPExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	url := e.ResolveURL(req.URL)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := e.buildRequest(ctx, req, url)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: url, Err: fmt.Errorf("failed to build request: %w", err)}
	}

	start := time.Now()
	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: url, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &Response{
		Status:  resp.StatusCode,
		Latency: latency,
		Body:    body,
		Header:  resp.Header,
	}, nil
}

// ResolveURL joins a relative endpoint onto the configured base URL.
func (e *HTTPExecutor) ResolveURL(endpoint string) string {
	if e.config.BaseURL == "" || strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return strings.TrimRight(e.config.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func (e *HTTPExecutor) buildRequest(ctx context.Context, req *Request, url string) (*http.Request, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, url, body)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range e.config.Headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	return httpReq, nil
}

// Close releases idle connections held by the executor.
func (e *HTTPExecutor) Close() {
	e.client.CloseIdleConnections()
}
