// Package scenario holds the declarative description of what a virtual user
// invokes and the registry that keeps those descriptions in order.
package scenario

import (
	"maps"
	"time"

	"github.com/wesleyorama2/volley/internal/transport"
)

// Definition describes one kind of call a virtual user can make.
//
// A Definition is immutable once registered and is shared read-only by every
// virtual user of a run.
type Definition struct {
	// Name is unique within a registry and labels the report group
	Name string `json:"name" yaml:"name"`

	// Endpoint is resolved against the executor's base URL
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// HTTP method
	Method string `json:"method" yaml:"method"`

	// PayloadSizeHint asks the payload generator for a body of this many
	// random characters. Zero means no generated body.
	PayloadSizeHint int `json:"payloadSizeHint,omitempty" yaml:"payloadSizeHint,omitempty"`

	// PayloadKind labels generated payloads (small, large, soak, ...)
	PayloadKind string `json:"payloadKind,omitempty" yaml:"payloadKind,omitempty"`

	// Body is sent verbatim when no payload is generated
	Body []byte `json:"-" yaml:"-"`

	// Validators are evaluated in order; a call succeeds only if all pass
	Validators []Validator `json:"-" yaml:"-"`

	Options Options `json:"options" yaml:"options"`
}

// Options tune how a scenario is invoked.
type Options struct {
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Timeout for a single call; zero uses the executor default
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Retries on transport failure (not on validation failure)
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty"`

	// Delay is the pause a virtual user takes after each call
	Delay time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`

	// SimulateDelay stretches the post-call pause to mimic a slow client.
	// When Delay is zero, DefaultSimulatedDelay is used.
	SimulateDelay bool `json:"simulateDelay,omitempty" yaml:"simulateDelay,omitempty"`

	// RequiresAuth attaches the run's bearer token to each call
	RequiresAuth bool `json:"requiresAuth,omitempty" yaml:"requiresAuth,omitempty"`
}

// DefaultSimulatedDelay is the pause used for SimulateDelay scenarios that
// set no explicit Delay.
const DefaultSimulatedDelay = time.Second

// Pause returns how long a virtual user waits after invoking d.
func (d *Definition) Pause() time.Duration {
	if d.Options.SimulateDelay && d.Options.Delay <= 0 {
		return DefaultSimulatedDelay
	}
	return d.Options.Delay
}

// Request builds the transport request for one invocation. Headers are
// copied so callers may add to them.
func (d *Definition) Request(body []byte) *transport.Request {
	if body == nil && len(d.Body) > 0 {
		body = d.Body
	}
	return &transport.Request{
		Method:  d.Method,
		URL:     d.Endpoint,
		Headers: maps.Clone(d.Options.Headers),
		Body:    body,
		Timeout: d.Options.Timeout,
	}
}

func (d *Definition) clone() *Definition {
	c := *d
	c.Options.Headers = maps.Clone(d.Options.Headers)
	c.Validators = append([]Validator(nil), d.Validators...)
	if d.Body != nil {
		c.Body = append([]byte(nil), d.Body...)
	}
	return &c
}
