// Package config loads run files: a YAML or JSON document describing the
// target, the scenarios, the load profile and the thresholds of a run.
package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// File is the root of a run file.
//
// Example YAML:
//
//	name: "Coffee API"
//	settings:
//	  baseUrl: "https://webservice.toscacloud.com"
//	  timeout: 30s
//	  insecureSkipVerify: true
//	profile:
//	  kind: ramp-up
//	  vus: 10
//	  duration: 1m
//	  rampDuration: 30s
//	thresholds:
//	  http_req_duration: ["p(95)<5000"]
//	  http_req_failed: ["rate<0.05"]
//	scenarios:
//	  - name: "Load Test"
//	    method: GET
//	    endpoint: /api/v1/Coffees
type File struct {
	// Name of the run (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the run (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are substituted for {{name}} in URLs, headers, bodies and
	// credentials
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`

	Profile ProfileConfig `json:"profile" yaml:"profile"`

	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`

	// ScenarioFilter restricts the run to these scenario names
	ScenarioFilter []string `json:"scenarioFilter,omitempty" yaml:"scenarioFilter,omitempty"`

	// Policy is "sequential-cycle" (default) or "single-scenario"
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty"`

	// PinnedScenario is invoked by every VU under single-scenario
	PinnedScenario string `json:"pinnedScenario,omitempty" yaml:"pinnedScenario,omitempty"`

	// Scenarios in registration order
	Scenarios []ScenarioConfig `json:"scenarios" yaml:"scenarios"`
}

// Settings are the HTTP settings shared by every scenario.
type Settings struct {
	// BaseURL is prefixed to relative endpoints
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the default per-call timeout (default 30s)
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`
	MaxIdleConnsPerHost   int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	// UserAgent is the default User-Agent header
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are default headers applied to all requests
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// AuthConfig describes the login call that yields the bearer token.
type AuthConfig struct {
	// URL of the login endpoint, absolute or relative to baseUrl
	URL      string `json:"url" yaml:"url"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`

	// TokenPath locates the token in the login response (default "token")
	TokenPath string `json:"tokenPath,omitempty" yaml:"tokenPath,omitempty"`
}

// ProfileConfig is the load profile.
type ProfileConfig struct {
	// Kind: constant, ramp-up, spike, soak or endurance
	Kind string `json:"kind" yaml:"kind"`

	// VUs is the target number of virtual users
	VUs int `json:"vus" yaml:"vus"`

	Duration     Duration      `json:"duration,omitempty" yaml:"duration,omitempty"`
	RampDuration Duration      `json:"rampDuration,omitempty" yaml:"rampDuration,omitempty"`
	Stages       []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`

	BaselineVUs   int      `json:"baselineVUs,omitempty" yaml:"baselineVUs,omitempty"`
	SpikeStart    Duration `json:"spikeStart,omitempty" yaml:"spikeStart,omitempty"`
	SpikeDuration Duration `json:"spikeDuration,omitempty" yaml:"spikeDuration,omitempty"`

	// Iterations caps the calls per VU
	Iterations int `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// GracefulStop bounds how long the run waits for in-flight calls
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// MaxRate caps calls per second across all VUs
	MaxRate float64 `json:"maxRate,omitempty" yaml:"maxRate,omitempty"`
}

// StageConfig defines a single stage in a ramp-up profile.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// ScenarioConfig defines a single scenario.
type ScenarioConfig struct {
	Name     string `json:"name" yaml:"name"`
	Method   string `json:"method" yaml:"method"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is sent verbatim (supports variable substitution)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Payload generates a random JSON body instead of Body
	Payload *PayloadConfig `json:"payload,omitempty" yaml:"payload,omitempty"`

	Timeout       Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries       int      `json:"retries,omitempty" yaml:"retries,omitempty"`
	Delay         Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
	SimulateDelay bool     `json:"simulateDelay,omitempty" yaml:"simulateDelay,omitempty"`
	RequiresAuth  bool     `json:"requiresAuth,omitempty" yaml:"requiresAuth,omitempty"`

	// Assertions validate the response. Without any, the default checks
	// (status 200, response time under 3s) apply.
	Assertions []AssertionConfig `json:"assertions,omitempty" yaml:"assertions,omitempty"`
}

// PayloadConfig asks for a generated body.
type PayloadConfig struct {
	Size int    `json:"size" yaml:"size"`
	Kind string `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// AssertionConfig defines a response validation.
type AssertionConfig struct {
	// Type is the assertion type: "status", "body", "header", "duration", "schema"
	Type string `json:"type" yaml:"type"`

	// Condition is the comparison: "eq", "ne", "gt", "lt", "gte", "lte",
	// "contains", "matches", "exists"
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// Value is the expected value (a JSON schema document for "schema")
	Value string `json:"value,omitempty" yaml:"value,omitempty"`

	// Path is a JSONPath for body assertions, or a header name
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Name overrides the generated check name in reports
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// ThresholdsConfig defines pass/fail criteria for the run.
type ThresholdsConfig struct {
	MaxP95Latency Duration `json:"maxP95Latency,omitempty" yaml:"maxP95Latency,omitempty"`
	MaxErrorRate  float64  `json:"maxErrorRate,omitempty" yaml:"maxErrorRate,omitempty"`

	// HTTPReqDuration thresholds for request duration
	// e.g., ["p95 < 500ms", "p(95)<5000"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// HTTPReqFailed thresholds for failure rate
	// e.g., ["rate < 0.01"]
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// HTTPReqs thresholds for request count/rate
	// e.g., ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML
// strings ("30s", "2m") or bare numbers of seconds.
type Duration time.Duration

// ParseDurationString parses Go duration syntax, bare seconds ("30") and
// spelled-out units ("2 minutes"). The empty string is zero.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	s = strings.ReplaceAll(strings.ToLower(s), " ", "")
	for _, r := range []struct{ word, abbrev string }{
		{"seconds", "s"}, {"second", "s"},
		{"minutes", "m"}, {"minute", "m"},
		{"hours", "h"}, {"hour", "h"},
	} {
		s = strings.ReplaceAll(s, r.word, r.abbrev)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("invalid duration %s", b)
		}
		s = n.String()
	}
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	dur, err := ParseDurationString(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(dur)
	return nil
}
