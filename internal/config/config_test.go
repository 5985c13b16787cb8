package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/volley/internal/engine"
	"github.com/wesleyorama2/volley/internal/scenario"
	"github.com/wesleyorama2/volley/internal/scheduler"
	"github.com/wesleyorama2/volley/internal/transport"
	"github.com/wesleyorama2/volley/internal/vu"
)

const coffeeYAML = `
name: Coffee API
settings:
  baseUrl: "https://{{host}}"
  timeout: 10
  insecureSkipVerify: true
  userAgent: volley/test
  headers:
    X-Env: "{{env}}"
variables:
  host: example.test
  env: staging
auth:
  url: /api/v1/Login
  username: "${VOLLEY_TEST_USER}"
  password: secret
  tokenPath: $.data.token
profile:
  kind: ramp-up
  vus: 10
  duration: 1m
  rampDuration: 30 seconds
  maxRate: 50
thresholds:
  maxErrorRate: 0.05
  http_req_duration: ["p(95)<5000"]
scenarios:
  - name: Load Test
    method: get
    endpoint: /api/v1/Coffees
  - name: Large Payload Test
    method: POST
    endpoint: /api/v1/Coffees
    requiresAuth: true
    retries: 2
    payload:
      size: 10000
      kind: large
    assertions:
      - type: status
        value: "201"
      - type: body
        path: $.id
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validatorNames(vs []scenario.Validator) []string {
	names := make([]string, len(vs))
	for i, v := range vs {
		names[i] = v.Name
	}
	return names
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("VOLLEY_TEST_USER", "alice")
	f, err := Load(writeFile(t, "coffee.yaml", coffeeYAML))
	require.NoError(t, err)

	assert.Equal(t, "Coffee API", f.Name)
	assert.Equal(t, 10*time.Second, f.Settings.Timeout.Std())
	assert.Equal(t, "alice", f.Auth.Username)
	assert.Equal(t, 30*time.Second, f.Profile.RampDuration.Std())
	require.Len(t, f.Scenarios, 2)
	assert.Equal(t, "Load Test", f.Scenarios[0].Name)
}

func TestBuild(t *testing.T) {
	t.Setenv("VOLLEY_TEST_USER", "alice")
	f, err := Load(writeFile(t, "coffee.yml", coffeeYAML))
	require.NoError(t, err)

	p, err := f.Build()
	require.NoError(t, err)

	assert.Equal(t, "https://example.test", p.HTTP.BaseURL)
	assert.Equal(t, 10*time.Second, p.HTTP.Timeout)
	assert.True(t, p.HTTP.InsecureSkipVerify)
	assert.Equal(t, "staging", p.HTTP.Headers["X-Env"])
	assert.Equal(t, "volley/test", p.HTTP.Headers["User-Agent"])

	require.NotNil(t, p.Auth)
	assert.Equal(t, "/api/v1/Login", p.Auth.URL)
	assert.Equal(t, transport.Credentials{Username: "alice", Password: "secret"}, p.Credentials())

	require.Len(t, p.Scenarios, 2)
	load, large := p.Scenarios[0], p.Scenarios[1]
	assert.Equal(t, "GET", load.Method)
	assert.Equal(t, []string{"status is 200", "response time < 3000ms"}, validatorNames(load.Validators))
	assert.Equal(t, 10000, large.PayloadSizeHint)
	assert.Equal(t, "large", large.PayloadKind)
	assert.True(t, large.Options.RequiresAuth)
	assert.Equal(t, 2, large.Options.Retries)
	assert.Equal(t, []string{"status is 201", "$.id exists"}, validatorNames(large.Validators))

	assert.Equal(t, "Coffee API", p.Run.Name)
	assert.Equal(t, scheduler.RampUp, p.Run.Profile.Kind)
	assert.Equal(t, 10, p.Run.Profile.TargetVUs)
	assert.Equal(t, time.Minute, p.Run.Profile.Duration)
	assert.Equal(t, vu.SequentialCycle, p.Run.Policy)
	assert.Equal(t, 50.0, p.Run.MaxRate)
	assert.Equal(t, 0.05, p.Run.Thresholds.MaxErrorRate)
	assert.Equal(t, []string{"p(95)<5000"}, p.Run.Thresholds.Duration)
}

func TestPlan_Authenticator(t *testing.T) {
	exec := transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: 200, Body: []byte(`{"data":{"token":"abc"}}`)}, nil
	})

	p := &Plan{Auth: &AuthPlan{URL: "/login", TokenPath: "$.data.token"}}
	auth := p.Authenticator(exec)
	require.NotNil(t, auth)
	token, err := auth.Authenticate(context.Background(), p.Credentials())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	assert.Nil(t, (&Plan{}).Authenticator(exec))
}

func TestPlan_Register(t *testing.T) {
	f, err := Parse([]byte(coffeeYAML), YAML)
	require.NoError(t, err)
	p, err := f.Build()
	require.NoError(t, err)

	e, err := engine.New(engine.Options{Executor: transport.ExecutorFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		return &transport.Response{Status: 200}, nil
	})})
	require.NoError(t, err)

	require.NoError(t, p.Register(e))
	assert.Equal(t, []string{"Load Test", "Large Payload Test"}, e.Registry().Names())

	err = p.Register(e)
	assert.True(t, errors.Is(err, engine.ErrConfig), "duplicate registration should be a config error, got %v", err)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "smoke.json", `{
  "profile": {"kind": "constant", "vus": 2, "duration": 30},
  "scenarios": [{"name": "ping", "method": "GET", "endpoint": "/ping"}]
}`)

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "smoke", f.Name, "name defaults to the file name")
	assert.Equal(t, 30*time.Second, f.Profile.Duration.Std())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "config file not found")

	_, err = Load(writeFile(t, "empty.yaml", ""))
	assert.ErrorContains(t, err, "empty document")

	_, err = Load(writeFile(t, "typo.yaml", "profile:\n  kind: constant\n  vuz: 3\n"))
	assert.ErrorContains(t, err, "vuz")

	_, err = Load(writeFile(t, "typo.json", `{"profile": {"vuz": 3}}`))
	assert.ErrorContains(t, err, "vuz")
}

func TestLoadWithOverrides(t *testing.T) {
	path := writeFile(t, "partial.yaml", `
profile:
  kind: constant
scenarios:
  - name: ping
    method: GET
    endpoint: /ping
`)

	_, err := Load(path)
	require.Error(t, err, "no duration and no iterations")

	f, err := LoadWithOverrides(path, Overrides{Kind: "soak", VUs: 3, Duration: 2 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "soak", f.Profile.Kind)
	assert.Equal(t, 3, f.Profile.VUs)
	assert.Equal(t, 2*time.Minute, f.Profile.Duration.Std())
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	f := &File{
		Settings: Settings{BaseURL: "ftp://nope"},
		Auth:     &AuthConfig{},
		Profile:  ProfileConfig{Kind: "wave", VUs: 1, Duration: Duration(time.Minute), MaxRate: -5},
		Thresholds: &ThresholdsConfig{
			HTTPReqFailed: []string{"p95 < 1"},
		},
		ScenarioFilter: []string{"ghost"},
		Policy:         "random",
		PinnedScenario: "ghost",
		Scenarios: []ScenarioConfig{
			{Name: "a", Method: "FETCH", Endpoint: "/a"},
			{Name: "a", Method: "GET"},
			{Method: "GET", Endpoint: "/b", Assertions: []AssertionConfig{{Type: "colour"}}},
		},
	}

	err := f.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrConfig))

	var ve *ValidationErrors
	require.True(t, errors.As(err, &ve))

	fields := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		fields[i] = e.Field
	}
	for _, want := range []string{
		"settings.baseUrl",
		"auth.url",
		"auth.username",
		"profile.maxRate",
		"profile.kind",
		"thresholds",
		"scenarios[a].method",
		"scenarios[a].name",
		"scenarios[a].endpoint",
		"scenarios[2].name",
		"scenarios[2].assertions[0]",
		"scenarioFilter",
		"policy",
		"pinnedScenario",
	} {
		assert.Contains(t, fields, want)
	}
	assert.Len(t, ve.Errors, 14)
	assert.True(t, strings.HasPrefix(err.Error(), "14 validation errors:\n  1. "))
}

func TestValidate_Minimal(t *testing.T) {
	f := &File{
		Profile:   ProfileConfig{Kind: "constant", VUs: 1, Iterations: 1},
		Scenarios: []ScenarioConfig{{Name: "ping", Method: "GET", Endpoint: "/ping"}},
	}
	assert.NoError(t, f.Validate())
}

func TestValidate_BaseURLAfterVariables(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		vars    map[string]string
		wantErr bool
	}{
		{"whole url from variable", "{{base}}", map[string]string{"base": "http://127.0.0.1:8080"}, false},
		{"host from variable", "https://{{host}}", map[string]string{"host": "api.test"}, false},
		{"variable resolves to bad scheme", "{{base}}", map[string]string{"base": "ftp://files"}, true},
		{"undefined variable", "{{base}}", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &File{
				Settings:  Settings{BaseURL: tt.baseURL},
				Variables: tt.vars,
				Profile:   ProfileConfig{Kind: "constant", VUs: 1, Iterations: 1},
				Scenarios: []ScenarioConfig{{Name: "ping", Method: "GET", Endpoint: "/ping"}},
			}
			err := f.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "settings.baseUrl")
				return
			}
			require.NoError(t, err)

			plan, err := f.Build()
			require.NoError(t, err)
			assert.Equal(t, ProcessVariables(tt.baseURL, tt.vars), plan.HTTP.BaseURL)
		})
	}
}

func TestValidate_PayloadAndBody(t *testing.T) {
	f := &File{
		Profile: ProfileConfig{Kind: "constant", VUs: 1, Iterations: 1},
		Scenarios: []ScenarioConfig{{
			Name: "post", Method: "POST", Endpoint: "/p",
			Body:    `{"a":1}`,
			Payload: &PayloadConfig{Size: 0},
		}},
	}
	err := f.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios[post].payload.size")
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"30", 30 * time.Second, false},
		{"30s", 30 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"2 minutes", 2 * time.Minute, false},
		{"1 hour", time.Hour, false},
		{"10 seconds", 10 * time.Second, false},
		{"", 0, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDurationString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDurationString(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDurationString(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("VOLLEY_HOST", "api.test")
	got := ExpandEnv(`https://${VOLLEY_HOST}/x?price=$5 ${VOLLEY_UNSET_VAR}`)
	assert.Equal(t, "https://api.test/x?price=$5 ", got)
}

func TestParse_EnvValuesAreNotReparsed(t *testing.T) {
	const doc = `
name: Env
auth:
  url: /login
  username: "${VOLLEY_TEST_USER}"
  password: "${VOLLEY_TEST_PW}"
profile:
  kind: constant
  vus: 1
  duration: 1s
scenarios:
  - name: a
    method: GET
    endpoint: /a
    headers:
      X-Note: ${VOLLEY_TEST_NOTE}
`
	tests := []struct {
		name string
		pw   string
		note string
	}{
		{"yaml comment marker", "s3cret #1", "plain"},
		{"quotes", `"quoted"x`, `it's "fine"`},
		{"newline with a key", "pw\nusername: mallory", "a: b"},
		{"flow syntax", "{[,]}", "- item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VOLLEY_TEST_USER", "alice")
			t.Setenv("VOLLEY_TEST_PW", tt.pw)
			t.Setenv("VOLLEY_TEST_NOTE", tt.note)

			f, err := Parse([]byte(doc), YAML)
			require.NoError(t, err)
			assert.Equal(t, "alice", f.Auth.Username)
			assert.Equal(t, tt.pw, f.Auth.Password)
			assert.Equal(t, tt.note, f.Scenarios[0].Headers["X-Note"])
		})
	}

	t.Run("json", func(t *testing.T) {
		t.Setenv("VOLLEY_TEST_PW", `a"b\c`)
		f, err := Parse([]byte(`{"name":"Env","auth":{"url":"/login","username":"u","password":"${VOLLEY_TEST_PW}"},"profile":{"kind":"constant","vus":1},"scenarios":[]}`), JSON)
		require.NoError(t, err)
		assert.Equal(t, `a"b\c`, f.Auth.Password)
	})
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages("30s:10, 2m:10,30s:0")
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, 2*time.Minute, stages[1].Duration.Std())
	assert.Equal(t, 0, stages[2].Target)
	assert.Equal(t, "stage-1", stages[0].Name)

	for _, bad := range []string{"", "30s", "fast:10", "30s:many"} {
		_, err := ParseStages(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoad_ExampleRunFile(t *testing.T) {
	t.Setenv("COFFEE_PASSWORD", "secret")
	f, err := Load(filepath.Join("..", "..", "examples", "coffee.yaml"))
	require.NoError(t, err)

	p, err := f.Build()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", p.HTTP.BaseURL)
	assert.Equal(t, "secret", p.Credentials().Password)
	assert.Equal(t, 105*time.Second, p.Run.Profile.TotalDuration())
	assert.Equal(t, 10, p.Run.Profile.Peak())
	require.Len(t, p.Scenarios, 2)
	assert.Len(t, p.Scenarios[0].Validators, 3)
	assert.True(t, p.Scenarios[1].Options.RequiresAuth)
}
