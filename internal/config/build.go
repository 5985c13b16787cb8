package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/engine"
	"github.com/wesleyorama2/volley/internal/scenario"
	"github.com/wesleyorama2/volley/internal/scheduler"
	"github.com/wesleyorama2/volley/internal/threshold"
	"github.com/wesleyorama2/volley/internal/transport"
	"github.com/wesleyorama2/volley/internal/vu"
)

// Overrides replace profile settings from the command line. Zero values
// leave the file's setting alone.
type Overrides struct {
	Kind       string
	VUs        int
	Duration   time.Duration
	Iterations int
	Stages     []StageConfig
	MaxRate    float64
}

// Apply writes the non-zero overrides into f.
func (o Overrides) Apply(f *File) {
	if o.Kind != "" {
		f.Profile.Kind = o.Kind
	}
	if o.VUs > 0 {
		f.Profile.VUs = o.VUs
	}
	if o.Duration > 0 {
		f.Profile.Duration = Duration(o.Duration)
	}
	if o.Iterations > 0 {
		f.Profile.Iterations = o.Iterations
	}
	if len(o.Stages) > 0 {
		f.Profile.Stages = o.Stages
	}
	if o.MaxRate > 0 {
		f.Profile.MaxRate = o.MaxRate
	}
}

// ParseStages parses stages in the form "30s:10,2m:10,30s:0".
func ParseStages(stagesStr string) ([]StageConfig, error) {
	var stages []StageConfig

	for i, part := range strings.Split(stagesStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}

		d, err := ParseDurationString(part[:colonIdx])
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		target, err := strconv.Atoi(part[colonIdx+1:])
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, part[colonIdx+1:], err)
		}

		stages = append(stages, StageConfig{
			Duration: Duration(d),
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	return stages, nil
}

// Plan is a validated run file turned into the values the engine and the
// transport take.
type Plan struct {
	Name        string
	Description string

	HTTP transport.HTTPConfig

	// Auth is nil when the file has no auth section
	Auth *AuthPlan

	// Scenarios in registration order
	Scenarios []scenario.Definition

	Run engine.RunConfig
}

// AuthPlan is the resolved login call.
type AuthPlan struct {
	URL         string
	TokenPath   string
	Credentials transport.Credentials
}

// Build converts f into a Plan. {{name}} variables are substituted in URLs,
// headers, bodies and credentials. f must have passed Validate.
func (f *File) Build() (*Plan, error) {
	vars := f.Variables
	sub := func(s string) string { return ProcessVariables(s, vars) }

	p := &Plan{
		Name:        f.Name,
		Description: f.Description,
		HTTP:        f.Settings.httpConfig(vars),
	}

	if f.Auth != nil {
		p.Auth = &AuthPlan{
			URL:       sub(f.Auth.URL),
			TokenPath: f.Auth.TokenPath,
			Credentials: transport.Credentials{
				Username: sub(f.Auth.Username),
				Password: sub(f.Auth.Password),
			},
		}
	}

	for i := range f.Scenarios {
		def, err := f.Scenarios[i].definition(vars)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", f.Scenarios[i].Name, err)
		}
		p.Scenarios = append(p.Scenarios, def)
	}

	policy, err := vu.ParsePolicy(f.Policy)
	if err != nil {
		return nil, err
	}
	p.Run = engine.RunConfig{
		Name:           f.Name,
		Profile:        f.Profile.Profile(),
		ScenarioFilter: f.ScenarioFilter,
		Policy:         policy,
		PinnedScenario: f.PinnedScenario,
		MaxRate:        f.Profile.MaxRate,
	}
	if f.Thresholds != nil {
		p.Run.Thresholds = f.Thresholds.Config()
	}
	return p, nil
}

// Authenticator returns a token authenticator posting through exec, or nil
// when the plan has no auth section.
func (p *Plan) Authenticator(exec transport.Executor) transport.Authenticator {
	if p.Auth == nil {
		return nil
	}
	a := transport.NewTokenAuthenticator(p.Auth.URL, exec)
	if p.Auth.TokenPath != "" {
		a.TokenPath = p.Auth.TokenPath
	}
	return a
}

// Credentials returns the login credentials, if any.
func (p *Plan) Credentials() transport.Credentials {
	if p.Auth == nil {
		return transport.Credentials{}
	}
	return p.Auth.Credentials
}

// Register adds the plan's scenarios to e in order.
func (p *Plan) Register(e *engine.Engine) error {
	for _, def := range p.Scenarios {
		if err := e.RegisterScenario(def); err != nil {
			return fmt.Errorf("%w: %w", engine.ErrConfig, err)
		}
	}
	return nil
}

func (s Settings) httpConfig(vars map[string]string) transport.HTTPConfig {
	cfg := transport.DefaultHTTPConfig()
	cfg.BaseURL = ProcessVariables(s.BaseURL, vars)
	if s.Timeout > 0 {
		cfg.Timeout = s.Timeout.Std()
	}
	cfg.InsecureSkipVerify = s.InsecureSkipVerify
	if s.MaxConnectionsPerHost > 0 {
		cfg.MaxConnsPerHost = s.MaxConnectionsPerHost
	}
	if s.MaxIdleConnsPerHost > 0 {
		cfg.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	}

	cfg.Headers = ProcessVariablesInMap(s.Headers, vars)
	if s.UserAgent != "" {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string, 1)
		}
		cfg.Headers["User-Agent"] = s.UserAgent
	}
	return cfg
}

// Profile converts the profile section into a scheduler profile.
func (p ProfileConfig) Profile() scheduler.Profile {
	prof := scheduler.Profile{
		Kind:          scheduler.Kind(p.Kind),
		TargetVUs:     p.VUs,
		Duration:      p.Duration.Std(),
		RampDuration:  p.RampDuration.Std(),
		BaselineVUs:   p.BaselineVUs,
		SpikeStart:    p.SpikeStart.Std(),
		SpikeDuration: p.SpikeDuration.Std(),
		Iterations:    p.Iterations,
		GracefulStop:  p.GracefulStop.Std(),
	}
	for _, s := range p.Stages {
		prof.Stages = append(prof.Stages, scheduler.Stage{
			Duration: s.Duration.Std(),
			Target:   s.Target,
			Name:     s.Name,
		})
	}
	return prof
}

// Config converts the thresholds section.
func (t *ThresholdsConfig) Config() threshold.Config {
	return threshold.Config{
		MaxP95Latency: t.MaxP95Latency.Std(),
		MaxErrorRate:  t.MaxErrorRate,
		Duration:      t.HTTPReqDuration,
		Failed:        t.HTTPReqFailed,
		Requests:      t.HTTPReqs,
	}
}

func (sc *ScenarioConfig) definition(vars map[string]string) (scenario.Definition, error) {
	def := scenario.Definition{
		Name:     sc.Name,
		Endpoint: ProcessVariables(sc.Endpoint, vars),
		Method:   strings.ToUpper(sc.Method),
		Options: scenario.Options{
			Headers:       ProcessVariablesInMap(sc.Headers, vars),
			Timeout:       sc.Timeout.Std(),
			Retries:       sc.Retries,
			Delay:         sc.Delay.Std(),
			SimulateDelay: sc.SimulateDelay,
			RequiresAuth:  sc.RequiresAuth,
		},
	}
	if sc.Body != "" {
		def.Body = []byte(ProcessVariables(sc.Body, vars))
	}
	if sc.Payload != nil {
		def.PayloadSizeHint = sc.Payload.Size
		def.PayloadKind = sc.Payload.Kind
	}

	if len(sc.Assertions) == 0 {
		def.Validators = scenario.DefaultValidators()
		return def, nil
	}
	for i, a := range sc.Assertions {
		v, err := a.Validator()
		if err != nil {
			return scenario.Definition{}, fmt.Errorf("assertions[%d]: %w", i, err)
		}
		def.Validators = append(def.Validators, v)
	}
	return def, nil
}
