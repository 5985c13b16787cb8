package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wesleyorama2/volley/internal/engine"
	"github.com/wesleyorama2/volley/internal/scheduler"
	"github.com/wesleyorama2/volley/internal/vu"
)

var validMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodPatch: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors. It matches
// engine.ErrConfig under errors.Is.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Is reports whether target is engine.ErrConfig.
func (e *ValidationErrors) Is(target error) bool {
	return target == engine.ErrConfig
}

// Add adds a validation error.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any validation errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the whole file and reports every problem found.
// Returns nil if valid, or a *ValidationErrors.
func (f *File) Validate() error {
	errs := &ValidationErrors{}

	validateSettings(&f.Settings, f.Variables, errs)
	if f.Auth != nil {
		validateAuth(f.Auth, errs)
	}
	validateProfile(&f.Profile, errs)
	if f.Thresholds != nil {
		if err := f.Thresholds.Config().Validate(); err != nil {
			for _, msg := range strings.Split(err.Error(), "\n") {
				errs.Add("thresholds", msg)
			}
		}
	}

	if len(f.Scenarios) == 0 {
		errs.Add("scenarios", "at least one scenario is required")
	}
	names := make(map[string]bool, len(f.Scenarios))
	for i := range f.Scenarios {
		sc := &f.Scenarios[i]
		prefix := fmt.Sprintf("scenarios[%d]", i)
		if sc.Name != "" {
			prefix = fmt.Sprintf("scenarios[%s]", sc.Name)
			if names[sc.Name] {
				errs.Add(prefix+".name", "duplicate scenario name")
			}
			names[sc.Name] = true
		}
		validateScenario(prefix, sc, errs)
	}

	for _, name := range f.ScenarioFilter {
		if !names[name] {
			errs.Add("scenarioFilter", fmt.Sprintf("unknown scenario %q", name))
		}
	}
	if _, err := vu.ParsePolicy(f.Policy); err != nil {
		errs.Add("policy", err.Error())
	}
	if f.PinnedScenario != "" && !names[f.PinnedScenario] {
		errs.Add("pinnedScenario", fmt.Sprintf("unknown scenario %q", f.PinnedScenario))
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// validateSettings checks the base URL as Build will use it, after {{name}}
// substitution.
func validateSettings(s *Settings, vars map[string]string, errs *ValidationErrors) {
	base := ProcessVariables(s.BaseURL, vars)
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		errs.Add("settings.baseUrl", fmt.Sprintf("must start with http:// or https:// (got %q)", base))
	}
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "must be non-negative")
	}
	if s.MaxConnectionsPerHost < 0 {
		errs.Add("settings.maxConnectionsPerHost", "must be non-negative")
	}
	if s.MaxIdleConnsPerHost < 0 {
		errs.Add("settings.maxIdleConnsPerHost", "must be non-negative")
	}
}

func validateAuth(a *AuthConfig, errs *ValidationErrors) {
	if a.URL == "" {
		errs.Add("auth.url", "url is required")
	}
	if a.Username == "" {
		errs.Add("auth.username", "username is required")
	}
}

func validateProfile(p *ProfileConfig, errs *ValidationErrors) {
	if p.MaxRate < 0 {
		errs.Add("profile.maxRate", "must be non-negative")
	}
	if err := p.Profile().Validate(); err != nil {
		var ve *scheduler.ValidationError
		if errors.As(err, &ve) {
			errs.Add("profile."+ve.Field, ve.Message)
			return
		}
		errs.Add("profile", err.Error())
	}
}

func validateScenario(prefix string, sc *ScenarioConfig, errs *ValidationErrors) {
	if sc.Name == "" {
		errs.Add(prefix+".name", "name is required")
	}
	if sc.Endpoint == "" {
		errs.Add(prefix+".endpoint", "endpoint is required")
	}
	if sc.Method == "" {
		errs.Add(prefix+".method", "method is required")
	} else if !validMethods[strings.ToUpper(sc.Method)] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", sc.Method))
	}
	if sc.Retries < 0 {
		errs.Add(prefix+".retries", "must be non-negative")
	}
	if sc.Timeout < 0 || sc.Delay < 0 {
		errs.Add(prefix, "durations must be non-negative")
	}
	if sc.Payload != nil {
		if sc.Payload.Size <= 0 {
			errs.Add(prefix+".payload.size", "must be greater than 0")
		}
		if sc.Body != "" {
			errs.Add(prefix+".payload", "payload and body are mutually exclusive")
		}
	}

	for i := range sc.Assertions {
		if _, err := sc.Assertions[i].Validator(); err != nil {
			errs.Add(fmt.Sprintf("%s.assertions[%d]", prefix, i), err.Error())
		}
	}
}
