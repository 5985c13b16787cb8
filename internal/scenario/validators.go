package scenario

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wesleyorama2/volley/internal/transport"
	"github.com/wesleyorama2/volley/pkg/jsonpath"
	"github.com/wesleyorama2/volley/pkg/jsonschema"
)

// Validator is a named predicate over a response. Validators must not
// retain or modify the response.
type Validator struct {
	Name  string
	Check func(resp *transport.Response) bool
}

// Custom wraps an arbitrary predicate.
func Custom(name string, check func(resp *transport.Response) bool) Validator {
	return Validator{Name: name, Check: check}
}

// StatusIs passes when the response status equals code.
func StatusIs(code int) Validator {
	return Validator{
		Name:  fmt.Sprintf("status is %d", code),
		Check: func(resp *transport.Response) bool { return resp.Status == code },
	}
}

// StatusIn passes when the response status is any of codes.
func StatusIn(codes ...int) Validator {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = fmt.Sprint(c)
	}
	return Validator{
		Name:  fmt.Sprintf("status in [%s]", strings.Join(parts, ", ")),
		Check: func(resp *transport.Response) bool { return slices.Contains(codes, resp.Status) },
	}
}

// LatencyBelow passes when the call completed in strictly less than max.
func LatencyBelow(max time.Duration) Validator {
	return Validator{
		Name:  fmt.Sprintf("response time < %dms", max.Milliseconds()),
		Check: func(resp *transport.Response) bool { return resp.Latency < max },
	}
}

// BodyContains passes when the body contains substr.
func BodyContains(substr string) Validator {
	return Validator{
		Name:  fmt.Sprintf("body contains %q", substr),
		Check: func(resp *transport.Response) bool { return strings.Contains(string(resp.Body), substr) },
	}
}

// JSONPathExists passes when path resolves in a JSON body.
func JSONPathExists(path string) Validator {
	return Validator{
		Name: fmt.Sprintf("%s exists", path),
		Check: func(resp *transport.Response) bool {
			_, err := jsonpath.Lookup(resp.Body, path)
			return err == nil
		},
	}
}

// JSONPathEquals passes when path resolves to want, compared as strings.
func JSONPathEquals(path, want string) Validator {
	return Validator{
		Name: fmt.Sprintf("%s == %s", path, want),
		Check: func(resp *transport.Response) bool {
			got, err := jsonpath.Extract(resp.Body, path)
			return err == nil && got == want
		},
	}
}

// MatchesSchema passes when the body validates against schema. The schema
// is compiled once, here.
func MatchesSchema(schema string) (Validator, error) {
	compiled, err := jsonschema.Compile(schema)
	if err != nil {
		return Validator{}, err
	}
	return Validator{
		Name:  "body matches schema",
		Check: func(resp *transport.Response) bool { return compiled.Validate(resp.Body) == nil },
	}, nil
}

// DefaultValidators are applied to scenarios that declare none: the call
// must return 200 in under three seconds.
func DefaultValidators() []Validator {
	return []Validator{
		StatusIs(200),
		LatencyBelow(3 * time.Second),
	}
}
