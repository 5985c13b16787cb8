package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wesleyorama2/volley/internal/scenario"
	"github.com/wesleyorama2/volley/internal/transport"
	"github.com/wesleyorama2/volley/pkg/jsonpath"
)

// Assertion types.
const (
	AssertStatus   = "status"
	AssertBody     = "body"
	AssertHeader   = "header"
	AssertDuration = "duration"
	AssertSchema   = "schema"
)

var validConditions = map[string]bool{
	"eq": true, "ne": true, "gt": true, "lt": true,
	"gte": true, "lte": true, "contains": true, "matches": true,
	"exists": true,
}

var conditionSymbols = map[string]string{
	"eq": "==", "ne": "!=", "gt": ">", "lt": "<", "gte": ">=", "lte": "<=",
}

// condition returns the assertion's condition, defaulted per type.
func (a AssertionConfig) condition() string {
	if a.Condition != "" {
		return a.Condition
	}
	switch a.Type {
	case AssertStatus:
		return "eq"
	case AssertDuration:
		return "lt"
	case AssertBody, AssertHeader:
		if a.Value == "" && a.Path != "" {
			return "exists"
		}
		return "contains"
	}
	return ""
}

// Validator converts the assertion into a scenario validator. Values are
// parsed and patterns compiled here, once.
func (a AssertionConfig) Validator() (scenario.Validator, error) {
	switch a.Type {
	case AssertStatus, AssertBody, AssertHeader, AssertDuration, AssertSchema:
	case "":
		return scenario.Validator{}, fmt.Errorf("type is required")
	default:
		return scenario.Validator{}, fmt.Errorf("invalid assertion type: %s", a.Type)
	}

	cond := a.condition()
	if a.Type != AssertSchema && !validConditions[cond] {
		return scenario.Validator{}, fmt.Errorf("invalid condition: %s", a.Condition)
	}

	var (
		v   scenario.Validator
		err error
	)
	switch a.Type {
	case AssertStatus:
		v, err = statusValidator(cond, a.Value)
	case AssertDuration:
		v, err = durationValidator(cond, a.Value)
	case AssertBody:
		v, err = bodyValidator(cond, a.Path, a.Value)
	case AssertHeader:
		v, err = headerValidator(cond, a.Path, a.Value)
	case AssertSchema:
		if a.Value == "" {
			return scenario.Validator{}, fmt.Errorf("schema assertion needs a schema document in value")
		}
		v, err = scenario.MatchesSchema(a.Value)
	}
	if err != nil {
		return scenario.Validator{}, err
	}

	if a.Name != "" {
		v.Name = a.Name
	}
	return v, nil
}

func statusValidator(cond, value string) (scenario.Validator, error) {
	code, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return scenario.Validator{}, fmt.Errorf("status value must be an integer, got %q", value)
	}
	if cond == "eq" {
		return scenario.StatusIs(code), nil
	}
	sym, ok := conditionSymbols[cond]
	if !ok {
		return scenario.Validator{}, fmt.Errorf("condition %s is not valid for status", cond)
	}
	return scenario.Custom(fmt.Sprintf("status %s %d", sym, code), func(resp *transport.Response) bool {
		return compareFloat(cond, float64(resp.Status), float64(code))
	}), nil
}

func durationValidator(cond, value string) (scenario.Validator, error) {
	limit, err := ParseDurationString(value)
	if err != nil || limit <= 0 {
		return scenario.Validator{}, fmt.Errorf("duration value must be a positive duration, got %q", value)
	}
	if cond == "lt" {
		return scenario.LatencyBelow(limit), nil
	}
	sym, ok := conditionSymbols[cond]
	if !ok || cond == "eq" || cond == "ne" {
		return scenario.Validator{}, fmt.Errorf("condition %s is not valid for duration", cond)
	}
	return scenario.Custom(fmt.Sprintf("response time %s %dms", sym, limit.Milliseconds()), func(resp *transport.Response) bool {
		return compareFloat(cond, float64(resp.Latency), float64(limit))
	}), nil
}

func bodyValidator(cond, path, value string) (scenario.Validator, error) {
	if path == "" {
		switch cond {
		case "contains":
			return scenario.BodyContains(value), nil
		case "matches":
			re, err := regexp.Compile(value)
			if err != nil {
				return scenario.Validator{}, fmt.Errorf("invalid pattern: %w", err)
			}
			return scenario.Custom(fmt.Sprintf("body matches %q", value), func(resp *transport.Response) bool {
				return re.Match(resp.Body)
			}), nil
		default:
			return scenario.Validator{}, fmt.Errorf("condition %s on the whole body needs a path", cond)
		}
	}

	switch cond {
	case "exists":
		return scenario.JSONPathExists(path), nil
	case "eq":
		return scenario.JSONPathEquals(path, value), nil
	}
	check, err := valueCheck(cond, value)
	if err != nil {
		return scenario.Validator{}, err
	}
	return scenario.Custom(describe(path, cond, value), func(resp *transport.Response) bool {
		got, err := jsonpath.Extract(resp.Body, path)
		return err == nil && check(got)
	}), nil
}

func headerValidator(cond, name, value string) (scenario.Validator, error) {
	if name == "" {
		return scenario.Validator{}, fmt.Errorf("header assertion needs the header name in path")
	}
	if cond == "exists" {
		return scenario.Custom(fmt.Sprintf("header %s exists", name), func(resp *transport.Response) bool {
			return resp.Header.Get(name) != ""
		}), nil
	}
	check, err := valueCheck(cond, value)
	if err != nil {
		return scenario.Validator{}, err
	}
	return scenario.Custom(describe("header "+name, cond, value), func(resp *transport.Response) bool {
		return resp.Header != nil && check(resp.Header.Get(name))
	}), nil
}

// valueCheck builds a predicate over a string value.
func valueCheck(cond, want string) (func(string) bool, error) {
	switch cond {
	case "eq":
		return func(got string) bool { return got == want }, nil
	case "ne":
		return func(got string) bool { return got != want }, nil
	case "contains":
		return func(got string) bool { return strings.Contains(got, want) }, nil
	case "matches":
		re, err := regexp.Compile(want)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		return re.MatchString, nil
	case "gt", "lt", "gte", "lte":
		n, err := strconv.ParseFloat(want, 64)
		if err != nil {
			return nil, fmt.Errorf("condition %s needs a numeric value, got %q", cond, want)
		}
		return func(got string) bool {
			f, err := strconv.ParseFloat(got, 64)
			return err == nil && compareFloat(cond, f, n)
		}, nil
	}
	return nil, fmt.Errorf("invalid condition: %s", cond)
}

func describe(subject, cond, value string) string {
	if sym, ok := conditionSymbols[cond]; ok {
		return fmt.Sprintf("%s %s %s", subject, sym, value)
	}
	return fmt.Sprintf("%s %s %q", subject, cond, value)
}

func compareFloat(cond string, got, want float64) bool {
	switch cond {
	case "eq":
		return got == want
	case "ne":
		return got != want
	case "gt":
		return got > want
	case "lt":
		return got < want
	case "gte":
		return got >= want
	case "lte":
		return got <= want
	}
	return false
}
