package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is the encoding of a run file.
type Format string

const (
	YAML Format = "yaml"
	JSON Format = "json"
)

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// FormatFor picks the format from a file extension. Anything that is not
// .json is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return YAML
}

// Load reads, parses and validates a run file.
func Load(path string) (*File, error) {
	return LoadWithOverrides(path, Overrides{})
}

// LoadWithOverrides is Load with command-line overrides applied before
// validation.
func LoadWithOverrides(path string, ov Overrides) (*File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	f, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	ov.Apply(f)

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Parse decodes a run file. Unknown fields are rejected. After decoding,
// ${NAME} references in string values are replaced with the environment
// variable of that name; the value is never re-parsed, so it may contain
// any characters. Parse does not validate.
func Parse(data []byte, format Format) (*File, error) {
	var f File
	switch format {
	case JSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, err
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("empty document")
			}
			return nil, err
		}
	}
	f.expandEnv()
	return &f, nil
}

// ExpandEnv replaces ${NAME} with the value of the environment variable
// NAME. Unset variables expand to the empty string. A bare $NAME is left
// alone so bodies may contain dollar signs.
func ExpandEnv(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return envPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(envPattern.FindStringSubmatch(m)[1])
	})
}

func expandEnvInMap(m map[string]string) {
	for k, v := range m {
		m[k] = ExpandEnv(v)
	}
}

// expandEnv applies ExpandEnv to the free-text string fields: names, URLs,
// headers, variables, credentials, bodies and assertion operands. Numbers,
// durations and enumerations are not expanded.
func (f *File) expandEnv() {
	f.Name = ExpandEnv(f.Name)
	f.Description = ExpandEnv(f.Description)

	f.Settings.BaseURL = ExpandEnv(f.Settings.BaseURL)
	f.Settings.UserAgent = ExpandEnv(f.Settings.UserAgent)
	expandEnvInMap(f.Settings.Headers)
	expandEnvInMap(f.Variables)

	if a := f.Auth; a != nil {
		a.URL = ExpandEnv(a.URL)
		a.Username = ExpandEnv(a.Username)
		a.Password = ExpandEnv(a.Password)
		a.TokenPath = ExpandEnv(a.TokenPath)
	}

	for i := range f.Scenarios {
		sc := &f.Scenarios[i]
		sc.Endpoint = ExpandEnv(sc.Endpoint)
		sc.Body = ExpandEnv(sc.Body)
		expandEnvInMap(sc.Headers)
		for j := range sc.Assertions {
			as := &sc.Assertions[j]
			as.Value = ExpandEnv(as.Value)
			as.Path = ExpandEnv(as.Path)
		}
	}
}

// ProcessVariables replaces {{key}} placeholders with their values.
func ProcessVariables(input string, vars map[string]string) string {
	result := input
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

// ProcessVariablesInMap applies ProcessVariables to every value of input.
func ProcessVariablesInMap(input, vars map[string]string) map[string]string {
	if input == nil {
		return nil
	}
	result := make(map[string]string, len(input))
	for key, value := range input {
		result[key] = ProcessVariables(value, vars)
	}
	return result
}
