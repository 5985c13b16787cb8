// Package jsonpath resolves JSONPath-style expressions ($.a.b[0]) and plain
// gjson paths against raw JSON documents.
package jsonpath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrEmptyDocument is returned when the input has no content.
	ErrEmptyDocument = errors.New("empty JSON document")

	// ErrEmptyPath is returned for an empty expression.
	ErrEmptyPath = errors.New("empty JSONPath expression")
)

// Lookup resolves path in doc. Missing values are reported as an error
// naming the original expression.
func Lookup(doc []byte, path string) (gjson.Result, error) {
	if len(doc) == 0 {
		return gjson.Result{}, ErrEmptyDocument
	}
	if path == "" {
		return gjson.Result{}, ErrEmptyPath
	}

	result := gjson.GetBytes(doc, ToGjson(path))
	if !result.Exists() {
		return result, fmt.Errorf("path not found: %s", path)
	}
	return result, nil
}

// Extract resolves path in doc and returns the value as a string. JSON null
// is returned as "null".
func Extract(doc []byte, path string) (string, error) {
	result, err := Lookup(doc, path)
	if err != nil {
		return "", err
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}

// ToGjson converts a JSONPath expression to gjson syntax:
//
//	$.users[0].name  ->  users.0.name
//	$['name']        ->  name
//
// Expressions without a leading $ are assumed to already be gjson paths.
func ToGjson(path string) string {
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	replacer := strings.NewReplacer("['", ".", "']", "", `["`, ".", `"]`, "", "[", ".", "]", "")
	path = replacer.Replace(path)

	return strings.TrimPrefix(path, ".")
}
