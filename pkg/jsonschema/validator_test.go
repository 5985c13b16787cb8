package jsonschema

import (
	"errors"
	"strings"
	"testing"
)

const coffeeSchema = `{
	"type": "object",
	"properties": {
		"name": { "type": "string" },
		"price": { "type": "number", "minimum": 0 }
	},
	"required": ["name"]
}`

func TestSchema_Validate(t *testing.T) {
	schema, err := Compile(coffeeSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"valid", `{"name": "Latte", "price": 3.5}`, false},
		{"missing required", `{"price": 3.5}`, true},
		{"wrong type", `{"name": 7}`, true},
		{"below minimum", `{"name": "Latte", "price": -1}`, true},
		{"not json", `<html>`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate(%s) error = %v, wantErr %v", tt.doc, err, tt.wantErr)
			}
		})
	}
}

func TestSchema_ValidateReportsLocations(t *testing.T) {
	schema, err := Compile(coffeeSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	err = schema.Validate([]byte(`{"name": 1, "price": -2}`))
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Validate() error = %T, want ValidationErrors", err)
	}
	msg := verrs.Error()
	if !strings.Contains(msg, "/name") || !strings.Contains(msg, "/price") {
		t.Errorf("Validate() error = %q, want locations /name and /price", msg)
	}
}

func TestCompile_InvalidSchema(t *testing.T) {
	if _, err := Compile(`{"type": 12}`); err == nil {
		t.Error("Compile() expected error for invalid schema")
	}
	if _, err := Compile(`not json`); err == nil {
		t.Error("Compile() expected error for malformed schema")
	}
}
