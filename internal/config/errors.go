package config

import (
	"fmt"
	"strings"
)

// Field names a configuration field and the variable that sets it.
type Field struct {
	Name   string
	EnvVar string
}

func (f Field) String() string {
	return fmt.Sprintf("%s (%s)", f.Name, f.EnvVar)
}

// Configuration fields referenced by validation errors.
var (
	FieldAPIURL      = Field{Name: "api url", EnvVar: EnvAPIURL}
	FieldRuntimeKey  = Field{Name: "runtime key", EnvVar: EnvRuntimeKey}
	FieldProject     = Field{Name: "project", EnvVar: EnvProject}
	FieldEnvironment = Field{Name: "environment", EnvVar: EnvEnvironment}
	FieldService     = Field{Name: "service", EnvVar: EnvService}
	FieldTimeout     = Field{Name: "timeout", EnvVar: EnvTimeoutMS}
)

// MissingFieldsError lists every mandatory field that has no value.
type MissingFieldsError struct {
	Fields []Field
}

func (e *MissingFieldsError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.String()
	}
	return "envgod: missing required configuration: " + strings.Join(names, ", ")
}

// Has reports whether f is among the missing fields.
func (e *MissingFieldsError) Has(f Field) bool {
	for _, m := range e.Fields {
		if m == f {
			return true
		}
	}
	return false
}

// InvalidFieldError indicates a field whose value cannot be used.
type InvalidFieldError struct {
	Field  Field
	Value  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	return fmt.Sprintf("envgod: invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
