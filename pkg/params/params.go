package params

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Type enumerates the parameter types a tool can declare.
type Type string

const (
	TypeString Type = "string"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeObject Type = "object"
	TypeArray  Type = "array"
)

// Spec declares a single parameter a tool accepts. Object and array
// parameters may carry a nested JSON schema for deep validation.
type Spec struct {
	Name        string          `json:"name"`
	Type        Type            `json:"type"`
	Required    bool            `json:"required,omitempty"`
	Default     interface{}     `json:"default,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// ErrorKind distinguishes the ways argument validation can fail.
type ErrorKind string

const (
	MissingRequired ErrorKind = "missing_required"
	TypeMismatch    ErrorKind = "type_mismatch"
)

// ValidationError reports a single argument failure. Requests that fail
// validation never reach execution.
type ValidationError struct {
	Kind   ErrorKind `json:"kind"`
	Field  string    `json:"field"`
	Detail string    `json:"detail"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Field, e.Detail)
}

func missingRequired(field string) *ValidationError {
	return &ValidationError{
		Kind:   MissingRequired,
		Field:  field,
		Detail: "missing required parameter",
	}
}

func typeMismatch(field, detail string) *ValidationError {
	return &ValidationError{
		Kind:   TypeMismatch,
		Field:  field,
		Detail: detail,
	}
}

// Validate checks args against the declared specs. Unknown keys are
// rejected, required parameters must be present, and every present value
// must match its declared type. The first failure is returned.
func Validate(specs []Spec, args map[string]interface{}) error {
	byName := make(map[string]Spec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	// Reject unknown keys deterministically (sorted) so repeated calls
	// with the same bad input produce the same error.
	unknown := make([]string, 0)
	for k := range args {
		if _, ok := byName[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return typeMismatch(unknown[0], "unexpected parameter")
	}

	for _, s := range specs {
		v, present := args[s.Name]
		if !present {
			if s.Required {
				return missingRequired(s.Name)
			}
			continue
		}
		if err := checkValue(s, v); err != nil {
			return err
		}
	}
	return nil
}

// Normalize returns a copy of args with defaults applied for absent
// optional parameters. Callers use the normalized map for cache keying
// and execution so defaults are consistent everywhere.
func Normalize(specs []Spec, args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	for _, s := range specs {
		if _, present := out[s.Name]; !present && s.Default != nil {
			out[s.Name] = s.Default
		}
	}
	return out
}

func checkValue(s Spec, v interface{}) error {
	if v == nil {
		return typeMismatch(s.Name, fmt.Sprintf("want %s, got null", s.Type))
	}

	switch s.Type {
	case TypeString:
		str, ok := v.(string)
		if !ok {
			return typeMismatch(s.Name, fmt.Sprintf("want string, got %s", jsonTypeName(v)))
		}
		if len(s.Enum) > 0 && !contains(s.Enum, str) {
			return typeMismatch(s.Name, fmt.Sprintf("want one of %v, got %q", s.Enum, str))
		}
	case TypeInt:
		// JSON numbers decode as float64; accept them when integral.
		switch n := v.(type) {
		case int, int32, int64:
		case float64:
			if n != math.Trunc(n) {
				return typeMismatch(s.Name, fmt.Sprintf("want int, got %v", n))
			}
		default:
			return typeMismatch(s.Name, fmt.Sprintf("want int, got %s", jsonTypeName(v)))
		}
	case TypeFloat:
		switch v.(type) {
		case float64, float32, int, int32, int64:
		default:
			return typeMismatch(s.Name, fmt.Sprintf("want float, got %s", jsonTypeName(v)))
		}
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return typeMismatch(s.Name, fmt.Sprintf("want bool, got %s", jsonTypeName(v)))
		}
	case TypeObject:
		if _, ok := v.(map[string]interface{}); !ok {
			return typeMismatch(s.Name, fmt.Sprintf("want object, got %s", jsonTypeName(v)))
		}
	case TypeArray:
		if _, ok := v.([]interface{}); !ok {
			return typeMismatch(s.Name, fmt.Sprintf("want array, got %s", jsonTypeName(v)))
		}
	default:
		return typeMismatch(s.Name, fmt.Sprintf("unknown declared type %q", s.Type))
	}
	return nil
}

// jsonTypeName names a decoded JSON value the way a caller would read it
// in their request body.
func jsonTypeName(v interface{}) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, float32, int, int32, int64:
		return "number"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// JSONSchema derives a draft-07 object schema from the specs, used both
// for the MCP tools/list surface and for deep validation of object and
// array parameters.
func JSONSchema(specs []Spec) ([]byte, error) {
	properties := make(map[string]interface{}, len(specs))
	required := make([]string, 0)

	for _, s := range specs {
		prop := map[string]interface{}{
			"type": schemaTypeName(s.Type),
		}
		if s.Description != "" {
			prop["description"] = s.Description
		}
		if len(s.Enum) > 0 {
			prop["enum"] = s.Enum
		}
		if len(s.Schema) > 0 {
			// A declared nested schema replaces the derived one.
			var nested map[string]interface{}
			if err := json.Unmarshal(s.Schema, &nested); err != nil {
				return nil, fmt.Errorf("parameter %q: invalid schema: %w", s.Name, err)
			}
			prop = nested
		}
		properties[s.Name] = prop
		if s.Required {
			required = append(required, s.Name)
		}
	}

	schema := map[string]interface{}{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		sort.Strings(required)
		schema["required"] = required
	}
	return json.Marshal(schema)
}

func schemaTypeName(t Type) string {
	switch t {
	case TypeInt:
		return "integer"
	case TypeFloat:
		return "number"
	case TypeBool:
		return "boolean"
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	default:
		return "string"
	}
}
