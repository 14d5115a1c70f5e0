package params

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// SchemaValidator performs deep validation of object and array parameters
// that declare a nested JSON schema. Compiled schemas are cached because
// compilation dominates validation cost on the hot path.
type SchemaValidator struct {
	mu    sync.RWMutex
	cache map[string]*gojsonschema.Schema
}

// NewSchemaValidator creates a new schema validator with an empty cache.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		cache: make(map[string]*gojsonschema.Schema),
	}
}

// ValidateDeep cross-checks args against any nested schemas the specs
// declare. Scalar parameters are already covered by Validate; this pass
// only inspects parameters that carry their own schema.
func (sv *SchemaValidator) ValidateDeep(specs []Spec, args map[string]interface{}) error {
	for _, s := range specs {
		if len(s.Schema) == 0 {
			continue
		}
		v, present := args[s.Name]
		if !present {
			continue
		}
		if err := sv.validateValue(s, v); err != nil {
			return err
		}
	}
	return nil
}

func (sv *SchemaValidator) validateValue(s Spec, v interface{}) error {
	schema, err := sv.getSchema(string(s.Schema))
	if err != nil {
		return fmt.Errorf("invalid schema for parameter %q: %w", s.Name, err)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return typeMismatch(s.Name, "value is not serializable")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation for parameter %q: %w", s.Name, err)
	}
	if !result.Valid() {
		details := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			details[i] = desc.String()
		}
		return typeMismatch(s.Name, fmt.Sprintf("schema validation failed: %v", details))
	}
	return nil
}

// getSchema retrieves or compiles a JSON schema.
func (sv *SchemaValidator) getSchema(schemaJSON string) (*gojsonschema.Schema, error) {
	sv.mu.RLock()
	schema, exists := sv.cache[schemaJSON]
	sv.mu.RUnlock()
	if exists {
		return schema, nil
	}

	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, err
	}

	sv.mu.Lock()
	sv.cache[schemaJSON] = compiled
	sv.mu.Unlock()
	return compiled, nil
}
