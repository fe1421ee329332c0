package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator compiles and caches JSON Schema Draft 2020-12 documents
// and validates merged config documents (or any other JSON-shaped value)
// against them. Domains register their schema once, at construction, so a
// malformed schema fails fast instead of surfacing mid-run as a confusing
// validation error on an unrelated document.
type SchemaValidator struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaValidator returns an empty validator ready for RegisterSchema calls.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{schemas: map[string]*jsonschema.Schema{}}
}

// RegisterSchema compiles schemaJSON under Draft 2020-12 and stores it under
// name. Re-registering a name replaces the previous schema. Callers that
// want strict-mode unknown-key rejection write `"additionalProperties":
// false` into the schema itself; the validator enforces whatever the schema
// says rather than imposing its own notion of strictness.
func (v *SchemaValidator) RegisterSchema(name string, schemaJSON []byte) error {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	resourceURL := "mem://" + name
	if err := c.AddResource(resourceURL, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("config: registering schema %s: %w", name, err)
	}
	schema, err := c.Compile(resourceURL)
	if err != nil {
		return fmt.Errorf("config: compiling schema %s: %w", name, err)
	}
	v.mu.Lock()
	v.schemas[name] = schema
	v.mu.Unlock()
	return nil
}

// Validate checks doc against the named schema. doc is round-tripped
// through encoding/json first: jsonschema/v5 expects the plain
// map[string]interface{}/[]interface{}/float64 shapes that encoding/json
// produces, and config documents are decoded from YAML (gopkg.in/yaml.v3),
// whose int/map[interface{}]interface{} shapes differ in ways the schema
// library does not unify on its own.
func (v *SchemaValidator) Validate(name string, doc any) error {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("config: no schema registered for %q", name)
	}

	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return fmt.Errorf("config: normalizing %s for schema validation: %w", name, err)
	}
	if err := schema.Validate(normalized); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			return &ConfigError{Domain: name, Key: schemaErrorKey(ve), Reason: ve.Error()}
		}
		return &ConfigError{Domain: name, Key: "", Reason: err.Error()}
	}
	return nil
}

// normalizeForSchema round-trips doc through JSON so YAML-flavored map/int
// types present a uniform shape to jsonschema/v5.
func normalizeForSchema(doc any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// schemaErrorKey extracts the deepest instance-location pointer from a
// jsonschema ValidationError for a compact ConfigError.Key, falling back to
// the top-level error when the cause tree is empty.
func schemaErrorKey(ve *jsonschema.ValidationError) string {
	cur := ve
	for len(cur.Causes) > 0 {
		cur = cur.Causes[0]
	}
	return cur.InstanceLocation
}

// ValidateDomainSchema loads relPath from the registry and validates it
// against the named schema. Intended for config documents that ship a
// schema (e.g. "orchestrator.schema.json" guarding validation.yml).
func (r *Registry) ValidateDomainSchema(validator *SchemaValidator, relPath, schemaName string) error {
	doc, err := r.Load(relPath)
	if err != nil {
		return err
	}
	return validator.Validate(schemaName, doc)
}
