package config

import "testing"

const testPersonSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "additionalProperties": false,
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "age": {"type": "integer", "minimum": 0}
  }
}`

func TestSchemaValidator_ValidDocumentPasses(t *testing.T) {
	v := NewSchemaValidator()
	if err := v.RegisterSchema("person", []byte(testPersonSchema)); err != nil {
		t.Fatalf("RegisterSchema: %v", err)
	}
	doc := map[string]any{"name": "ada", "age": 30}
	if err := v.Validate("person", doc); err != nil {
		t.Fatalf("expected valid document to pass, got %v", err)
	}
}

func TestSchemaValidator_MissingRequiredKeyFails(t *testing.T) {
	v := NewSchemaValidator()
	if err := v.RegisterSchema("person", []byte(testPersonSchema)); err != nil {
		t.Fatalf("RegisterSchema: %v", err)
	}
	doc := map[string]any{"age": 30}
	if err := v.Validate("person", doc); err == nil {
		t.Fatal("expected missing required key to fail validation")
	}
}

func TestSchemaValidator_UnknownKeyRejectedInStrictMode(t *testing.T) {
	v := NewSchemaValidator()
	if err := v.RegisterSchema("person", []byte(testPersonSchema)); err != nil {
		t.Fatalf("RegisterSchema: %v", err)
	}
	doc := map[string]any{"name": "ada", "nickname": "countess"}
	if err := v.Validate("person", doc); err == nil {
		t.Fatal("expected additionalProperties:false schema to reject an unknown key")
	}
}

func TestSchemaValidator_UnknownSchemaNameErrors(t *testing.T) {
	v := NewSchemaValidator()
	if err := v.Validate("nonexistent", map[string]any{}); err == nil {
		t.Fatal("expected validating against an unregistered schema name to error")
	}
}

func TestSchemaValidator_NormalizesYAMLIntTypes(t *testing.T) {
	v := NewSchemaValidator()
	if err := v.RegisterSchema("person", []byte(testPersonSchema)); err != nil {
		t.Fatalf("RegisterSchema: %v", err)
	}
	// yaml.v3 decodes integers as plain `int`, not float64; the normalize
	// step must make this indistinguishable from a JSON-decoded document.
	doc := map[string]any{"name": "ada", "age": int(30)}
	if err := v.Validate("person", doc); err != nil {
		t.Fatalf("expected int age to validate against integer schema, got %v", err)
	}
}
