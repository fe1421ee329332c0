package evidence

import (
	"fmt"

	"github.com/edison-dev/edison/internal/config"
)

// validatorReportSchema and bundleSchema are the JSON Schema Draft 2020-12
// documents guarding the two wire artifacts a delegated validator and the
// ValidationOrchestrator respectively hand back to EvidenceService.
// additionalProperties is false on both: an engine that starts emitting an
// extra field should fail loudly in CI, not silently pass through.
const validatorReportSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["taskId", "round", "validatorId", "verdict", "tracking"],
  "additionalProperties": false,
  "properties": {
    "taskId": {"type": "string", "minLength": 1},
    "round": {"type": "integer", "minimum": 1},
    "validatorId": {"type": "string", "minLength": 1},
    "model": {"type": "string"},
    "verdict": {"enum": ["approve", "reject", "blocked", "pass"]},
    "tracking": {
      "type": "object",
      "required": ["startedAt"],
      "additionalProperties": false,
      "properties": {
        "processId": {"type": "string"},
        "startedAt": {"type": "string"},
        "completedAt": {"type": "string"}
      }
    },
    "strengths": {"type": "array", "items": {"type": "string"}},
    "findings": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "additionalProperties": false,
        "properties": {
          "description": {"type": "string"},
          "location": {"type": "string"},
          "severity": {"type": "string"}
        }
      }
    },
    "summary": {"type": "string"},
    "followUpTasks": {"type": "array", "items": {"type": "string"}}
  }
}`

const bundleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["approved", "round", "preset", "passed", "failed", "timestamp"],
  "additionalProperties": false,
  "properties": {
    "approved": {"type": "boolean"},
    "round": {"type": "integer", "minimum": 1},
    "preset": {"type": "string"},
    "passed": {"type": "array", "items": {"type": "string"}},
    "failed": {"type": "array", "items": {"type": "string"}},
    "timestamp": {"type": "string"}
  }
}`

const (
	schemaNameValidatorReport = "validator-report"
	schemaNameBundle          = "bundle"
)

// NewArtifactSchemaValidator builds a SchemaValidator preloaded with the
// ValidatorReport and Bundle schemas. Pass the result to Service.SetSchemaValidator
// to enforce schema validation on every write.
func NewArtifactSchemaValidator() (*config.SchemaValidator, error) {
	v := config.NewSchemaValidator()
	if err := v.RegisterSchema(schemaNameValidatorReport, []byte(validatorReportSchema)); err != nil {
		return nil, err
	}
	if err := v.RegisterSchema(schemaNameBundle, []byte(bundleSchema)); err != nil {
		return nil, err
	}
	return v, nil
}

// SetSchemaValidator wires schema enforcement into WriteValidatorReport and
// WriteBundle. Unset (nil), a Service validates only via its Go struct
// tags/zero-value checks, same as before schema enforcement existed.
func (s *Service) SetSchemaValidator(v *config.SchemaValidator) {
	s.schemaValidator = v
}

func (s *Service) validateArtifact(schemaName string, v any) error {
	if s.schemaValidator == nil {
		return nil
	}
	if err := s.schemaValidator.Validate(schemaName, v); err != nil {
		return fmt.Errorf("evidence: %s failed schema validation: %w", schemaName, err)
	}
	return nil
}
