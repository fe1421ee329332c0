package evidence

import (
	"testing"
	"time"
)

func newSchemaEnforcedService(t *testing.T) *Service {
	t.Helper()
	root := t.TempDir()
	s := NewService(
		func(taskID string, round int) string { return root + "/" + taskID + "/round" },
		func(taskID string) string { return root + "/" + taskID },
	)
	v, err := NewArtifactSchemaValidator()
	if err != nil {
		t.Fatalf("NewArtifactSchemaValidator: %v", err)
	}
	s.SetSchemaValidator(v)
	return s
}

func TestWriteValidatorReport_SchemaEnforced_AcceptsWellFormed(t *testing.T) {
	s := newSchemaEnforcedService(t)
	now := time.Now().UTC()
	r := &ValidatorReport{
		TaskID: "task-1", Round: 1, ValidatorID: "lint", Verdict: VerdictApprove,
		Tracking: Tracking{StartedAt: now, CompletedAt: &now},
	}
	if err := s.WriteValidatorReport("task-1", 1, r); err != nil {
		t.Fatalf("expected well-formed report to pass schema validation, got %v", err)
	}
}

func TestWriteValidatorReport_SchemaEnforced_RejectsMissingVerdict(t *testing.T) {
	s := newSchemaEnforcedService(t)
	now := time.Now().UTC()
	r := &ValidatorReport{
		TaskID: "task-1", Round: 1, ValidatorID: "lint",
		Tracking: Tracking{StartedAt: now, CompletedAt: &now},
	}
	if err := s.WriteValidatorReport("task-1", 1, r); err == nil {
		t.Fatal("expected a report with an empty verdict to fail schema validation")
	}
}

func TestWriteBundle_SchemaEnforced(t *testing.T) {
	s := newSchemaEnforcedService(t)
	b := &Bundle{Approved: true, Round: 1, Preset: "default", Passed: []string{"lint"}, Timestamp: time.Now().UTC()}
	if err := s.WriteBundle("task-1", 1, b); err != nil {
		t.Fatalf("expected well-formed bundle to pass schema validation, got %v", err)
	}
}

func TestWriteBundle_SchemaEnforced_NoValidatorIsNoOp(t *testing.T) {
	root := t.TempDir()
	s := NewService(
		func(taskID string, round int) string { return root + "/" + taskID + "/round" },
		func(taskID string) string { return root + "/" + taskID },
	)
	b := &Bundle{} // zero-value bundle would fail the schema, but no validator is wired
	if err := s.WriteBundle("task-1", 1, b); err != nil {
		t.Fatalf("expected write to succeed when no schema validator is configured, got %v", err)
	}
}
