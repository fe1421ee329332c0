package evidence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/edison-dev/edison/internal/jsonutil"
)

// ImplementationReport is the implementer-produced round artifact.
type ImplementationReport struct {
	FollowUpTasks     []string `json:"followUpTasks,omitempty"`
	Blockers          []string `json:"blockers,omitempty"`
	NotesForValidator string   `json:"notesForValidator,omitempty"`
	FilesChanged      []string `json:"filesChanged,omitempty"`
	PrimaryModel      string   `json:"primaryModel,omitempty"`
}

// ReadImplementationReport reads round n's implementation-report.json.
func (s *Service) ReadImplementationReport(taskID string, round int) (*ImplementationReport, error) {
	path := filepath.Join(s.roundDir(taskID, round), "implementation-report.json")
	data, err := os.ReadFile(path) //nolint:gosec // path built from resolved evidence directories
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var r ImplementationReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &r, nil
}

// WriteImplementationReport writes round n's implementation-report.json.
func (s *Service) WriteImplementationReport(taskID string, round int, r *ImplementationReport) error {
	dir, err := s.EnsureRound(taskID, round)
	if err != nil {
		return err
	}
	data, err := jsonutil.MarshalIndentWithNewline(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding implementation report: %w", err)
	}
	return atomicWrite(filepath.Join(dir, "implementation-report.json"), data)
}

// Verdict is a validator's pass/fail/unknown outcome.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictBlocked Verdict = "blocked"
)

// Finding is one issue a validator surfaced.
type Finding struct {
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
	Severity    string `json:"severity,omitempty"`
}

// Tracking records process-level dispatch metadata for a validator run.
type Tracking struct {
	ProcessID   string     `json:"processId,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ValidatorReport is one validator-{id}-report.json artifact.
type ValidatorReport struct {
	TaskID        string    `json:"taskId"`
	Round         int       `json:"round"`
	ValidatorID   string    `json:"validatorId"`
	Model         string    `json:"model,omitempty"`
	Verdict       Verdict   `json:"verdict"`
	Tracking      Tracking  `json:"tracking"`
	Strengths     []string  `json:"strengths,omitempty"`
	Findings      []Finding `json:"findings,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	FollowUpTasks []string  `json:"followUpTasks,omitempty"`
}

// Complete reports whether this report counts as finished: a report
// without tracking.completedAt is treated as not complete (spec §6.2).
func (r *ValidatorReport) Complete() bool {
	return r.Tracking.CompletedAt != nil
}

// Passed reports whether the validator's verdict counts as a pass.
func (r *ValidatorReport) Passed() bool {
	return r.Complete() && (r.Verdict == VerdictApprove || r.Verdict == "pass")
}

func validatorReportPath(dir, validatorID string) string {
	return filepath.Join(dir, "validator-"+validatorID+"-report.json")
}

// WriteValidatorReport persists one validator's report for a round.
func (s *Service) WriteValidatorReport(taskID string, round int, r *ValidatorReport) error {
	if err := s.validateArtifact(schemaNameValidatorReport, r); err != nil {
		return err
	}
	dir, err := s.EnsureRound(taskID, round)
	if err != nil {
		return err
	}
	data, err := jsonutil.MarshalIndentWithNewline(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding validator report: %w", err)
	}
	return atomicWrite(validatorReportPath(dir, r.ValidatorID), data)
}

// ListValidatorReports returns every validator-*-report.json for a round.
// A file that fails to parse is skipped-and-surfaced as a nil-verdict
// report rather than aborting the whole listing, since guards need to see
// "which validator ids are missing/malformed", not just bail out.
func (s *Service) ListValidatorReports(taskID string, round int) ([]*ValidatorReport, error) {
	dir := s.roundDir(taskID, round)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []*ValidatorReport
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "validator-") || !strings.HasSuffix(name, "-report.json") {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path) //nolint:gosec // path built from resolved evidence directories
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		var r ValidatorReport
		if err := json.Unmarshal(data, &r); err != nil {
			// malformed report: surface as an incomplete stand-in keyed by
			// filename so callers can name it in a diagnostic.
			out = append(out, &ValidatorReport{ValidatorID: strings.TrimSuffix(strings.TrimPrefix(name, "validator-"), "-report.json")})
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// ValidatorReportsCompleteFor reports whether every report for round round of
// taskID is present and complete, and names any missing/incomplete ids.
// The caller supplies the expected id set via expectedIDs. The
// has_validator_reports / has_all_waves_passed statemachine guards use
// ValidatorReportsComplete instead, which has no expected id set.
func (s *Service) ValidatorReportsCompleteFor(taskID string, round int, expectedIDs []string) (bool, []string, error) {
	reports, err := s.ListValidatorReports(taskID, round)
	if err != nil {
		return false, nil, err
	}
	byID := map[string]*ValidatorReport{}
	for _, r := range reports {
		byID[r.ValidatorID] = r
	}
	var missing []string
	for _, id := range expectedIDs {
		r, ok := byID[id]
		if !ok || !r.Complete() {
			missing = append(missing, id)
		}
	}
	return len(missing) == 0, missing, nil
}

// ValidatorReportsComplete implements statemachine.EvidenceLookup without an
// explicit expected-id set: every report found for the round must be
// complete. Call ValidatorReportsCompleteFor directly when the expected set
// is known (e.g. from an OrchestratorConfig preset).
func (s *Service) ValidatorReportsComplete(taskID string, round int) (bool, []string, error) {
	reports, err := s.ListValidatorReports(taskID, round)
	if err != nil {
		return false, nil, err
	}
	var missing []string
	for _, r := range reports {
		if !r.Complete() {
			missing = append(missing, r.ValidatorID)
		}
	}
	return len(missing) == 0, missing, nil
}

// Bundle is the aggregated round verdict, bundle-approved.json.
type Bundle struct {
	Approved  bool      `json:"approved"`
	Round     int       `json:"round"`
	Preset    string    `json:"preset"`
	Passed    []string  `json:"passed"`
	Failed    []string  `json:"failed"`
	Timestamp time.Time `json:"timestamp"`
}

func bundlePath(dir string) string { return filepath.Join(dir, "bundle-approved.json") }

// ReadBundle reads round n's bundle-approved.json, or nil if absent.
func (s *Service) ReadBundle(taskID string, round int) (*Bundle, error) {
	path := bundlePath(s.roundDir(taskID, round))
	data, err := os.ReadFile(path) //nolint:gosec // path built from resolved evidence directories
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &b, nil
}

// WriteBundle writes round n's bundle-approved.json. Nil Passed/Failed
// lists are written as empty arrays.
func (s *Service) WriteBundle(taskID string, round int, b *Bundle) error {
	if b.Passed == nil {
		b.Passed = []string{}
	}
	if b.Failed == nil {
		b.Failed = []string{}
	}
	if err := s.validateArtifact(schemaNameBundle, b); err != nil {
		return err
	}
	dir, err := s.EnsureRound(taskID, round)
	if err != nil {
		return err
	}
	data, err := jsonutil.MarshalIndentWithNewline(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding bundle: %w", err)
	}
	return atomicWrite(bundlePath(dir), data)
}

// HasBundleApproval implements statemachine.EvidenceLookup.
func (s *Service) HasBundleApproval(taskID string, round int) (bool, error) {
	b, err := s.ReadBundle(taskID, round)
	if err != nil {
		return false, err
	}
	return b != nil && b.Approved, nil
}

// RecordBundleApproval is a no-op hook point for the record_bundle_approval
// statemachine action: the bundle itself is written by the
// ValidationOrchestrator via WriteBundle; this just confirms it exists.
func (s *Service) RecordBundleApproval(taskID string, round int) error {
	ok, err := s.HasBundleApproval(taskID, round)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("evidence: no approved bundle to record for %s round %d", taskID, round)
	}
	return nil
}

// Context7Marker is a package-documentation snapshot record.
type Context7Marker struct {
	Package    string    `yaml:"package"`
	LibraryID  string    `yaml:"libraryId"`
	Topics     []string  `yaml:"topics,omitempty"`
	QueriedAt  time.Time `yaml:"queriedAt"`
	Docs       string    `yaml:"docs,omitempty"`
	Version    string    `yaml:"version,omitempty"`
}

// MissingEvidenceBlocker names one unmet required-evidence entry.
type MissingEvidenceBlocker struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
}

// MissingEvidenceBlockersFor implements `missing_evidence_blockers(task_id)`
// against an explicit required-evidence list: every entry not present in
// the round's directory is reported. Kinds recognized: "command:<name>",
// "implementation-report", "context7:<package>".
func (s *Service) MissingEvidenceBlockersFor(taskID string, round int, required []string) ([]string, error) {
	dir := s.roundDir(taskID, round)
	entries, err := os.ReadDir(dir)
	present := map[string]bool{}
	if err == nil {
		for _, e := range entries {
			present[e.Name()] = true
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var missing []string
	for _, req := range required {
		switch {
		case strings.HasPrefix(req, "command:"):
			name := strings.TrimPrefix(req, "command:")
			if !present["command-"+name+".txt"] {
				missing = append(missing, req)
			}
		case req == "implementation-report":
			if !present["implementation-report.json"] && !present["implementation-report.md"] {
				missing = append(missing, req)
			}
		case strings.HasPrefix(req, "context7:"):
			pkg := strings.TrimPrefix(req, "context7:")
			if !present["context7-"+pkg+".md"] && !present["context7-"+pkg+".txt"] {
				missing = append(missing, req)
			}
		default:
			if !present[req] {
				missing = append(missing, req)
			}
		}
	}
	return missing, nil
}

// MissingEvidenceBlockers implements statemachine.EvidenceLookup using the
// Service-configured required-evidence list (see SetRequiredEvidence),
// falling back to the conventional type-check/lint/test/build commands plus
// an implementation report when unconfigured.
func (s *Service) MissingEvidenceBlockers(taskID string, round int) ([]string, error) {
	required := s.requiredEvidence
	if len(required) == 0 {
		required = []string{"command:type-check", "command:lint", "command:test", "command:build", "implementation-report"}
	}
	return s.MissingEvidenceBlockersFor(taskID, round, required)
}
