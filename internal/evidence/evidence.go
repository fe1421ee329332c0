// Package evidence implements EvidenceService: round-based storage of
// command outputs, implementation/validator/bundle reports, and context7
// package-documentation snapshots, with schema-enforced parsing that fails
// closed on malformed input.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/edison-dev/edison/internal/config"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// RoundDirFunc resolves the absolute directory for a task's evidence round,
// delegating to paths.Resolver.EvidenceRoundDir.
type RoundDirFunc func(taskID string, round int) string

// TaskDirFunc resolves a task's evidence parent directory (all rounds).
type TaskDirFunc func(taskID string) string

// Service is EvidenceService.
type Service struct {
	roundDir RoundDirFunc
	taskDir  TaskDirFunc

	// requiredEvidence is QAConfig.RequiredEvidence, set once at startup so
	// Service satisfies statemachine.EvidenceLookup's fixed 2-arg
	// MissingEvidenceBlockers signature without the statemachine guard
	// needing to know the config shape.
	requiredEvidence []string

	// schemaValidator enforces the validator-report/bundle JSON schemas on
	// write when set via SetSchemaValidator. Nil by default so tests and
	// callers that don't care about schema enforcement don't need to wire one.
	schemaValidator *config.SchemaValidator
}

// NewService builds a Service bound to the given directory resolvers.
func NewService(roundDir RoundDirFunc, taskDir TaskDirFunc) *Service {
	return &Service{roundDir: roundDir, taskDir: taskDir}
}

// SetRequiredEvidence configures the required-evidence list used by the
// 2-arg MissingEvidenceBlockers (from QAConfig.RequiredEvidence).
func (s *Service) SetRequiredEvidence(required []string) {
	s.requiredEvidence = required
}

var roundDirPattern = regexp.MustCompile(`^round-(\d+)$`)

// CurrentRound returns the highest existing round number for taskID, or 1
// if no rounds exist yet (round numbering is dense and starts at 1).
func (s *Service) CurrentRound(taskID string) (int, error) {
	dir := s.taskDir(taskID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("reading evidence task dir %s: %w", dir, err)
	}
	max := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := roundDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n > max {
			max = n
		}
	}
	if max == 0 {
		return 1, nil
	}
	return max, nil
}

// EnsureRound creates (if absent) and returns the directory for round n.
func (s *Service) EnsureRound(taskID string, n int) (string, error) {
	dir := s.roundDir(taskID, n)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating round directory %s: %w", dir, err)
	}
	return dir, nil
}

// GetCurrentRoundDir is get_current_round_dir().
func (s *Service) GetCurrentRoundDir(taskID string) (string, error) {
	round, err := s.CurrentRound(taskID)
	if err != nil {
		return "", err
	}
	return s.roundDir(taskID, round), nil
}

// CommandEvidence is the decoded form of a command-{name}.txt artifact.
type CommandEvidence struct {
	EvidenceVersion int    `yaml:"evidenceVersion"`
	EvidenceKind    string `yaml:"evidenceKind"`
	TaskID          string `yaml:"taskId"`
	Round           int    `yaml:"round"`
	CommandName     string `yaml:"commandName"`
	Command         string `yaml:"command"`
	Cwd             string `yaml:"cwd"`
	ExitCode        int    `yaml:"exitCode"`
	Body            string `yaml:"-"`
}

// ParseError marks an evidence document as fail-closed-malformed, per spec
// §4.6 "Parsing rule".
type ParseError struct {
	Path   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("evidence: parse error in %s: %s", e.Path, e.Reason)
}

// ParseCommandEvidence decodes a command-{name}.txt file. A missing or
// malformed `---`-delimited frontmatter header is a ParseError (fail-closed
// — guards consuming this never see a zero-value stand-in for "unknown").
func ParseCommandEvidence(path string, data []byte) (*CommandEvidence, error) {
	text := string(data)
	if !strings.HasPrefix(text, "---\n") {
		return nil, &ParseError{Path: path, Reason: "missing leading frontmatter delimiter"}
	}
	rest := strings.TrimPrefix(text, "---\n")
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, &ParseError{Path: path, Reason: "missing closing frontmatter delimiter"}
	}
	header := rest[:end]
	body := strings.TrimPrefix(rest[end+len("\n---"):], "\n")

	var ce CommandEvidence
	if err := yaml.Unmarshal([]byte(header), &ce); err != nil {
		return nil, &ParseError{Path: path, Reason: "invalid YAML frontmatter: " + err.Error()}
	}
	if ce.EvidenceKind != "command" || ce.CommandName == "" {
		return nil, &ParseError{Path: path, Reason: "missing required keys (evidenceKind/commandName)"}
	}
	ce.Body = body
	return &ce, nil
}

// WriteCommandEvidence captures a command invocation's output as
// command-{name}.txt for the given round.
func (s *Service) WriteCommandEvidence(taskID string, round int, ce CommandEvidence, stdout string) error {
	dir, err := s.EnsureRound(taskID, round)
	if err != nil {
		return err
	}
	ce.EvidenceVersion = 1
	ce.EvidenceKind = "command"
	ce.TaskID = taskID
	ce.Round = round

	header, err := yaml.Marshal(ce)
	if err != nil {
		return fmt.Errorf("encoding command evidence header: %w", err)
	}
	var buf strings.Builder
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n")
	buf.WriteString(stdout)

	path := filepath.Join(dir, "command-"+ce.CommandName+".txt")
	return atomicWrite(path, []byte(buf.String()))
}

// HasPassingTests implements the TDD ready-gate: the current round's
// command-test.txt must exist and report exitCode 0. Supplemented from
// original_source's tdd/ready_gate.py (SPEC_FULL.md §C.1).
func (s *Service) HasPassingTests(taskID string, round int) (bool, error) {
	dir := s.roundDir(taskID, round)
	path := filepath.Join(dir, "command-test.txt")
	data, err := os.ReadFile(path) //nolint:gosec // path constructed from resolved evidence directories
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	ce, err := ParseCommandEvidence(path, data)
	if err != nil {
		return false, nil // malformed evidence fails closed, not as an error
	}
	return ce.ExitCode == 0, nil
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // evidence artifacts are not secrets
		return fmt.Errorf("writing temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// ListCommandEvidence returns every parsed command-*.txt artifact for a
// round, sorted by command name.
func (s *Service) ListCommandEvidence(taskID string, round int) ([]*CommandEvidence, error) {
	dir := s.roundDir(taskID, round)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var out []*CommandEvidence
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "command-") || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path) //nolint:gosec // path built from resolved evidence directories
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		ce, err := ParseCommandEvidence(path, data)
		if err != nil {
			return nil, err
		}
		out = append(out, ce)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CommandName < out[j].CommandName })
	return out, nil
}
