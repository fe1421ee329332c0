// Package paths resolves the project root and the fixed on-disk layout that
// the rest of Edison reads and writes through.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Environment variables recognized by the resolver.
const (
	ProjectRootEnvVar = "AGENTS_PROJECT_ROOT"
	SessionEnvVar     = "AGENTS_SESSION"
	OwnerEnvVar       = "AGENTS_OWNER"
)

// Fixed directory names under the project root.
const (
	EdisonDir       = ".edison"
	EdisonConfigDir = ".edison/config"
	EdisonRulesDir  = ".edison/rules"
	EdisonGuideDir  = ".edison/guidelines"
	EdisonPacksDir  = ".edison/packs"
	EdisonCacheDir  = ".edison/_generated"
	LegacyAgentsDir = ".agents"

	ProjectDir           = ".project"
	TasksDir             = ".project/tasks"
	QADir                = ".project/qa"
	QAEvidenceDir        = ".project/qa/validation-evidence"
	SessionsDir          = ".project/sessions"
	SessionsTxDir        = ".project/sessions/_tx"
	SessionsRecoveryDir  = ".project/sessions/recovery"
	LogsDir              = ".project/logs"
	WorktreePinRelPath   = ".project/.session-id"
	WorktreeSubdirMarker = ".project"
)

// RootAmbiguityError is raised when more than one root marker is found and
// the caller did not disambiguate with an explicit override.
type RootAmbiguityError struct {
	Candidates []string
}

func (e *RootAmbiguityError) Error() string {
	return fmt.Sprintf("ambiguous project root: candidates %v", e.Candidates)
}

// NotInProject is raised when no root marker can be found anywhere in the
// ancestor chain and no override was supplied.
var NotInProject = errors.New("not inside an edison project")

var (
	rootMu    sync.RWMutex
	rootCache string
	rootCwd   string
)

// ResolveProjectRoot finds the project root using, in precedence order:
//  1. an explicit override (e.g. a --root flag forwarded by the caller)
//  2. AGENTS_PROJECT_ROOT
//  3. the nearest ancestor of cwd containing .edison/ or .git/
//  4. the current working directory
func ResolveProjectRoot(override string) (string, error) {
	if override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", fmt.Errorf("resolving root override: %w", err)
		}
		return abs, nil
	}

	if env := os.Getenv(ProjectRootEnvVar); env != "" {
		abs, err := filepath.Abs(env)
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", ProjectRootEnvVar, err)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}

	rootMu.RLock()
	if rootCache != "" && rootCwd == cwd {
		cached := rootCache
		rootMu.RUnlock()
		return cached, nil
	}
	rootMu.RUnlock()

	found, err := findAncestorMarker(cwd)
	if err != nil {
		return "", err
	}
	if found == "" {
		found = cwd
	}

	rootMu.Lock()
	rootCache = found
	rootCwd = cwd
	rootMu.Unlock()

	return found, nil
}

// ClearRootCache drops the cached project root. Tests that chdir between
// assertions should call this.
func ClearRootCache() {
	rootMu.Lock()
	rootCache = ""
	rootCwd = ""
	rootMu.Unlock()
}

func findAncestorMarker(start string) (string, error) {
	dir := start
	for {
		hasEdison := dirExists(filepath.Join(dir, EdisonDir))
		hasGit := dirExists(filepath.Join(dir, ".git"))
		if hasEdison || hasGit {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// Resolver bundles a resolved project root with the directory-name map the
// state machine configuration provides, so callers can turn an entity state
// into the directory it lives in.
type Resolver struct {
	Root      string
	TaskDirs  map[string]string // semantic state -> directory name, tasks
	QADirs    map[string]string // semantic state -> directory name, qa
	SessDirs  map[string]string // semantic state -> directory name, sessions
}

// NewResolver builds a Resolver for root, with dirsFor* maps coming from the
// state machine's configured state->directory map. Callers that have not
// loaded configuration yet may pass nil maps; DirFor then falls back to the
// semantic state name itself.
func NewResolver(root string, taskDirs, qaDirs, sessDirs map[string]string) *Resolver {
	return &Resolver{Root: root, TaskDirs: taskDirs, QADirs: qaDirs, SessDirs: sessDirs}
}

// TaskDir returns the absolute directory for tasks in the given semantic state.
func (r *Resolver) TaskDir(state string) string {
	return filepath.Join(r.Root, TasksDir, dirName(r.TaskDirs, state))
}

// QADir returns the absolute directory for QA records in the given semantic state.
func (r *Resolver) QADir(state string) string {
	return filepath.Join(r.Root, QADir, dirName(r.QADirs, state))
}

// SessionDir returns the absolute directory for sessions in the given semantic state.
func (r *Resolver) SessionDir(state string) string {
	return filepath.Join(r.Root, SessionsDir, dirName(r.SessDirs, state))
}

// ScopedTaskDir returns the directory for session-scoped tasks in the given
// state, using the layout sessions/{session_id}/tasks/{state_dir}.
func (r *Resolver) ScopedTaskDir(sessionID, state string) string {
	return filepath.Join(r.SessionScopeRoot(sessionID), "tasks", dirName(r.TaskDirs, state))
}

// ScopedQADir is the session-scoped analog of QADir.
func (r *Resolver) ScopedQADir(sessionID, state string) string {
	return filepath.Join(r.SessionScopeRoot(sessionID), "qa", dirName(r.QADirs, state))
}

// SessionScopeRoot returns sessions/{session_id}, used as the parent of a
// session's own scoped task/qa trees. The path does not include the
// session's state directory, so it is the same whatever state the session
// is in.
func (r *Resolver) SessionScopeRoot(sessionID string) string {
	return filepath.Join(r.Root, SessionsDir, sessionID)
}

// CandidateSessionRoots returns every session-state directory joined with
// sessionID, for use when the caller doesn't know which lifecycle state a
// session is currently in.
func (r *Resolver) CandidateSessionRoots(sessionID string) []string {
	states := []string{"active", "closing", "validated"}
	if len(r.SessDirs) > 0 {
		states = states[:0]
		for s := range r.SessDirs {
			states = append(states, s)
		}
	}
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, filepath.Join(r.SessionDir(s), sessionID))
	}
	return out
}

func dirName(m map[string]string, state string) string {
	if m != nil {
		if d, ok := m[state]; ok {
			return d
		}
	}
	return state
}

// EvidenceRoundDir returns validation-evidence/{task_id}/round-{n}.
func (r *Resolver) EvidenceRoundDir(taskID string, round int) string {
	return filepath.Join(r.Root, QAEvidenceDir, taskID, fmt.Sprintf("round-%d", round))
}

// EvidenceTaskDir returns validation-evidence/{task_id}.
func (r *Resolver) EvidenceTaskDir(taskID string) string {
	return filepath.Join(r.Root, QAEvidenceDir, taskID)
}

// WorktreePinPath returns <worktree>/.project/.session-id for a given
// worktree path.
func WorktreePinPath(worktreePath string) string {
	return filepath.Join(worktreePath, WorktreePinRelPath)
}

// ReadWorktreePin reads the session id pinned inside a worktree. Returns
// ("", nil) if no pin file exists.
func ReadWorktreePin(worktreePath string) (string, error) {
	data, err := os.ReadFile(WorktreePinPath(worktreePath)) //nolint:gosec // path is constructed from a resolved worktree root
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading worktree pin: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// WriteWorktreePin writes the pin file, creating .project/ if needed.
func WriteWorktreePin(worktreePath, sessionID string) error {
	pinPath := WorktreePinPath(worktreePath)
	if err := os.MkdirAll(filepath.Dir(pinPath), 0o750); err != nil {
		return fmt.Errorf("creating worktree pin directory: %w", err)
	}
	if err := os.WriteFile(pinPath, []byte(sessionID), 0o644); err != nil { //nolint:gosec // pin file is not a secret
		return fmt.Errorf("writing worktree pin: %w", err)
	}
	return nil
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9_.\-]`)

// SanitizeSessionID replaces anything outside alnum, '-', '_', '.' with '-' and
// rejects path traversal attempts, per the session identity contract.
func SanitizeSessionID(raw string) (string, error) {
	if raw == "" {
		return "", errors.New("session id cannot be empty")
	}
	if strings.Contains(raw, "..") || strings.ContainsAny(raw, "/\\") {
		return "", fmt.Errorf("invalid session id %q: path traversal characters not allowed", raw)
	}
	cleaned := sanitizeRegex.ReplaceAllString(raw, "-")
	if cleaned == "" {
		return "", fmt.Errorf("invalid session id %q: no valid characters remain after sanitization", raw)
	}
	return cleaned, nil
}
