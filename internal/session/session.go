// Package session implements SessionManager: identity inference, creation,
// worktree binding, and the journalled multi-step close transaction, per
// spec §4.8.
package session

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/edison-dev/edison/internal/config"
	"github.com/edison-dev/edison/internal/entity"
	"github.com/edison-dev/edison/internal/gitcap"
	"github.com/edison-dev/edison/internal/paths"
)

// GitInfo is a session's git{} extras block.
type GitInfo struct {
	WorktreePath string `json:"worktreePath,omitempty" yaml:"worktreePath,omitempty"`
	BranchName   string `json:"branchName,omitempty" yaml:"branchName,omitempty"`
	BaseBranch   string `json:"baseBranch,omitempty" yaml:"baseBranch,omitempty"`
}

// ActivityEntry is one append-only activity_log[] record.
type ActivityEntry struct {
	Ts        time.Time `json:"ts" yaml:"ts"`
	Message   string    `json:"message" yaml:"message"`
	EntityRef string    `json:"entity_ref,omitempty" yaml:"entity_ref,omitempty"`
}

// TaskRef is one tasks{task_id: ...} entry a session tracks.
type TaskRef struct {
	ParentID string   `json:"parentId,omitempty" yaml:"parentId,omitempty"`
	ChildIDs []string `json:"childIds,omitempty" yaml:"childIds,omitempty"`
	Status   string   `json:"status" yaml:"status"`
	Owner    string   `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// QARef is one qa{qa_id: ...} entry a session tracks.
type QARef struct {
	TaskID string `json:"taskId" yaml:"taskId"`
}

// Manager is SessionManager.
type Manager struct {
	store    *entity.Store
	git      gitcap.Capability
	resolver *paths.Resolver
	exec     *config.ExecutionConfig
}

// NewManager builds a Manager.
func NewManager(store *entity.Store, git gitcap.Capability, resolver *paths.Resolver, exec *config.ExecutionConfig) *Manager {
	return &Manager{store: store, git: git, resolver: resolver, exec: exec}
}

// CreateOptions configures Create.
type CreateOptions struct {
	ID         string // explicit id; inferred via InferSessionID when empty
	Owner      string
	NoWorktree bool
	Restore    *ArchivedWorktree // set when resuming from a recovery directory
}

// ArchivedWorktree names a previously-archived worktree to restore from.
type ArchivedWorktree struct {
	Path   string
	Branch string
}

// CreateResult mirrors the spec's `session create` JSON output fields.
type CreateResult struct {
	Session               *entity.Entity
	SessionIDFilePath     string
	WorktreePinned        bool
	ArchivedWorktreePath  string
}

// Create implements `session create`.
func (m *Manager) Create(opts CreateOptions) (*CreateResult, error) {
	id := opts.ID
	if id == "" {
		inferred, err := InferSessionID()
		if err != nil {
			return nil, err
		}
		id = inferred
	} else {
		sanitized, err := paths.SanitizeSessionID(id)
		if err != nil {
			return nil, err
		}
		id = sanitized
	}

	ent := &entity.Entity{
		Kind:  entity.KindSession,
		ID:    id,
		Title: id,
		State: "active",
		Owner: opts.Owner,
		Metadata: entity.Metadata{
			CreatedAt: time.Now().UTC(),
			CreatedBy: opts.Owner,
		},
		Extras: map[string]any{},
	}

	result := &CreateResult{Session: ent}

	worktreePath, branch, archivedFrom, err := m.ensureWorktreeMaterialized(id, opts)
	if err != nil {
		return nil, err
	}
	if worktreePath != "" {
		ent.Extras["git"] = GitInfo{WorktreePath: worktreePath, BranchName: branch, BaseBranch: m.exec.BaseBranch}
		if err := paths.WriteWorktreePin(worktreePath, id); err != nil {
			return nil, fmt.Errorf("pinning worktree: %w", err)
		}
		result.SessionIDFilePath = paths.WorktreePinPath(worktreePath)
		result.WorktreePinned = true
		result.ArchivedWorktreePath = archivedFrom
	}

	if err := m.store.Create(ent); err != nil {
		return nil, fmt.Errorf("creating session %s: %w", id, err)
	}
	return result, nil
}

// ensureWorktreeMaterialized is the single entry point for creating,
// reusing, or restoring a session's worktree. Disabled worktrees make this
// a no-op returning ("", "", "", nil), per spec §4.8.
func (m *Manager) ensureWorktreeMaterialized(id string, opts CreateOptions) (worktreePath, branch, archivedFrom string, err error) {
	if opts.NoWorktree || m.exec == nil || !m.exec.WorktreesEnabled {
		return "", "", "", nil
	}

	branch = m.exec.BranchPrefix + id
	worktreePath = filepath.Join(m.resolver.Root, m.exec.WorktreeBaseDir, id)

	if opts.Restore != nil {
		if err := m.git.CreateWorktree(m.resolver.Root, worktreePath, branch, m.exec.BaseBranch); err != nil {
			return "", "", "", fmt.Errorf("restoring archived worktree: %w", err)
		}
		return worktreePath, branch, opts.Restore.Path, nil
	}

	existing, err := m.git.ListWorktrees(m.resolver.Root)
	if err != nil {
		return "", "", "", fmt.Errorf("listing worktrees: %w", err)
	}
	for _, wt := range existing {
		if wt.Path == worktreePath {
			return worktreePath, branch, "", nil // reuse
		}
	}

	if err := m.git.CreateWorktree(m.resolver.Root, worktreePath, branch, m.exec.BaseBranch); err != nil {
		return "", "", "", fmt.Errorf("creating worktree: %w", err)
	}
	return worktreePath, branch, "", nil
}

// Get loads a session by id.
func (m *Manager) Get(id string) (*entity.Entity, error) {
	return m.store.Get(entity.KindSession, id)
}

// AppendActivity appends an activity_log[] entry and persists the session.
func (m *Manager) AppendActivity(ent *entity.Entity, message, entityRef string) error {
	raw, _ := ent.Extras["activity_log"].([]any)
	entry := map[string]any{"ts": time.Now().UTC(), "message": message}
	if entityRef != "" {
		entry["entity_ref"] = entityRef
	}
	if ent.Extras == nil {
		ent.Extras = map[string]any{}
	}
	ent.Extras["activity_log"] = append(raw, entry)
	return m.store.Update(ent)
}
