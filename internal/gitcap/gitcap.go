// Package gitcap implements the "git capability" the spec delegates
// worktree, branch, and commit operations to: a thin, mockable seam
// around go-git and the git CLI, grounded on the teacher's
// cmd/entire/cli/git_operations.go.
package gitcap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Capability is the git operations SessionManager and ValidationOrchestrator
// are specified to delegate to, rather than shelling out directly.
type Capability interface {
	OpenRepository(path string) (*git.Repository, error)
	CurrentBranch(repoPath string) (string, error)
	BranchExistsLocally(repoPath, branch string) (bool, error)
	CreateWorktree(repoPath, worktreePath, branch, baseBranch string) error
	RemoveWorktree(repoPath, worktreePath string) error
	ListWorktrees(repoPath string) ([]WorktreeInfo, error)
	ChangedFiles(repoPath, baseBranch string) ([]string, error)
	HasUncommittedChanges(repoPath string) (bool, error)
}

// WorktreeInfo is one entry of `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string
	Branch string
	Head   string
}

// GitCLI is the default Capability, grounded on the teacher's mix of go-git
// reads (cheap, in-process) and `git` CLI subprocess calls for operations
// go-git handles poorly or not at all (worktree management, status
// respecting global gitignore, auth-aware fetch).
type GitCLI struct{}

// New returns the default git capability implementation.
func New() *GitCLI { return &GitCLI{} }

func (GitCLI) OpenRepository(path string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening git repository at %s: %w", path, err)
	}
	return repo, nil
}

func (g GitCLI) CurrentBranch(repoPath string) (string, error) {
	repo, err := g.OpenRepository(repoPath)
	if err != nil {
		return "", err
	}
	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", errors.New("gitcap: not on a branch (detached HEAD)")
	}
	return head.Name().Short(), nil
}

func (g GitCLI) BranchExistsLocally(repoPath, branch string) (bool, error) {
	repo, err := g.OpenRepository(repoPath)
	if err != nil {
		return false, err
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("checking branch %s: %w", branch, err)
	}
	return true, nil
}

// CreateWorktree creates branch (from baseBranch, if branch doesn't exist
// yet) checked out at worktreePath. Uses the `git` CLI: go-git v5 has no
// worktree-management support at all, so this is the one operation with no
// go-git path to fall back from.
func (g GitCLI) CreateWorktree(repoPath, worktreePath, branch, baseBranch string) error {
	exists, err := g.BranchExistsLocally(repoPath, branch)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var args []string
	if exists {
		args = []string{"worktree", "add", worktreePath, branch}
	} else {
		args = []string{"worktree", "add", "-b", branch, worktreePath, baseBranch}
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = repoPath
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree add failed: %s: %w", strings.TrimSpace(string(output)), err)
	}
	return nil
}

// RemoveWorktree removes a worktree, falling back to a forced removal when
// the directory has been moved or deleted out from under git.
func (g GitCLI) RemoveWorktree(repoPath, worktreePath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", worktreePath)
	cmd.Dir = repoPath
	if output, err := cmd.CombinedOutput(); err != nil {
		if _, statErr := os.Stat(worktreePath); os.IsNotExist(statErr) {
			pruneCmd := exec.CommandContext(ctx, "git", "worktree", "prune")
			pruneCmd.Dir = repoPath
			_ = pruneCmd.Run() //nolint:errcheck // best-effort cleanup of a worktree that's already gone
			return nil
		}
		return fmt.Errorf("git worktree remove failed: %s: %w", strings.TrimSpace(string(output)), err)
	}
	return nil
}

// ListWorktrees parses `git worktree list --porcelain`.
func (g GitCLI) ListWorktrees(repoPath string) ([]WorktreeInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "worktree", "list", "--porcelain")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git worktree list failed: %w", err)
	}

	var out []WorktreeInfo
	var cur WorktreeInfo
	flush := func() {
		if cur.Path != "" {
			out = append(out, cur)
		}
		cur = WorktreeInfo{}
	}
	for _, line := range strings.Split(string(output), "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			flush()
			cur.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			cur.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			cur.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		}
	}
	flush()
	return out, nil
}

// ChangedFiles returns files differing between baseBranch and the
// repository's current working tree (staged, unstaged, and committed
// since the merge-base), used by ValidationOrchestrator trigger matching.
func (g GitCLI) ChangedFiles(repoPath, baseBranch string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "diff", "--name-only", baseBranch+"...HEAD")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git diff against %s failed: %w", baseBranch, err)
	}

	statusCmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	statusCmd.Dir = repoPath
	statusOut, err := statusCmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}

	seen := map[string]bool{}
	var files []string
	add := func(f string) {
		f = strings.TrimSpace(f)
		if f != "" && !seen[f] {
			seen[f] = true
			files = append(files, f)
		}
	}
	for _, line := range strings.Split(string(output), "\n") {
		add(line)
	}
	for _, line := range strings.Split(string(statusOut), "\n") {
		if len(line) > 3 {
			add(line[3:])
		}
	}
	return files, nil
}

// HasUncommittedChanges shells out to `git status --porcelain`: go-git
// doesn't respect core.excludesfile, which produces false positives for
// globally ignored files (mirrors the teacher's HasUncommittedChanges).
func (g GitCLI) HasUncommittedChanges(repoPath string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("git status failed: %w", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}
