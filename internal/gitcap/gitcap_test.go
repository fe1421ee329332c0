package gitcap

import (
	"os/exec"
	"testing"
)

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available in PATH")
	}
}

func initRepo(t *testing.T) string {
	t.Helper()
	requireGit(t)
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	if err := exec.Command("sh", "-c", "echo hi > "+dir+"/README.md").Run(); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func TestCreateAndListAndRemoveWorktree(t *testing.T) {
	repo := initRepo(t)
	wtPath := repo + "-wt"
	g := New()

	if err := g.CreateWorktree(repo, wtPath, "feature/x", "main"); err != nil {
		t.Fatalf("CreateWorktree: %v", err)
	}

	list, err := g.ListWorktrees(repo)
	if err != nil {
		t.Fatalf("ListWorktrees: %v", err)
	}
	found := false
	for _, wt := range list {
		if wt.Path == wtPath {
			found = true
			if wt.Branch != "feature/x" {
				t.Errorf("expected branch feature/x, got %q", wt.Branch)
			}
		}
	}
	if !found {
		t.Fatalf("expected %s in worktree list, got %+v", wtPath, list)
	}

	if err := g.RemoveWorktree(repo, wtPath); err != nil {
		t.Fatalf("RemoveWorktree: %v", err)
	}
}

func TestBranchExistsLocally(t *testing.T) {
	repo := initRepo(t)
	g := New()

	exists, err := g.BranchExistsLocally(repo, "main")
	if err != nil {
		t.Fatalf("BranchExistsLocally: %v", err)
	}
	if !exists {
		t.Error("expected main branch to exist")
	}

	exists, err = g.BranchExistsLocally(repo, "does-not-exist")
	if err != nil {
		t.Fatalf("BranchExistsLocally: %v", err)
	}
	if exists {
		t.Error("expected nonexistent branch to report false")
	}
}

func TestCurrentBranch(t *testing.T) {
	repo := initRepo(t)
	g := New()
	branch, err := g.CurrentBranch(repo)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("expected main, got %q", branch)
	}
}
