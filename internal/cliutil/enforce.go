package cliutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

// commandEnforced reports whether commandPath (e.g. "evidence capture")
// matches an entry in the configured enforcement command list. Matching is
// exact against the joined subcommand path, mirroring how
// session.worktree.enforcement.commands is authored in config.
func commandEnforced(commands []string, commandPath string) bool {
	for _, c := range commands {
		if strings.TrimSpace(c) == commandPath {
			return true
		}
	}
	return false
}

func within(cwd, root string) bool {
	if root == "" {
		return false
	}
	cwdAbs, err1 := filepath.Abs(cwd)
	rootAbs, err2 := filepath.Abs(root)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(rootAbs, cwdAbs)
	if err != nil {
		return false
	}
	return rel == "." || !strings.HasPrefix(rel, "..")
}

// sessionWorktreePath extracts the git.worktreePath extras field from a
// loaded session entity. The round trip through frontmatter YAML decodes
// the git{} block as map[string]any rather than the session.GitInfo struct
// it was written from, so both shapes are handled.
func sessionWorktreePath(extras map[string]any) string {
	if extras == nil {
		return ""
	}
	switch git := extras["git"].(type) {
	case map[string]any:
		if p, ok := git["worktreePath"].(string); ok {
			return p
		}
	case map[any]any:
		if p, ok := git[interface{}("worktreePath")].(string); ok {
			return p
		}
	}
	return ""
}

// CheckWorktreeEnforcement implements spec §6.1's optional worktree
// enforcement dispatcher: for commands named in
// session.worktree.enforcement.commands, a mutating invocation must run
// either inside the session's pinned worktree or inside the primary
// checkout (app.Root); any other CWD is blocked.
//
// A missing or worktree-less session is never blocked: enforcement only
// fires once a worktree has actually been pinned for this session. Callers
// render the returned *CommandError through RenderError and then return
// NewSilentErrorWithCode(err, ExitWorktreeEnforcement) so main exits 2
// without printing a second time.
func (a *App) CheckWorktreeEnforcement(commandPath, sessionID, cwd string) *CommandError {
	if !a.Exec.EnforcementEnabled || !commandEnforced(a.Exec.EnforcementCommands, commandPath) {
		return nil
	}
	if sessionID == "" {
		return nil
	}
	sess, err := a.Sessions.Get(sessionID)
	if err != nil {
		return nil
	}
	worktreePath := sessionWorktreePath(sess.Extras)
	if worktreePath == "" {
		return nil
	}
	if within(cwd, worktreePath) || within(cwd, a.Root) {
		return nil
	}
	return NewCommandError(CodeWorktreeEnforced, fmt.Sprintf(
		"%q must run inside the pinned worktree (%s) or the primary checkout", commandPath, worktreePath)).
		WithContext("sessionId", sessionID).
		WithContext("worktreePath", worktreePath).
		WithContext("hint", fmt.Sprintf("cd %s", worktreePath))
}
