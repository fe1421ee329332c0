package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edison-dev/edison/internal/cliutil"
	"github.com/edison-dev/edison/internal/entity"
	"github.com/edison-dev/edison/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage edison sessions",
	}
	cmd.AddCommand(newSessionCreateCmd())
	cmd.AddCommand(newSessionStatusCmd())
	cmd.AddCommand(newSessionNextCmd())
	cmd.AddCommand(newSessionCompleteCmd())
	cmd.AddCommand(newSessionSyncGitCmd())
	cmd.AddCommand(newSessionWorktreeRestoreCmd())
	return cmd
}

func newSessionCreateCmd() *cobra.Command {
	var ff *formatFlags
	var sessionID, owner string
	var noWorktree, restore bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or resume a session, optionally binding a git worktree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "session create", sessionID, format)
			if err != nil {
				return err
			}
			result, err := app.Sessions.Create(session.CreateOptions{
				ID: sessionID, Owner: owner, NoWorktree: noWorktree, Restore: restore,
			})
			if err != nil {
				return fail(cmd, format, err)
			}
			payload := map[string]any{
				"sessionId":         result.Session.ID,
				"sessionIdFilePath": result.SessionIDFilePath,
				"worktreePinned":    result.WorktreePinned,
			}
			if result.ArchivedWorktreePath != "" {
				payload["archivedWorktreePath"] = result.ArchivedWorktreePath
			}
			return ok(cmd, format, payload)
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&sessionID, "session-id", "", "explicit session id (inferred from the calling process when omitted)")
	cmd.Flags().StringVar(&owner, "owner", "", "session owner")
	cmd.Flags().BoolVar(&noWorktree, "no-worktree", false, "skip git worktree creation")
	cmd.Flags().BoolVar(&restore, "restore", false, "restore an archived worktree for this session id")
	return cmd
}

func newSessionStatusCmd() *cobra.Command {
	var ff *formatFlags
	var sessionID string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show a session's current state and tracked entities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			sid := resolveSessionID(sessionID)
			app, err := loadApp(cmd, "session status", sid, format)
			if err != nil {
				return err
			}
			if sid == "" {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeNotFound, "no session id provided and none could be inferred"))
			}
			sess, err := app.Sessions.Get(sid)
			if err != nil {
				return fail(cmd, format, notFoundOrWrap(err, "session", sid))
			}
			return ok(cmd, format, entityToPayload(sess))
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (defaults to AGENTS_SESSION / worktree pin)")
	return cmd
}

func newSessionNextCmd() *cobra.Command {
	var ff *formatFlags
	var sessionID string
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Recommend the next action(s) for this session's tracked tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			sid := resolveSessionID(sessionID)
			app, err := loadApp(cmd, "session next", sid, format)
			if err != nil {
				return err
			}
			sess, err := app.Sessions.Get(sid)
			if err != nil {
				return fail(cmd, format, notFoundOrWrap(err, "session", sid))
			}
			plan, err := app.Sessions.Next(sess, storeTaskStatusLookup{app: app}, app.Evidence)
			if err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, plan)
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (defaults to AGENTS_SESSION / worktree pin)")
	return cmd
}

func newSessionCompleteCmd() *cobra.Command {
	var ff *formatFlags
	var sessionID string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Close a session: migrate its tasks/QA records back to the global tree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			sid := resolveSessionID(sessionID)
			app, err := loadApp(cmd, "session complete", sid, format)
			if err != nil {
				return err
			}
			if sid == "" {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeNotFound, "no session id provided and none could be inferred"))
			}
			scopedTasks, err := app.ScopedTaskStore(sid)
			if err != nil {
				return fail(cmd, format, err)
			}
			scopedQA, err := app.ScopedQAStore(sid)
			if err != nil {
				return fail(cmd, format, err)
			}
			result, err := app.Sessions.Close(sid, scopedTasks, scopedQA)
			if err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, map[string]any{
				"movedTasks":  result.MovedTasks,
				"movedQA":     result.MovedQA,
				"rolledBack":  result.RolledBack,
			})
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (defaults to AGENTS_SESSION / worktree pin)")
	return cmd
}

func newSessionSyncGitCmd() *cobra.Command {
	var ff *formatFlags
	var sessionID string
	cmd := &cobra.Command{
		Use:   "sync-git",
		Short: "Show a session's record with its recorded git{} metadata (not re-read from the worktree)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			sid := resolveSessionID(sessionID)
			app, err := loadApp(cmd, "session sync-git", sid, format)
			if err != nil {
				return err
			}
			sess, err := app.Sessions.Get(sid)
			if err != nil {
				return fail(cmd, format, notFoundOrWrap(err, "session", sid))
			}
			return ok(cmd, format, entityToPayload(sess))
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id (defaults to AGENTS_SESSION / worktree pin)")
	return cmd
}

func newSessionWorktreeRestoreCmd() *cobra.Command {
	var ff *formatFlags
	var sessionID string
	cmd := &cobra.Command{
		Use:   "worktree-restore",
		Short: "Recreate a session's worktree from its archived branch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			sid := resolveSessionID(sessionID)
			app, err := loadApp(cmd, "session worktree-restore", sid, format)
			if err != nil {
				return err
			}
			result, err := app.Sessions.Create(session.CreateOptions{ID: sid, Restore: true})
			if err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, map[string]any{
				"sessionId":      result.Session.ID,
				"worktreePinned": result.WorktreePinned,
			})
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id to restore")
	return cmd
}

// storeTaskStatusLookup implements session.TaskStatusLookup by reading the
// task/QA's current on-disk state, which doubles as its status under the
// directory-is-authoritative invariant.
type storeTaskStatusLookup struct{ app *cliutil.App }

func (l storeTaskStatusLookup) TaskStatus(taskID string) string {
	ent, err := l.app.TaskStore.Get(entity.KindTask, taskID)
	if err != nil {
		return ""
	}
	return ent.State
}

func (l storeTaskStatusLookup) QAStatus(taskID string) string {
	ent, err := l.app.QAStore.Get(entity.KindQA, entity.QARecordID(taskID))
	if err != nil {
		return ""
	}
	return ent.State
}

func notFoundOrWrap(err error, kind, id string) error {
	if err == entity.ErrNotFound {
		return cliutil.NewCommandError(cliutil.CodeNotFound, fmt.Sprintf("%s %q not found", kind, id))
	}
	return err
}

func entityToPayload(e *entity.Entity) map[string]any {
	payload := map[string]any{
		"id":        e.ID,
		"title":     e.Title,
		"state":     e.State,
		"sessionId": e.SessionID,
		"owner":     e.Owner,
	}
	if len(e.DependsOn) > 0 {
		payload["dependsOn"] = e.DependsOn
	}
	if len(e.Tags) > 0 {
		payload["tags"] = e.Tags
	}
	if e.ParentID != "" {
		payload["parentId"] = e.ParentID
	}
	if len(e.ChildIDs) > 0 {
		payload["childIds"] = e.ChildIDs
	}
	for k, v := range e.Extras {
		payload[k] = v
	}
	return payload
}
