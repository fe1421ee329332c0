package cli

import (
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/edison-dev/edison/internal/cliutil"
	"github.com/edison-dev/edison/internal/entity"
	"github.com/edison-dev/edison/internal/similarity"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskClaimCmd())
	cmd.AddCommand(newTaskReadyCmd())
	cmd.AddCommand(newTaskStatusCmd())
	cmd.AddCommand(newTaskBlockedCmd())
	cmd.AddCommand(newTaskSimilarCmd())
	return cmd
}

func newTaskCreateCmd() *cobra.Command {
	var ff *formatFlags
	var title, body, sessionID, owner, parentID string
	var dependsOn, tags []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task in the todo state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			if title == "" {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeConfigInvalid, "--title is required"))
			}
			sid := resolveSessionID(sessionID)
			app, err := loadApp(cmd, "task create", sid, format)
			if err != nil {
				return err
			}

			store := app.TaskStore
			if sid != "" {
				store, err = app.ScopedTaskStore(sid)
				if err != nil {
					return fail(cmd, format, err)
				}
			}

			now := time.Now().UTC()
			task := &entity.Entity{
				Kind:      entity.KindTask,
				ID:        uuid.NewString(),
				Title:     title,
				State:     "todo",
				SessionID: sid,
				Owner:     owner,
				Tags:      tags,
				DependsOn: dependsOn,
				ParentID:  parentID,
				Metadata:  entity.Metadata{CreatedAt: now, UpdatedAt: now, CreatedBy: owner},
				Body:      body,
			}
			if err := store.Create(task); err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, entityToPayload(task))
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&body, "body", "", "task body (markdown)")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "owning session id (empty = global task pool)")
	cmd.Flags().StringVar(&owner, "owner", "", "task owner")
	cmd.Flags().StringVar(&parentID, "parent-id", "", "parent task id")
	cmd.Flags().StringSliceVar(&dependsOn, "depends-on", nil, "task ids this task depends on")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags")
	return cmd
}

func newTaskClaimCmd() *cobra.Command {
	var ff *formatFlags
	var sessionID string
	cmd := &cobra.Command{
		Use:   "claim <task-id>",
		Short: "Move a task from todo to wip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			sid := resolveSessionID(sessionID)
			app, err := loadApp(cmd, "task claim", sid, format)
			if err != nil {
				return err
			}
			task, err := app.TaskStore.Get(entity.KindTask, args[0])
			if err != nil {
				return fail(cmd, format, notFoundOrWrap(err, "task", args[0]))
			}
			if _, err := app.TaskMachine.Transition(task, "wip", "claimed", nil); err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, entityToPayload(task))
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id for worktree enforcement (defaults to AGENTS_SESSION / worktree pin)")
	return cmd
}

func newTaskStatusCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show a task's current state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "task status", "", format)
			if err != nil {
				return err
			}
			task, err := app.TaskStore.Get(entity.KindTask, args[0])
			if err != nil {
				return fail(cmd, format, notFoundOrWrap(err, "task", args[0]))
			}
			return ok(cmd, format, entityToPayload(task))
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}

func newTaskReadyCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "List todo tasks whose dependencies are satisfied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "task ready", "", format)
			if err != nil {
				return err
			}
			evalr, err := app.ReadinessEvaluator()
			if err != nil {
				return fail(cmd, format, err)
			}
			var rows []map[string]any
			for _, t := range evalr.Ready() {
				rows = append(rows, entityToPayload(t))
			}
			return ok(cmd, format, rows)
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}

func newTaskBlockedCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "blocked",
		Short: "List todo tasks blocked on unsatisfied dependencies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "task blocked", "", format)
			if err != nil {
				return err
			}
			evalr, err := app.ReadinessEvaluator()
			if err != nil {
				return fail(cmd, format, err)
			}
			var rows []map[string]any
			for _, b := range evalr.Blocked() {
				rows = append(rows, map[string]any{
					"id":          b.ID,
					"diagnostics": b.Diagnostics,
				})
			}
			return ok(cmd, format, rows)
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}

func newTaskSimilarCmd() *cobra.Command {
	var ff *formatFlags
	var threshold float64
	var topK int
	cmd := &cobra.Command{
		Use:   "similar <title-or-task-id>",
		Short: "Find tasks similar to the given title or existing task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "task similar", "", format)
			if err != nil {
				return err
			}
			states := map[string]bool{}
			for _, s := range app.Workflow.TaskStates {
				states[s] = true
			}
			idx, err := similarity.BuildFromStore(app.TaskStore, app.TaskCfg, states)
			if err != nil {
				return fail(cmd, format, err)
			}
			query := args[0]
			if existing, err := app.TaskStore.Get(entity.KindTask, args[0]); err == nil {
				query = existing.Title
			}
			matches := idx.Search(query, app.TaskCfg.SimilarityThreshold, topK, nil)
			if threshold > 0 {
				matches = idx.Search(query, threshold, topK, nil)
			}
			var rows []map[string]any
			for _, m := range matches {
				rows = append(rows, m.ToSessionNextDict())
			}
			return ok(cmd, format, rows)
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "override the configured similarity threshold")
	cmd.Flags().IntVar(&topK, "top", 5, "maximum number of matches to return")
	return cmd
}
