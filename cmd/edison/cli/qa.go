package cli

import (
	"github.com/spf13/cobra"

	"github.com/edison-dev/edison/internal/cliutil"
	"github.com/edison-dev/edison/internal/entity"
	"github.com/edison-dev/edison/internal/validation"
)

func newQACmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qa",
		Short: "Run and inspect QA validation rounds",
	}
	cmd.AddCommand(newQAValidateCmd())
	cmd.AddCommand(newQABundleCmd())
	cmd.AddCommand(newQAPromoteCmd())
	cmd.AddCommand(newQARoundCmd())
	return cmd
}

func newQAValidateCmd() *cobra.Command {
	var ff *formatFlags
	var preset string
	var round, maxWorkers int
	var execute, sequential, dryRun bool
	var addValidators, changedFiles, primaryFiles []string
	var scope string
	cmd := &cobra.Command{
		Use:   "validate <task-id>",
		Short: "Run a validator preset against a task's current round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "qa validate", "", format)
			if err != nil {
				return err
			}
			taskID := args[0]
			if preset == "" {
				preset = app.Orch.DefaultPreset
			}
			if round == 0 {
				round, err = app.Evidence.CurrentRound(taskID)
				if err != nil {
					round = 1
				}
			}

			orch := app.Validation
			if maxWorkers > 0 || sequential {
				cfgCopy := *app.Orch
				if maxWorkers > 0 {
					cfgCopy.MaxWorkers = maxWorkers
				}
				if sequential {
					cfgCopy.Sequential = true
				}
				orch = validation.NewOrchestrator(&cfgCopy, app.Evidence, map[string]validation.Engine{
					"secrets-scan": validation.NewSecretScanEngine(),
				})
			}

			run := !dryRun || execute
			taskIDs := []string{taskID}
			if scope == "hierarchy" {
				taskIDs = append(taskIDs, descendantTaskIDs(app, taskID)...)
			}

			var results []map[string]any
			for _, id := range taskIDs {
				r := round
				if id != taskID {
					if r, err = app.Evidence.CurrentRound(id); err != nil {
						r = 1
					}
				}
				result, err := orch.RunWithExtraValidators(cmd.Context(), id, r, preset, changedFiles, primaryFiles, addValidators, !run)
				if err != nil {
					return fail(cmd, format, err)
				}
				results = append(results, map[string]any{
					"taskId": result.TaskID, "round": result.Round, "preset": result.Preset,
					"passed": result.Passed, "failed": result.Failed, "approved": result.Approved,
					"stoppedAt": result.StoppedAt,
				})
			}
			if scope != "hierarchy" {
				return ok(cmd, format, results[0])
			}
			return ok(cmd, format, results)
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&preset, "preset", "", "validator preset name (defaults to orchestrator.default_preset)")
	cmd.Flags().IntVar(&round, "round", 0, "evidence round (defaults to the task's current round)")
	cmd.Flags().BoolVar(&execute, "execute", false, "force real validator dispatch even if --dry-run is set")
	cmd.Flags().BoolVar(&sequential, "sequential", false, "run each wave's validators one at a time regardless of config")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", 0, "override the configured per-wave worker cap")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write delegation records instead of dispatching validators")
	cmd.Flags().StringSliceVar(&addValidators, "add-validators", nil, "extra validator ids to include beyond the preset")
	cmd.Flags().StringVar(&scope, "scope", "task", "hierarchy|task: whether to include descendant tasks")
	cmd.Flags().StringSliceVar(&changedFiles, "changed-files", nil, "changed files driving trigger-pattern matching")
	cmd.Flags().StringSliceVar(&primaryFiles, "primary-files", nil, "primary files declared by the task")
	return cmd
}

// descendantTaskIDs walks a task's ChildIDs tree, returning every descendant
// task id (breadth-first, cycle-safe).
func descendantTaskIDs(app *cliutil.App, rootID string) []string {
	var out []string
	seen := map[string]bool{rootID: true}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		t, err := app.TaskStore.Get(entity.KindTask, id)
		if err != nil {
			continue
		}
		for _, childID := range t.ChildIDs {
			if seen[childID] {
				continue
			}
			seen[childID] = true
			out = append(out, childID)
			queue = append(queue, childID)
		}
	}
	return out
}

func newQABundleCmd() *cobra.Command {
	var ff *formatFlags
	var round int
	cmd := &cobra.Command{
		Use:   "bundle <task-id>",
		Short: "Show validator report completeness and bundle approval status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "qa bundle", "", format)
			if err != nil {
				return err
			}
			taskID := args[0]
			if round == 0 {
				round, err = app.Evidence.CurrentRound(taskID)
				if err != nil {
					round = 1
				}
			}
			complete, missing, err := app.Evidence.ValidatorReportsComplete(taskID, round)
			if err != nil {
				return fail(cmd, format, err)
			}
			approved, err := app.Evidence.HasBundleApproval(taskID, round)
			if err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, map[string]any{
				"taskId": taskID, "round": round,
				"reportsComplete": complete, "missingValidators": missing, "bundleApproved": approved,
			})
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().IntVar(&round, "round", 0, "evidence round (defaults to the task's current round)")
	return cmd
}

func newQAPromoteCmd() *cobra.Command {
	var ff *formatFlags
	var toState string
	cmd := &cobra.Command{
		Use:   "promote <task-id>",
		Short: "Move a task's QA record to the state given by --to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "qa promote", "", format)
			if err != nil {
				return err
			}
			qaID := entity.QARecordID(args[0])
			qa, err := app.QAStore.Get(entity.KindQA, qaID)
			if err != nil {
				return fail(cmd, format, notFoundOrWrap(err, "qa record", qaID))
			}
			if toState == "" {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeConfigInvalid, "--to is required"))
			}
			if _, err := app.QAMachine.Transition(qa, toState, "qa promote", nil); err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, entityToPayload(qa))
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&toState, "to", "", "target QA state")
	return cmd
}

func newQARoundCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "round <task-id>",
		Short: "Show a task's current evidence round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "qa round", "", format)
			if err != nil {
				return err
			}
			round, err := app.Evidence.CurrentRound(args[0])
			if err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, map[string]any{"taskId": args[0], "round": round})
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}
