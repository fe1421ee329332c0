package cli

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edison-dev/edison/internal/cliutil"
	"github.com/edison-dev/edison/internal/evidence"
)

func newEvidenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evidence",
		Short: "Capture and inspect task evidence",
	}
	cmd.AddCommand(newEvidenceInitCmd())
	cmd.AddCommand(newEvidenceCaptureCmd())
	cmd.AddCommand(newEvidenceStatusCmd())
	cmd.AddCommand(newEvidenceContext7Cmd())
	return cmd
}

func newEvidenceInitCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "init <task-id>",
		Short: "Ensure round 1's evidence directory exists for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "evidence init", "", format)
			if err != nil {
				return err
			}
			dir, err := app.Evidence.EnsureRound(args[0], 1)
			if err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, map[string]any{"taskId": args[0], "roundDir": dir})
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}

func newEvidenceCaptureCmd() *cobra.Command {
	var ff *formatFlags
	var taskID, commandName string
	var round int
	var usePTY bool
	cmd := &cobra.Command{
		Use:   "capture <task-id> -- <command> [args...]",
		Short: "Run a command and persist its output as command evidence",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			sid := resolveSessionID("")
			app, err := loadApp(cmd, "evidence capture", sid, format)
			if err != nil {
				return err
			}
			taskID = args[0]
			commandArgs := args[1:]
			if len(commandArgs) > 0 && commandArgs[0] == "--" {
				commandArgs = commandArgs[1:]
			}
			if len(commandArgs) == 0 {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeConfigInvalid, "no command given after the task id"))
			}
			if round == 0 {
				round, err = app.Evidence.CurrentRound(taskID)
				if err != nil {
					round = 1
				}
			}
			if commandName == "" {
				commandName = commandArgs[0]
			}
			cwd, err := os.Getwd()
			if err != nil {
				return fail(cmd, format, err)
			}
			result, err := evidence.RunCommand(cmd.Context(), cwd, usePTY, commandArgs[0], commandArgs[1:]...)
			if err != nil {
				return fail(cmd, format, err)
			}
			ce := evidence.CommandEvidence{
				EvidenceVersion: 1,
				EvidenceKind:    "command",
				TaskID:          taskID,
				Round:           round,
				CommandName:     commandName,
				Command:         strings.Join(commandArgs, " "),
				Cwd:             cwd,
				ExitCode:        result.ExitCode,
			}
			if err := app.Evidence.WriteCommandEvidence(taskID, round, ce, result.Stdout); err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, map[string]any{
				"taskId": taskID, "round": round, "exitCode": result.ExitCode, "commandName": commandName,
			})
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().IntVar(&round, "round", 0, "evidence round (defaults to the task's current round)")
	cmd.Flags().StringVar(&commandName, "name", "", "logical command name (defaults to the invoked binary)")
	cmd.Flags().BoolVar(&usePTY, "pty", false, "run the command under a pseudo-terminal")
	return cmd
}

func newEvidenceStatusCmd() *cobra.Command {
	var ff *formatFlags
	var round int
	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the current round and any missing required evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "evidence status", "", format)
			if err != nil {
				return err
			}
			taskID := args[0]
			currentRound := round
			if currentRound == 0 {
				currentRound, err = app.Evidence.CurrentRound(taskID)
				if err != nil {
					currentRound = 1
				}
			}
			blockers, err := app.Evidence.MissingEvidenceBlockers(taskID, currentRound)
			if err != nil {
				return fail(cmd, format, err)
			}
			passing, _ := app.Evidence.HasPassingTests(taskID, currentRound)
			return ok(cmd, format, map[string]any{
				"taskId":           taskID,
				"round":            currentRound,
				"missingEvidence":  blockers,
				"hasPassingTests":  passing,
			})
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().IntVar(&round, "round", 0, "evidence round to inspect (defaults to the task's current round)")
	return cmd
}

func newEvidenceContext7Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context7",
		Short: "Manage context7 documentation snapshots",
	}
	cmd.AddCommand(newEvidenceContext7TemplateCmd())
	cmd.AddCommand(newEvidenceContext7SaveCmd())
	cmd.AddCommand(newEvidenceContext7ListCmd())
	return cmd
}

func newEvidenceContext7TemplateCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Print the configured trigger packages a context7 lookup should cover",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "evidence context7 template", "", format)
			if err != nil {
				return err
			}
			return ok(cmd, format, map[string]any{
				"enabled":         app.Context7.Enabled,
				"triggerPackages": app.Context7.TriggerPackages,
			})
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}

func newEvidenceContext7SaveCmd() *cobra.Command {
	var ff *formatFlags
	var taskID, pkg, libraryID, version, docs string
	var round int
	var topics []string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Persist a fetched context7 documentation snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			if taskID == "" || pkg == "" {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeConfigInvalid, "--task and --package are required"))
			}
			app, err := loadApp(cmd, "evidence context7 save", "", format)
			if err != nil {
				return err
			}
			if round == 0 {
				round, err = app.Evidence.CurrentRound(taskID)
				if err != nil {
					round = 1
				}
			}
			marker := &evidence.Context7Marker{
				Package: pkg, LibraryID: libraryID, Topics: topics,
				QueriedAt: time.Now().UTC(), Version: version,
			}
			if err := app.Evidence.WriteContext7Marker(taskID, round, marker, docs); err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, map[string]any{"taskId": taskID, "package": pkg, "round": round})
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().IntVar(&round, "round", 0, "evidence round (defaults to the task's current round)")
	cmd.Flags().StringVar(&pkg, "package", "", "package name")
	cmd.Flags().StringVar(&libraryID, "library-id", "", "context7 library id")
	cmd.Flags().StringVar(&version, "version", "", "library version")
	cmd.Flags().StringSliceVar(&topics, "topics", nil, "topics covered")
	cmd.Flags().StringVar(&docs, "docs", "", "the fetched documentation body")
	return cmd
}

func newEvidenceContext7ListCmd() *cobra.Command {
	var ff *formatFlags
	var taskID, pkg string
	var round int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show a saved context7 documentation snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			if taskID == "" || pkg == "" {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeConfigInvalid, "--task and --package are required"))
			}
			app, err := loadApp(cmd, "evidence context7 list", "", format)
			if err != nil {
				return err
			}
			if round == 0 {
				round, err = app.Evidence.CurrentRound(taskID)
				if err != nil {
					round = 1
				}
			}
			marker, docs, err := app.Evidence.ReadContext7Marker(taskID, round, pkg)
			if err != nil {
				return fail(cmd, format, err)
			}
			if marker == nil {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeNotFound, "no context7 snapshot found for this task/package/round"))
			}
			return ok(cmd, format, map[string]any{
				"package": marker.Package, "libraryId": marker.LibraryID,
				"topics": marker.Topics, "queriedAt": marker.QueriedAt, "docs": docs,
			})
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().IntVar(&round, "round", 0, "evidence round (defaults to the task's current round)")
	cmd.Flags().StringVar(&pkg, "package", "", "package name")
	return cmd
}
