package cli

import (
	"github.com/spf13/cobra"

	"github.com/edison-dev/edison/internal/cliutil"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate the layered configuration",
	}
	cmd.AddCommand(newConfigValidateCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load every domain config and lint the orchestrator's validator rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "config validate", "", format)
			if err != nil {
				return err
			}
			warnings := app.Orch.Lint()
			payload := map[string]any{
				"valid":    len(warnings) == 0,
				"warnings": warnings,
			}
			if len(warnings) > 0 {
				return fail(cmd, format, cliutil.NewCommandError(cliutil.CodeConfigInvalid, "orchestrator config has lint warnings").
					WithContext("warnings", warnings))
			}
			return ok(cmd, format, payload)
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the fully merged configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			if ff.format == "" && !ff.json {
				format = cliutil.FormatYAML
			}
			app, err := loadApp(cmd, "config show", "", format)
			if err != nil {
				return err
			}
			payload := map[string]any{
				"workflow":     app.Workflow,
				"task":         app.TaskCfg,
				"qa":           app.QACfg,
				"orchestrator": app.Orch,
				"execution":    app.Exec,
				"context7":     app.Context7,
				"adapters":     app.Adapters,
				"resilience":   app.Resilience,
				"compose":      app.ComposeCfg,
				"telemetry":    app.Telemetry,
			}
			return ok(cmd, format, payload)
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}
