package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/edison-dev/edison/internal/cliutil"
	"github.com/edison-dev/edison/internal/paths"
)

// formatFlags holds the --format/--json pair every command accepts.
type formatFlags struct {
	format string
	json   bool
}

func addFormatFlags(cmd *cobra.Command) *formatFlags {
	f := &formatFlags{}
	cmd.Flags().StringVar(&f.format, "format", "", "output format: markdown, yaml, text, json (default markdown on a terminal, text otherwise)")
	cmd.Flags().BoolVar(&f.json, "json", false, "shorthand for --format json")
	return f
}

// isOutputTerminal reports whether stdout is an interactive terminal,
// deciding the default output format when --format/--json were not given.
var isOutputTerminal = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func (f *formatFlags) resolve() (cliutil.Format, error) {
	if f.format == "" && !f.json && !isOutputTerminal() {
		return cliutil.FormatText, nil
	}
	return cliutil.ParseFormat(f.format, f.json)
}

// resolveSessionID returns the --session-id flag value, falling back to the
// worktree pin (.project/.session-id in the working directory or its nearest
// ancestor that has one) and then to the AGENTS_SESSION env var, per spec's
// zero-env resolution contract.
func resolveSessionID(flagVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if dir, err := os.Getwd(); err == nil {
		for {
			if pin, err := paths.ReadWorktreePin(dir); err == nil && pin != "" {
				return pin
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return os.Getenv(paths.SessionEnvVar)
}

// loadApp builds the App bootstrap and enforces any configured worktree
// pinning for commandPath before a command proceeds. On enforcement
// failure it renders the error in the requested format and returns a
// SilentError carrying exit code 2.
func loadApp(cmd *cobra.Command, commandPath, sessionID string, format cliutil.Format) (*cliutil.App, error) {
	app, err := cliutil.NewApp("", "")
	if err != nil {
		cliutil.RenderError(cmd.ErrOrStderr(), format, err)
		return nil, cliutil.NewSilentError(err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		cliutil.RenderError(cmd.ErrOrStderr(), format, err)
		return nil, cliutil.NewSilentError(err)
	}
	if cmdErr := app.CheckWorktreeEnforcement(commandPath, sessionID, cwd); cmdErr != nil {
		cliutil.RenderError(cmd.ErrOrStderr(), format, cmdErr)
		return nil, cliutil.NewSilentErrorWithCode(cmdErr, cliutil.ExitWorktreeEnforcement)
	}
	return app, nil
}

// fail renders err in the requested format to stderr and returns the
// SilentError main.go uses to pick the process exit code.
func fail(cmd *cobra.Command, format cliutil.Format, err error) error {
	cliutil.RenderError(cmd.ErrOrStderr(), format, err)
	return cliutil.NewSilentError(err)
}

// ok renders payload in the requested format to stdout.
func ok(cmd *cobra.Command, format cliutil.Format, payload any) error {
	return cliutil.RenderValue(cmd.OutOrStdout(), format, payload)
}
