// Package cli assembles edison's cobra command tree: one file per
// CommandSurface group (session, task, evidence, qa, rules, config,
// compose), wired to internal/cliutil.App.
package cli

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/edison-dev/edison/internal/cliutil"
	"github.com/edison-dev/edison/internal/paths"
	"github.com/edison-dev/edison/internal/telemetry"
)

// Version information, set at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

const gettingStarted = `

Getting Started:
  edison orchestrates a multi-agent development workflow: tasks move through
  todo -> wip -> done -> validated, gated by recorded evidence and QA rounds.
  Run 'edison session create' to start, then 'edison task create' to add work.
`

// NewRootCmd builds the edison command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "edison",
		Short:         "Edison development workflow engine",
		Long:          "A command-line interface for the Edison workflow engine." + gettingStarted,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			trackCommand(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newSessionCmd())
	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newEvidenceCmd())
	cmd.AddCommand(newQACmd())
	cmd.AddCommand(newRulesCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newComposeCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// trackCommand fires a best-effort telemetry event for cmd. It never fails
// the command: a telemetry or config error just means no event is sent.
func trackCommand(cmd *cobra.Command) {
	root, err := cliutil.NewApp("", "")
	if err != nil {
		telemetry.NewClient(Version, nil).TrackCommand(cmd, "", "")
		return
	}
	client := telemetry.NewClient(Version, root.Telemetry)
	defer client.Close()

	sessionID := os.Getenv(paths.SessionEnvVar)
	client.TrackCommand(cmd, sessionID, "")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("edison %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
