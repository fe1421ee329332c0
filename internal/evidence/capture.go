package evidence

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/creack/pty"
)

// CaptureResult is the outcome of running a CI command for evidence.
type CaptureResult struct {
	Stdout   string
	ExitCode int
}

// RunCommand executes name with args under cwd and captures combined
// output. When usePTY is set (the --pty flag of `evidence capture`), the
// process is attached to a pseudo-terminal so captured
// output matches what an interactive agent shell would see — preserving
// color codes and progress-bar redraws that a plain pipe would flatten.
func RunCommand(ctx context.Context, cwd string, usePTY bool, name string, args ...string) (*CaptureResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = cwd

	if usePTY {
		f, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("starting command under pty: %w", err)
		}
		defer f.Close() //nolint:errcheck // best-effort pty cleanup

		var buf bytes.Buffer
		_, _ = buf.ReadFrom(f)
		err = cmd.Wait()
		exitCode := exitCodeOf(err)
		return &CaptureResult{Stdout: buf.String(), ExitCode: exitCode}, nil
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return &CaptureResult{Stdout: buf.String(), ExitCode: exitCodeOf(err)}, nil
}

func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return 1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
