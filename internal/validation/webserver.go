package validation

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/edison-dev/edison/internal/config"
)

// webServerGuard implements the QA web-server guard described in
// SPEC_FULL.md §C.4 (supplemented from original_source's
// qa/web_server.py): ensure a dev server is reachable before a validator
// runs, optionally starting and later stopping it.
type webServerGuard struct {
	spec config.WebServerSpec
}

// webServerGuardFor returns a guard for validators that declare a
// web_server block, and false otherwise.
func webServerGuardFor(v config.ValidatorSpec) (*webServerGuard, bool) {
	if v.WebServer == nil {
		return nil, false
	}
	return &webServerGuard{spec: *v.WebServer}, true
}

// Ensure makes the configured URL respond, starting it via StartCommand if
// it isn't already up. It returns a stop func to call when the validator
// finishes (nil if nothing was started by this call, i.e. the server was
// already running or EnsureRunning is false).
func (g *webServerGuard) Ensure(ctx context.Context) (func(), error) {
	if g.healthy(ctx) {
		return nil, nil
	}
	if !g.spec.EnsureRunning {
		return nil, fmt.Errorf("web server at %s is not reachable and ensure_running is false", g.spec.URL)
	}
	if g.spec.StartCommand == "" {
		return nil, fmt.Errorf("web server at %s is not reachable and no start_command is configured", g.spec.URL)
	}

	cmd := startCommand(g.spec.StartCommand)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting web server via %q: %w", g.spec.StartCommand, err)
	}

	timeout := time.Duration(g.spec.StartupTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if g.healthy(ctx) {
			return func() { g.stop(cmd) }, nil
		}
		select {
		case <-ctx.Done():
			g.stop(cmd)
			return nil, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	g.stop(cmd)
	return nil, fmt.Errorf("web server at %s did not become healthy within %s", g.spec.URL, timeout)
}

func (g *webServerGuard) healthy(ctx context.Context) bool {
	url := g.spec.HealthcheckURL
	if url == "" {
		url = g.spec.URL
	}
	if url == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close() //nolint:errcheck // health probe body is discarded
	return resp.StatusCode < 500
}

// stop runs StopCommand if configured, otherwise sends SIGTERM to the
// started process and escalates to SIGKILL after a grace period.
func (g *webServerGuard) stop(cmd *exec.Cmd) {
	if g.spec.StopCommand != "" {
		stopCmd := startCommand(g.spec.StopCommand)
		_ = stopCmd.Run() //nolint:errcheck // best-effort teardown
		return
	}
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck // best-effort graceful stop
	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }() //nolint:errcheck
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill() //nolint:errcheck // escalate after grace period
	}
}

func startCommand(shellLine string) *exec.Cmd {
	return exec.Command("sh", "-c", strings.TrimSpace(shellLine)) //nolint:gosec // shellLine is operator-authored execution.yml config, not user input
}
