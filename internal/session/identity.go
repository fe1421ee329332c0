package session

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/denisbrodbeck/machineid"

	"github.com/edison-dev/edison/internal/paths"
)

// knownAgentProcessNames is the set spec §4.8 names as "a known agent set".
var knownAgentProcessNames = map[string]bool{
	"claude": true, "codex": true, "gemini": true,
	"cursor": true, "aider": true, "happy": true, "edison": true,
}

// InferSessionID implements infer_session_id: walk the process ancestry
// from the current process upward, and name the session after the topmost
// (highest) ancestor whose process name matches a known agent,
// falling back to the current process if none match.
func InferSessionID() (string, error) {
	name, pid := topmostAgentAncestor()
	id, err := paths.SanitizeSessionID(fmt.Sprintf("%s-pid-%d", name, pid))
	if err != nil {
		return "", fmt.Errorf("inferring session id: %w", err)
	}
	return id, nil
}

// topmostAgentAncestor walks /proc ancestry on Linux looking for the
// highest ancestor whose process name is in knownAgentProcessNames.
// On platforms without /proc (or if the walk fails partway), it falls
// back to the current process's own name and PID — session identity
// degrades gracefully rather than failing closed, since a session ID is
// advisory naming, not a security boundary.
func topmostAgentAncestor() (string, int) {
	selfPID := os.Getpid()
	selfName := processName(selfPID)

	if runtime.GOOS != "linux" {
		return selfName, selfPID
	}

	bestName := selfName
	bestPID := selfPID
	pid := selfPID
	for depth := 0; depth < 64; depth++ {
		name := processName(pid)
		if name == "" {
			break
		}
		if knownAgentProcessNames[name] {
			bestName = name
			bestPID = pid
		}
		parent, ok := parentPID(pid)
		if !ok || parent == pid || parent <= 1 {
			break
		}
		pid = parent
	}
	return bestName, bestPID
}

func processName(pid int) string {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "comm")) //nolint:gosec // pid is derived from getpid()/procfs ancestry, not user input
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func parentPID(pid int) (int, bool) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat")) //nolint:gosec // pid is derived from getpid()/procfs ancestry
	if err != nil {
		return 0, false
	}
	// Format: pid (comm) state ppid ... — comm may contain spaces/parens,
	// so find the last ')' before reading the fixed-offset fields after it.
	text := string(data)
	close := strings.LastIndexByte(text, ')')
	if close < 0 || close+2 >= len(text) {
		return 0, false
	}
	fields := strings.Fields(text[close+2:])
	if len(fields) < 2 {
		return 0, false
	}
	ppid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return ppid, true
}

// MachineID returns machineid.ProtectedID("edison"), a stable per-machine
// identifier, or "unknown-machine" when none can be read. InferSessionID
// does not use it, and telemetry derives its distinct id from machineid
// directly.
func MachineID() string {
	id, err := machineid.ProtectedID("edison")
	if err != nil {
		return "unknown-machine"
	}
	return id
}
