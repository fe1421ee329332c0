// Package telemetry sends best-effort, fire-and-forget usage events for the
// edison CLI. It never blocks command execution and never turns a telemetry
// failure into a command failure.
package telemetry

import (
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/posthog/posthog-go"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/edison-dev/edison/internal/config"
)

// OptOutEnvVar disables telemetry unconditionally when set to any non-empty
// value, regardless of telemetry.yml.
const OptOutEnvVar = "EDISON_TELEMETRY_OPTOUT"

var (
	// PostHogAPIKey is set at build time for production builds.
	PostHogAPIKey = "phc_development_key"
	// PostHogEndpoint is set at build time for production builds.
	PostHogEndpoint = "https://eu.i.posthog.com"
)

// Client is the telemetry surface CommandSurface's PersistentPostRun drives.
type Client interface {
	// TrackCommand records one command invocation. sessionID and agent may
	// be empty when the command ran outside a session context.
	TrackCommand(cmd *cobra.Command, sessionID, agent string)
	Close()
}

// NoOpClient discards every call. Used whenever telemetry is opted out or
// the client could not be constructed.
type NoOpClient struct{}

func (NoOpClient) TrackCommand(*cobra.Command, string, string) {}
func (NoOpClient) Close()                                      {}

type silentLogger struct{}

func (silentLogger) Logf(string, ...interface{})   {}
func (silentLogger) Debugf(string, ...interface{}) {}
func (silentLogger) Warnf(string, ...interface{})  {}
func (silentLogger) Errorf(string, ...interface{}) {}

// PostHogClient is the real telemetry client, backed by posthog-go.
type PostHogClient struct {
	client     posthog.Client
	machineID  string
	cliVersion string
	mu         sync.RWMutex
}

// NewClient builds a Client according to cfg and the opt-out environment
// variable. cfg.Enabled == nil (not configured) defaults to disabled, same
// posture as the opt-in-only settings this was adapted from.
//
//nolint:ireturn // factory: returns NoOpClient or PostHogClient depending on config
func NewClient(version string, cfg *config.TelemetryConfig) Client {
	if os.Getenv(OptOutEnvVar) != "" {
		return NoOpClient{}
	}
	if cfg == nil || cfg.Enabled == nil || !*cfg.Enabled {
		return NoOpClient{}
	}

	id, err := machineid.ProtectedID("edison-cli")
	if err != nil {
		return NoOpClient{}
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: 100 * time.Millisecond,
		}).DialContext,
		TLSHandshakeTimeout:   100 * time.Millisecond,
		ResponseHeaderTimeout: 100 * time.Millisecond,
	}

	client, err := posthog.NewWithConfig(PostHogAPIKey, posthog.Config{
		Endpoint:           PostHogEndpoint,
		ShutdownTimeout:    100 * time.Millisecond,
		BatchUploadTimeout: 200 * time.Millisecond,
		Transport:          transport,
		Logger:             silentLogger{},
		DisableGeoIP:       posthog.Ptr(true),
		DefaultEventProperties: posthog.NewProperties().
			Set("cli_version", version).
			Set("os", runtime.GOOS).
			Set("arch", runtime.GOARCH),
	})
	if err != nil {
		return NoOpClient{}
	}

	return &PostHogClient{client: client, machineID: id, cliVersion: version}
}

// eventName derives the dotted event taxonomy (task.create, session.next,
// qa.validate, compose.all, ...) from a command's path, dropping the
// binary name itself.
func eventName(cmd *cobra.Command) string {
	parts := strings.Fields(cmd.CommandPath())
	if len(parts) <= 1 {
		return "cli.invoked"
	}
	return strings.Join(parts[1:], ".")
}

// TrackCommand records a command execution under Edison's event taxonomy.
func (p *PostHogClient) TrackCommand(cmd *cobra.Command, sessionID, agent string) {
	if cmd == nil || cmd.Hidden {
		return
	}

	p.mu.RLock()
	id := p.machineID
	c := p.client
	p.mu.RUnlock()
	if c == nil {
		return
	}

	var flags []string
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		flags = append(flags, flag.Name)
	})

	selectedAgent := agent
	if selectedAgent == "" {
		selectedAgent = "auto"
	}

	props := posthog.NewProperties().
		Set("command", cmd.CommandPath()).
		Set("agent", selectedAgent)
	if sessionID != "" {
		props.Set("session_id", sessionID)
	}
	if len(flags) > 0 {
		props.Set("flags", strings.Join(flags, ","))
	}

	//nolint:errcheck // best-effort telemetry, failures must never affect CLI exit status
	_ = c.Enqueue(posthog.Capture{
		DistinctId: id,
		Event:      eventName(cmd),
		Properties: props,
	})
}

// Close flushes any pending events. Best-effort: errors are swallowed since
// telemetry must never fail a command.
func (p *PostHogClient) Close() {
	p.mu.RLock()
	c := p.client
	p.mu.RUnlock()
	if c != nil {
		_ = c.Close()
	}
}
