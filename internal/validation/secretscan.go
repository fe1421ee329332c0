package validation

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/zricethezav/gitleaks/v8/detect"

	"github.com/edison-dev/edison/internal/config"
	"github.com/edison-dev/edison/internal/evidence"
)

// SecretScanEngine is the built-in `engine: secrets-scan` validator: it
// scans every changed file for committed credentials using gitleaks'
// detection rules, in-process, with no external agent delegation. Grounded
// on the teacher's redact package (redact/redact.go), which already wraps
// a lazily-initialised *detect.Detector for pattern-based secret matching.
type SecretScanEngine struct {
	once     sync.Once
	detector *detect.Detector
	detErr   error
}

// NewSecretScanEngine constructs a ready-to-use engine. Detector
// initialisation is deferred to first Dispatch so a config load error
// doesn't fail orchestrator construction for presets that never select
// this validator.
func NewSecretScanEngine() *SecretScanEngine {
	return &SecretScanEngine{}
}

func (e *SecretScanEngine) detectorOrErr() (*detect.Detector, error) {
	e.once.Do(func() {
		e.detector, e.detErr = detect.NewDetectorDefaultConfig()
	})
	return e.detector, e.detErr
}

// Dispatch implements Engine.
func (e *SecretScanEngine) Dispatch(ctx context.Context, spec config.ValidatorSpec, taskID string, round int, files []string) (*evidence.ValidatorReport, error) {
	started := time.Now().UTC()
	d, err := e.detectorOrErr()
	if err != nil {
		return nil, fmt.Errorf("initializing secret scanner: %w", err)
	}

	var findings []evidence.Finding
	for _, path := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		data, err := os.ReadFile(path) //nolint:gosec // path comes from the task's own changed-files list
		if err != nil {
			if os.IsNotExist(err) {
				continue // deleted files have nothing left to scan
			}
			return nil, fmt.Errorf("reading %s for secret scan: %w", path, err)
		}
		for _, f := range d.DetectBytes(data) {
			findings = append(findings, evidence.Finding{
				Description: f.Description,
				Location:    fmt.Sprintf("%s:%d", path, f.StartLine),
				Severity:    "high",
			})
		}
	}

	completed := time.Now().UTC()
	verdict := evidence.VerdictApprove
	summary := "no secrets detected"
	if len(findings) > 0 {
		verdict = evidence.VerdictReject
		summary = fmt.Sprintf("%d potential secret(s) detected", len(findings))
	}

	return &evidence.ValidatorReport{
		TaskID:      taskID,
		Round:       round,
		ValidatorID: spec.ID,
		Model:       "gitleaks",
		Verdict:     verdict,
		Tracking:    evidence.Tracking{StartedAt: started, CompletedAt: &completed},
		Findings:    findings,
		Summary:     summary,
	}, nil
}
