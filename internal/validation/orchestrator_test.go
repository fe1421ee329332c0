package validation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edison-dev/edison/internal/config"
	"github.com/edison-dev/edison/internal/evidence"
)

type fakeEngine struct {
	verdict evidence.Verdict
}

func (f fakeEngine) Dispatch(ctx context.Context, spec config.ValidatorSpec, taskID string, round int, files []string) (*evidence.ValidatorReport, error) {
	now := time.Now().UTC()
	return &evidence.ValidatorReport{
		TaskID: taskID, Round: round, ValidatorID: spec.ID, Verdict: f.verdict,
		Tracking: evidence.Tracking{StartedAt: now, CompletedAt: &now},
	}, nil
}

func newTestService(t *testing.T) *evidence.Service {
	t.Helper()
	root := t.TempDir()
	return evidence.NewService(
		func(taskID string, round int) string {
			return filepath.Join(root, taskID, "round-"+itoa(round))
		},
		func(taskID string) string { return filepath.Join(root, taskID) },
	)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func baseCfg() *config.OrchestratorConfig {
	return &config.OrchestratorConfig{
		Validators: map[string]config.ValidatorSpec{
			"lint": {ID: "lint", Engine: "fake-pass", Wave: "fast", Blocking: true, AlwaysRun: true},
			"deep": {ID: "deep", Engine: "fake-fail", Wave: "slow", Blocking: true, AlwaysRun: true},
		},
		Waves: []config.WaveSpec{
			{Name: "fast"},
			{Name: "slow"},
		},
		Presets: map[string]config.PresetSpec{
			"default": {Name: "default", Validators: []string{"lint", "deep"}, BlockingValidators: []string{"lint", "deep"}},
		},
		MaxWorkers: 2,
	}
}

func TestRun_AllPassApproves(t *testing.T) {
	cfg := baseCfg()
	cfg.Validators["deep"] = config.ValidatorSpec{ID: "deep", Engine: "fake-pass", Wave: "slow", Blocking: true, AlwaysRun: true}
	ev := newTestService(t)
	o := NewOrchestrator(cfg, ev, map[string]Engine{"fake-pass": fakeEngine{verdict: evidence.VerdictApprove}})

	result, err := o.Run(context.Background(), "task-1", 1, "default", nil, nil, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Approved {
		t.Fatalf("expected bundle approved, got %+v", result)
	}

	bundle, err := ev.ReadBundle("task-1", 1)
	if err != nil {
		t.Fatalf("ReadBundle: %v", err)
	}
	if bundle == nil || !bundle.Approved {
		t.Fatalf("expected persisted approved bundle, got %+v", bundle)
	}
}

func TestRun_BlockingFailureStopsSequencingAndRejectsBundle(t *testing.T) {
	cfg := baseCfg()
	ev := newTestService(t)
	o := NewOrchestrator(cfg, ev, map[string]Engine{
		"fake-pass": fakeEngine{verdict: evidence.VerdictApprove},
		"fake-fail": fakeEngine{verdict: evidence.VerdictReject},
	})

	result, err := o.Run(context.Background(), "task-1", 1, "default", nil, nil, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Approved {
		t.Fatalf("expected bundle not approved when a blocking validator fails")
	}
	if result.StoppedAt != "slow" {
		t.Fatalf("expected sequencing to stop at the wave the blocking validator failed in, got %q", result.StoppedAt)
	}
	for _, id := range result.Passed {
		if id == "deep" {
			t.Fatalf("expected the failing validator not to be recorded as passed")
		}
	}
}

// TestRun_RequiresPreviousPassStopsEvenWithContinueOnFail verifies spec
// §4.7 step 3's happens-before guarantee: a wave declaring
// requires_previous_pass:true must not run once a prior wave has failed,
// regardless of that prior wave's own continue_on_fail setting.
func TestRun_RequiresPreviousPassStopsEvenWithContinueOnFail(t *testing.T) {
	cfg := baseCfg()
	cfg.Waves = []config.WaveSpec{
		{Name: "fast", ContinueOnFail: true},
		{Name: "slow", RequiresPreviousPass: true},
	}
	cfg.Validators["lint"] = config.ValidatorSpec{ID: "lint", Engine: "fake-fail", Wave: "fast", Blocking: true, AlwaysRun: true}
	ev := newTestService(t)
	o := NewOrchestrator(cfg, ev, map[string]Engine{
		"fake-pass": fakeEngine{verdict: evidence.VerdictApprove},
		"fake-fail": fakeEngine{verdict: evidence.VerdictReject},
	})

	result, err := o.Run(context.Background(), "task-1", 1, "default", nil, nil, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.StoppedAt != "slow" {
		t.Fatalf("expected sequencing to stop before the requires_previous_pass wave, got %q", result.StoppedAt)
	}
	for _, id := range result.Passed {
		if id == "deep" {
			t.Fatalf("expected slow wave's validator never to run, got it recorded as passed")
		}
	}
	for _, id := range result.Failed {
		if id == "deep" {
			t.Fatalf("expected slow wave's validator never to run, got it recorded as failed")
		}
	}
}

func TestRun_DryRunWritesDelegationAndPlaceholder(t *testing.T) {
	cfg := baseCfg()
	ev := newTestService(t)
	o := NewOrchestrator(cfg, ev, map[string]Engine{
		"fake-pass": fakeEngine{verdict: evidence.VerdictApprove},
		"fake-fail": fakeEngine{verdict: evidence.VerdictReject},
	})

	result, err := o.Run(context.Background(), "task-1", 1, "default", nil, nil, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Approved {
		t.Fatalf("expected dry run never to approve (placeholder verdict is always blocked)")
	}
	reports, err := ev.ListValidatorReports("task-1", 1)
	if err != nil {
		t.Fatalf("ListValidatorReports: %v", err)
	}
	if len(reports) == 0 {
		t.Fatalf("expected placeholder reports to be written for dry run")
	}
	for _, r := range reports {
		if r.Verdict != evidence.VerdictBlocked {
			t.Errorf("expected dry run verdict blocked, got %q for %s", r.Verdict, r.ValidatorID)
		}
	}
}

func TestMatchesAnyTrigger(t *testing.T) {
	cases := []struct {
		pattern string
		file    string
		want    bool
	}{
		{"**/*.go", "internal/validation/orchestrator.go", true},
		{"**/*.go", "README.md", false},
		{"cmd/**", "cmd/edison/main.go", true},
	}
	for _, c := range cases {
		got := matchesAnyTrigger([]string{c.pattern}, []string{c.file})
		if got != c.want {
			t.Errorf("matchesAnyTrigger(%q, %q) = %v, want %v", c.pattern, c.file, got, c.want)
		}
	}
}

func TestSecretScanEngine_DetectsNothingInPlainFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.txt")
	if err := os.WriteFile(path, []byte("hello world, nothing secret here"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	e := NewSecretScanEngine()
	report, err := e.Dispatch(context.Background(), config.ValidatorSpec{ID: "secrets"}, "task-1", 1, []string{path})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if report.Verdict != evidence.VerdictApprove {
		t.Errorf("expected approve verdict for a clean file, got %q", report.Verdict)
	}
}
