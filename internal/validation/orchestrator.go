// Package validation implements ValidationOrchestrator: wave-sequenced
// validator dispatch, verdict aggregation, and bundle summarisation.
package validation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/edison-dev/edison/internal/config"
	"github.com/edison-dev/edison/internal/evidence"
)

// Engine dispatches one validator and returns its report. In a dry run no
// Engine is called: the Orchestrator's dispatchOne writes the delegation
// record and a placeholder report itself.
type Engine interface {
	// Dispatch runs validatorID against task files and returns a filled-in
	// report (Tracking.CompletedAt set) or an error. Cancellation must be
	// honored cooperatively via ctx.
	Dispatch(ctx context.Context, spec config.ValidatorSpec, taskID string, round int, files []string) (*evidence.ValidatorReport, error)
}

// Orchestrator is ValidationOrchestrator.
type Orchestrator struct {
	cfg     *config.OrchestratorConfig
	ev      *evidence.Service
	engines map[string]Engine // keyed by ValidatorSpec.Engine
	maxWork int64
}

// NewOrchestrator builds an Orchestrator bound to cfg and ev, dispatching
// through the given per-engine-name Engine implementations.
func NewOrchestrator(cfg *config.OrchestratorConfig, ev *evidence.Service, engines map[string]Engine) *Orchestrator {
	maxWork := int64(cfg.MaxWorkers)
	if maxWork < 1 {
		maxWork = 1
	}
	return &Orchestrator{cfg: cfg, ev: ev, engines: engines, maxWork: maxWork}
}

// RunResult is the outcome of running a preset against a task.
type RunResult struct {
	TaskID    string
	Round     int
	Preset    string
	Passed    []string
	Failed    []string
	Approved  bool
	StoppedAt string // wave name where sequencing stopped early, if any
}

// Run drives validator execution for task through cfg's named preset,
// implementing spec §4.7's four-step execution model.
func (o *Orchestrator) Run(ctx context.Context, taskID string, round int, presetName string, changedFiles, primaryFiles []string, dryRun bool) (*RunResult, error) {
	return o.RunWithExtraValidators(ctx, taskID, round, presetName, changedFiles, primaryFiles, nil, dryRun)
}

// RunWithExtraValidators behaves like Run but additionally dispatches every
// id in extraValidators regardless of whether the preset or its triggers
// would have selected it.
func (o *Orchestrator) RunWithExtraValidators(ctx context.Context, taskID string, round int, presetName string, changedFiles, primaryFiles, extraValidators []string, dryRun bool) (*RunResult, error) {
	preset, ok := o.cfg.Presets[presetName]
	if !ok {
		return nil, fmt.Errorf("validation: unknown preset %q", presetName)
	}

	expected := o.expectedIDs(preset, changedFiles, primaryFiles)
	for _, id := range extraValidators {
		if _, ok := o.cfg.Validators[id]; ok {
			expected[id] = true
		}
	}
	blocking := map[string]bool{}
	for _, id := range preset.BlockingValidators {
		blocking[id] = true
	}
	if len(blocking) == 0 {
		for id := range expected {
			if v, ok := o.cfg.Validators[id]; ok && v.Blocking {
				blocking[id] = true
			}
		}
	}

	result := &RunResult{TaskID: taskID, Round: round, Preset: presetName}
	passed := map[string]bool{}
	prevWavePassed := true
	ranAWave := false

	for _, wave := range o.cfg.Waves {
		if result.StoppedAt != "" {
			break
		}
		waveIDs := o.idsInWave(expected, wave.Name)
		if len(waveIDs) == 0 {
			continue
		}
		if wave.RequiresPreviousPass && ranAWave && !prevWavePassed {
			result.StoppedAt = wave.Name
			break
		}

		reports, err := o.dispatchWave(ctx, waveIDs, taskID, round, changedFiles, dryRun)
		if err != nil {
			return nil, err
		}

		wavePassed := true
		for _, id := range waveIDs {
			r, ok := reports[id]
			ok2 := ok && r.Passed()
			if blocking[id] && !ok2 {
				wavePassed = false
			}
			if ok2 {
				passed[id] = true
				result.Passed = append(result.Passed, id)
			} else {
				result.Failed = append(result.Failed, id)
			}
		}
		ranAWave = true
		prevWavePassed = wavePassed

		if !wavePassed {
			if !wave.ContinueOnFail {
				result.StoppedAt = wave.Name
			}
		}
	}

	sort.Strings(result.Passed)
	sort.Strings(result.Failed)

	approved := true
	for id := range blocking {
		if !passed[id] {
			approved = false
			break
		}
	}
	result.Approved = approved

	bundle := &evidence.Bundle{
		Approved: approved, Round: round, Preset: presetName,
		Passed: result.Passed, Failed: result.Failed, Timestamp: time.Now().UTC(),
	}
	if err := o.ev.WriteBundle(taskID, round, bundle); err != nil {
		return nil, fmt.Errorf("writing bundle: %w", err)
	}

	return result, nil
}

// expectedIDs computes selected(preset) ∪ always_run ∪ triggered(files).
func (o *Orchestrator) expectedIDs(preset config.PresetSpec, changedFiles, primaryFiles []string) map[string]bool {
	out := map[string]bool{}
	for _, id := range preset.Validators {
		out[id] = true
	}
	allFiles := append(append([]string{}, primaryFiles...), changedFiles...)
	for id, v := range o.cfg.Validators {
		if v.AlwaysRun {
			out[id] = true
			continue
		}
		if matchesAnyTrigger(v.Triggers, allFiles) {
			out[id] = true
		}
	}
	return out
}

func (o *Orchestrator) idsInWave(expected map[string]bool, wave string) []string {
	var out []string
	for id := range expected {
		v, ok := o.cfg.Validators[id]
		if !ok {
			continue
		}
		if v.Wave == wave {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// dispatchWave runs every validator id in a wave, bounded by cfg.MaxWorkers
// (or sequentially if cfg.Sequential), fanning results into a map keyed by
// validator id.
func (o *Orchestrator) dispatchWave(ctx context.Context, ids []string, taskID string, round int, changedFiles []string, dryRun bool) (map[string]*evidence.ValidatorReport, error) {
	results := make(map[string]*evidence.ValidatorReport, len(ids))
	resCh := make(chan struct {
		id  string
		r   *evidence.ValidatorReport
		err error
	}, len(ids))

	sem := semaphore.NewWeighted(o.maxWork)
	if o.cfg.Sequential {
		sem = semaphore.NewWeighted(1)
	}

	for _, id := range ids {
		id := id
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquiring dispatch slot: %w", err)
		}
		go func() {
			defer sem.Release(1)
			r, err := o.dispatchOne(ctx, id, taskID, round, changedFiles, dryRun)
			resCh <- struct {
				id  string
				r   *evidence.ValidatorReport
				err error
			}{id, r, err}
		}()
	}

	for range ids {
		res := <-resCh
		if res.err != nil {
			return nil, res.err
		}
		if res.r != nil {
			results[res.id] = res.r
		}
	}
	return results, nil
}

func (o *Orchestrator) dispatchOne(ctx context.Context, id, taskID string, round int, changedFiles []string, dryRun bool) (*evidence.ValidatorReport, error) {
	spec := o.cfg.Validators[id]

	if dryRun {
		content := fmt.Sprintf("# Delegation: %s\n\nvalidator: %s\nengine: %s\ntask: %s\nround: %d\n",
			spec.Name, spec.ID, spec.Engine, taskID, round)
		if err := o.ev.WriteDelegation(taskID, round, id, content); err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		placeholder := &evidence.ValidatorReport{
			TaskID: taskID, Round: round, ValidatorID: id, Verdict: evidence.VerdictBlocked,
			Tracking: evidence.Tracking{StartedAt: now, CompletedAt: &now},
			Summary:  "dry run: delegation recorded, no verdict produced",
		}
		if err := o.ev.WriteValidatorReport(taskID, round, placeholder); err != nil {
			return nil, err
		}
		return placeholder, nil
	}

	engine, ok := o.engines[spec.Engine]
	if !ok {
		return nil, fmt.Errorf("validation: no engine registered for %q (validator %q)", spec.Engine, id)
	}

	guard, hasGuard := webServerGuardFor(spec)
	if hasGuard {
		stop, err := guard.Ensure(ctx)
		if err != nil {
			return nil, fmt.Errorf("web server guard for %q: %w", id, err)
		}
		if stop != nil {
			defer stop()
		}
	}

	report, err := engine.Dispatch(ctx, spec, taskID, round, changedFiles)
	if err != nil {
		return nil, fmt.Errorf("dispatching validator %q: %w", id, err)
	}
	if err := o.ev.WriteValidatorReport(taskID, round, report); err != nil {
		return nil, err
	}
	return report, nil
}
