package statemachine

import "fmt"

// EvidenceLookup is the subset of EvidenceService the built-in guards need.
// Defined here (not imported from internal/evidence) to avoid a statemachine
// <-> evidence import cycle; internal/evidence's concrete service satisfies
// this interface structurally, and wiring code passes it in at startup.
type EvidenceLookup interface {
	CurrentRound(taskID string) (int, error)
	MissingEvidenceBlockers(taskID string, round int) ([]string, error)
	HasPassingTests(taskID string, round int) (bool, error)
	ValidatorReportsComplete(taskID string, round int) (bool, []string, error)
	HasBundleApproval(taskID string, round int) (bool, error)
}

// DependencyLookup is the subset of ReadinessEvaluator the dependency guard
// needs.
type DependencyLookup interface {
	DependenciesSatisfied(taskID string) (bool, []string, error)
}

// RegisterBuiltinGuards wires the built-in guard contracts named in spec
// §4.4 into reg, using ev and deps as the evidence/readiness backends.
func RegisterBuiltinGuards(reg *Registry, ev EvidenceLookup, deps DependencyLookup) {
	reg.RegisterGuard("dependencies_satisfied", func(ctx *Context) (bool, string) {
		ok, missing, err := deps.DependenciesSatisfied(ctx.Entity.ID)
		if err != nil {
			return false, err.Error()
		}
		if !ok {
			return false, fmt.Sprintf("unsatisfied dependencies: %v", missing)
		}
		return true, ""
	})

	reg.RegisterGuard("has_evidence_for_done", func(ctx *Context) (bool, string) {
		round, err := ev.CurrentRound(ctx.Entity.ID)
		if err != nil {
			return false, err.Error()
		}
		missing, err := ev.MissingEvidenceBlockers(ctx.Entity.ID, round)
		if err != nil {
			return false, err.Error()
		}
		if len(missing) > 0 {
			return false, fmt.Sprintf("missing evidence: %v", missing)
		}
		return true, ""
	})

	reg.RegisterGuard("has_passing_tests", func(ctx *Context) (bool, string) {
		round, err := ev.CurrentRound(ctx.Entity.ID)
		if err != nil {
			return false, err.Error()
		}
		ok, err := ev.HasPassingTests(ctx.Entity.ID, round)
		if err != nil {
			return false, err.Error()
		}
		if !ok {
			return false, "command-test.txt missing or exitCode != 0 for current round"
		}
		return true, ""
	})

	reg.RegisterGuard("can_start_qa", func(ctx *Context) (bool, string) {
		return true, "" // a QA record can always move waiting->todo once its task reports done
	})

	reg.RegisterGuard("has_validator_reports", func(ctx *Context) (bool, string) {
		taskID := ctx.Entity.TaskID
		if taskID == "" {
			taskID = ctx.Entity.ID
		}
		round, err := ev.CurrentRound(taskID)
		if err != nil {
			return false, err.Error()
		}
		complete, missing, err := ev.ValidatorReportsComplete(taskID, round)
		if err != nil {
			return false, err.Error()
		}
		if !complete {
			return false, fmt.Sprintf("incomplete validator reports: %v", missing)
		}
		return true, ""
	})

	reg.RegisterGuard("has_all_waves_passed", func(ctx *Context) (bool, string) {
		taskID := ctx.Entity.TaskID
		if taskID == "" {
			taskID = ctx.Entity.ID
		}
		round, err := ev.CurrentRound(taskID)
		if err != nil {
			return false, err.Error()
		}
		complete, missing, err := ev.ValidatorReportsComplete(taskID, round)
		if err != nil {
			return false, err.Error()
		}
		if !complete {
			return false, fmt.Sprintf("waves incomplete: %v", missing)
		}
		return true, ""
	})

	reg.RegisterGuard("can_validate_qa", func(ctx *Context) (bool, string) {
		taskID := ctx.Entity.TaskID
		if taskID == "" {
			taskID = ctx.Entity.ID
		}
		round, err := ev.CurrentRound(taskID)
		if err != nil {
			return false, err.Error()
		}
		ok, err := ev.HasBundleApproval(taskID, round)
		if err != nil {
			return false, err.Error()
		}
		if !ok {
			return false, "no approved bundle for current round"
		}
		return true, ""
	})

	reg.RegisterGuard("has_bundle_approval", func(ctx *Context) (bool, string) {
		round, err := ev.CurrentRound(ctx.Entity.ID)
		if err != nil {
			return false, err.Error()
		}
		ok, err := ev.HasBundleApproval(ctx.Entity.ID, round)
		if err != nil {
			return false, err.Error()
		}
		if !ok {
			return false, "no approved bundle for current round"
		}
		return true, ""
	})
}
