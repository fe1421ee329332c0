package statemachine

import (
	"fmt"

	"github.com/edison-dev/edison/internal/entity"
)

// ActivityLogger appends a line to a session's append-only activity log.
type ActivityLogger interface {
	LogActivity(sessionID, message, entityRef string) error
}

// QAAdvancer moves a task's QA record forward in lockstep with its task.
type QAAdvancer interface {
	AdvanceQA(taskID, toState string) error
}

// BundleRecorder persists the bundle-approval side effect of a validated
// transition (spec: `record_bundle_approval`).
type BundleRecorder interface {
	RecordBundleApproval(taskID string, round int) error
}

// IntegrationSyncer marks external checkboxes (speckit/openspec) when a
// task carrying that integration kind reaches `validated`.
type IntegrationSyncer interface {
	SyncExternalSource(ent *entity.Entity) error
}

// ActionDeps bundles the side-effect backends the built-in actions need.
type ActionDeps struct {
	Activity    ActivityLogger
	QA          QAAdvancer
	Bundles     BundleRecorder
	Speckit     IntegrationSyncer
	Openspec    IntegrationSyncer
}

// RegisterBuiltinActions wires the built-in action contracts named in spec
// §4.4 into reg.
func RegisterBuiltinActions(reg *Registry, deps ActionDeps) {
	reg.RegisterAction("update_session_activity_log", Action{
		Name: "update_session_activity_log",
		Run: func(ctx *Context) error {
			if ctx.Entity.SessionID == "" || deps.Activity == nil {
				return nil
			}
			msg := fmt.Sprintf("%s %s -> %s", ctx.Entity.ID, ctx.Entity.State, ctx.ToState)
			return deps.Activity.LogActivity(ctx.Entity.SessionID, msg, ctx.Entity.ID)
		},
	})

	reg.RegisterAction("propagate_qa_advancement_on_task_done", Action{
		Name: "propagate_qa_advancement_on_task_done",
		Run: func(ctx *Context) error {
			if deps.QA == nil {
				return nil
			}
			return deps.QA.AdvanceQA(ctx.Entity.ID, "todo")
		},
	})

	reg.RegisterAction("record_bundle_approval", Action{
		Name: "record_bundle_approval",
		Run: func(ctx *Context) error {
			if deps.Bundles == nil {
				return nil
			}
			round, _ := ctx.Extra["round"].(int)
			taskID := ctx.Entity.TaskID
			if taskID == "" {
				taskID = ctx.Entity.ID
			}
			return deps.Bundles.RecordBundleApproval(taskID, round)
		},
	})

	reg.RegisterAction("sync_speckit_task_sources", Action{
		Name: "sync_speckit_task_sources",
		Run: func(ctx *Context) error {
			if deps.Speckit == nil || ctx.Entity.Integration == nil || ctx.Entity.Integration.Kind != "speckit" {
				return nil
			}
			return deps.Speckit.SyncExternalSource(ctx.Entity)
		},
	})

	reg.RegisterAction("sync_openspec_task_sources", Action{
		Name: "sync_openspec_task_sources",
		Run: func(ctx *Context) error {
			if deps.Openspec == nil || ctx.Entity.Integration == nil || ctx.Entity.Integration.Kind != "openspec" {
				return nil
			}
			return deps.Openspec.SyncExternalSource(ctx.Entity)
		},
	})
}

// DefaultTaskTable returns the Task state table per spec §3.3: todo -> wip
// -> done -> validated, with the guard/action wiring from §4.4.
func DefaultTaskTable() Table {
	return Table{
		"todo": {
			Initial: true,
			Transitions: []TransitionSpec{
				{To: "wip", Guards: []string{"dependencies_satisfied"}, Actions: []string{"update_session_activity_log"}},
			},
		},
		"wip": {
			Transitions: []TransitionSpec{
				{To: "done", Guards: []string{"has_evidence_for_done", "has_passing_tests"},
					Actions: []string{"propagate_qa_advancement_on_task_done", "update_session_activity_log"}},
			},
		},
		"done": {
			Transitions: []TransitionSpec{
				{To: "validated", Guards: []string{"has_bundle_approval"},
					Actions: []string{"sync_speckit_task_sources", "sync_openspec_task_sources", "update_session_activity_log"}},
			},
		},
		"validated": {Final: true},
	}
}

// DefaultQATable returns the QA state table per spec §3.3.
func DefaultQATable() Table {
	return Table{
		"waiting": {
			Initial: true,
			Transitions: []TransitionSpec{
				{To: "todo", Guards: []string{"can_start_qa"}},
			},
		},
		"todo": {
			Transitions: []TransitionSpec{
				{To: "wip"},
			},
		},
		"wip": {
			Transitions: []TransitionSpec{
				{To: "done", Guards: []string{"has_validator_reports", "has_all_waves_passed"},
					Actions: []string{"record_bundle_approval"}},
			},
		},
		"done": {
			Transitions: []TransitionSpec{
				{To: "validated", Guards: []string{"can_validate_qa"}},
			},
		},
		"validated": {Final: true},
	}
}

// DefaultSessionTable returns the Session state table per spec §3.3.
func DefaultSessionTable() Table {
	return Table{
		"active": {
			Initial: true,
			Transitions: []TransitionSpec{
				{To: "closing"},
			},
		},
		"closing": {
			Transitions: []TransitionSpec{
				{To: "validated"},
				{To: "active"}, // rollback path on close failure
			},
		},
		"validated": {Final: true},
	}
}
