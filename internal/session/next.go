package session

import (
	"fmt"

	"github.com/edison-dev/edison/internal/entity"
	"github.com/edison-dev/edison/internal/evidence"
)

// RelatedEntry is one row of find_related_in_session: a parent, child, or
// sibling task relative to taskID within the same session.
type RelatedEntry struct {
	Relationship string `json:"relationship"` // "parent" | "child" | "sibling"
	TaskID       string `json:"taskId"`
	TaskStatus   string `json:"taskStatus"`
	QAStatus     string `json:"qaStatus"`
	Note         string `json:"note"`
}

// ReportsMissing is one row the planner surfaces when a tracked task is
// missing an artifact a human or delegated agent still needs to produce.
type ReportsMissing struct {
	TaskID    string   `json:"taskId"`
	Type      string   `json:"type"` // "validator" | "implementation" | "context7"
	Detail    string   `json:"detail,omitempty"`
	Suggested []string `json:"suggested,omitempty"`
}

// NextAction is one recommended command the planner surfaces for `session
// next`, supplemented from original_source's session/next/actions.py.
type NextAction struct {
	Command string `json:"command"`
	Reason  string `json:"reason"`
	TaskID  string `json:"taskId,omitempty"`
}

// NextPlan is the full `session next` response.
type NextPlan struct {
	Actions        []NextAction     `json:"actions"`
	Related        []RelatedEntry   `json:"related,omitempty"`
	ReportsMissing []ReportsMissing `json:"reportsMissing,omitempty"`
}

// TaskStatusLookup resolves a task/QA id's current semantic state, grounded
// on infer_task_status/infer_qa_status ("status inferred from the directory
// an entity currently lives in").
type TaskStatusLookup interface {
	TaskStatus(taskID string) string
	QAStatus(taskID string) string
}

// Next computes `session next`'s recommended actions for sess.
func (m *Manager) Next(sess *entity.Entity, lookup TaskStatusLookup, ev *evidence.Service) (*NextPlan, error) {
	plan := &NextPlan{}

	tasksRaw, _ := sess.Extras["tasks"].(map[string]any)
	if len(tasksRaw) == 0 {
		plan.Actions = append(plan.Actions, NextAction{
			Command: "task create", Reason: "session has no tracked tasks yet",
		})
		return plan, nil
	}

	for taskID := range tasksRaw {
		status := lookup.TaskStatus(taskID)
		qaStatus := lookup.QAStatus(taskID)

		switch status {
		case "todo":
			plan.Actions = append(plan.Actions, NextAction{
				Command: "task claim", Reason: "task is ready but unclaimed", TaskID: taskID,
			})
		case "wip":
			round, err := ev.CurrentRound(taskID)
			if err == nil {
				missing, err := ev.MissingEvidenceBlockers(taskID, round)
				if err == nil && len(missing) > 0 {
					plan.Actions = append(plan.Actions, NextAction{
						Command: "evidence capture", Reason: fmt.Sprintf("missing evidence: %v", missing), TaskID: taskID,
					})
				} else {
					plan.Actions = append(plan.Actions, NextAction{
						Command: "qa validate", Reason: "evidence complete, ready for validation", TaskID: taskID,
					})
				}
			}
		case "done":
			if qaStatus == "waiting" || qaStatus == "todo" {
				plan.Actions = append(plan.Actions, NextAction{
					Command: "qa validate", Reason: "task done, QA not yet started", TaskID: taskID,
				})
			} else if qaStatus == "wip" {
				plan.Actions = append(plan.Actions, NextAction{
					Command: "qa bundle", Reason: "QA in progress, check validator reports", TaskID: taskID,
				})
			}
		}

		plan.Related = append(plan.Related, m.findRelatedInSession(sess, taskID, lookup)...)
	}

	if len(plan.Actions) == 0 {
		plan.Actions = append(plan.Actions, NextAction{
			Command: "session complete", Reason: "all tracked tasks appear done and validated",
		})
	}
	return plan, nil
}

// findRelatedInSession surfaces a task's parent, children, and siblings
// (other children of the same parent) tracked within the same session.
func (m *Manager) findRelatedInSession(sess *entity.Entity, taskID string, lookup TaskStatusLookup) []RelatedEntry {
	tasksRaw, _ := sess.Extras["tasks"].(map[string]any)
	taskData, _ := tasksRaw[taskID].(map[string]any)
	if taskData == nil {
		return nil
	}

	var out []RelatedEntry
	parentID, _ := taskData["parentId"].(string)
	if parentID != "" {
		out = append(out, RelatedEntry{
			Relationship: "parent", TaskID: parentID,
			TaskStatus: lookup.TaskStatus(parentID), QAStatus: lookup.QAStatus(parentID),
			Note: fmt.Sprintf("This task is a follow-up to %s", parentID),
		})
	}

	if childIDs, ok := taskData["childIds"].([]any); ok {
		for _, c := range childIDs {
			childID, _ := c.(string)
			if childID == "" {
				continue
			}
			out = append(out, RelatedEntry{
				Relationship: "child", TaskID: childID,
				TaskStatus: lookup.TaskStatus(childID), QAStatus: lookup.QAStatus(childID),
				Note: fmt.Sprintf("Follow-up task spawned from %s", taskID),
			})
		}
	}

	if parentID != "" {
		for tid, raw := range tasksRaw {
			if tid == taskID {
				continue
			}
			td, _ := raw.(map[string]any)
			if td == nil {
				continue
			}
			sibParent, _ := td["parentId"].(string)
			if sibParent == parentID {
				out = append(out, RelatedEntry{
					Relationship: "sibling", TaskID: tid,
					TaskStatus: lookup.TaskStatus(tid), QAStatus: lookup.QAStatus(tid),
					Note: fmt.Sprintf("Sibling task (same parent %s)", parentID),
				})
			}
		}
	}
	return out
}
