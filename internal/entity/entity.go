// Package entity implements EntityStore: frontmatter-tagged markdown
// persistence for Tasks, QA records, and Sessions, with atomic writes and
// per-entity advisory locking.
package entity

import "time"

// Kind identifies which entity type a document belongs to.
type Kind string

const (
	KindTask    Kind = "task"
	KindQA      Kind = "qa"
	KindSession Kind = "session"
)

// Violation describes why a guard blocked a transition.
type Violation struct {
	Guard   string `yaml:"guard" json:"guard"`
	Reason  string `yaml:"reason" json:"reason"`
}

// HistoryEntry records one state transition.
type HistoryEntry struct {
	From       string      `yaml:"from" json:"from"`
	To         string      `yaml:"to" json:"to"`
	Ts         time.Time   `yaml:"ts" json:"ts"`
	Reason     string      `yaml:"reason,omitempty" json:"reason,omitempty"`
	Violations []Violation `yaml:"violations,omitempty" json:"violations,omitempty"`
}

// Metadata is the common created/updated bookkeeping block.
type Metadata struct {
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updated_at"`
	CreatedBy string    `yaml:"created_by,omitempty" json:"created_by,omitempty"`
}

// Integration carries an external linkage (speckit/openspec) without the
// core needing to know its shape.
type Integration struct {
	Kind    string         `yaml:"kind" json:"kind"`
	Payload map[string]any `yaml:"payload,omitempty" json:"payload,omitempty"`
}

// Entity is the common envelope every frontmatter document shares. Extras
// carries any frontmatter key this struct does not name explicitly, so
// round-trips never drop fields the core doesn't understand.
type Entity struct {
	Kind Kind `yaml:"-" json:"-"`

	ID          string         `yaml:"id" json:"id"`
	Title       string         `yaml:"title" json:"title"`
	State       string         `yaml:"state" json:"state"`
	SessionID   string         `yaml:"session_id,omitempty" json:"session_id,omitempty"`
	Owner       string         `yaml:"owner,omitempty" json:"owner,omitempty"`
	Tags        []string       `yaml:"tags,omitempty" json:"tags,omitempty"`
	DependsOn   []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Related     []string       `yaml:"related,omitempty" json:"related,omitempty"`
	ParentID    string         `yaml:"parent_id,omitempty" json:"parent_id,omitempty"`
	ChildIDs    []string       `yaml:"child_ids,omitempty" json:"child_ids,omitempty"`
	Integration *Integration   `yaml:"integration,omitempty" json:"integration,omitempty"`
	Metadata    Metadata       `yaml:"metadata" json:"metadata"`
	History     []HistoryEntry `yaml:"state_history,omitempty" json:"state_history,omitempty"`

	// TaskID is set only on QA records: id == task_id + "-qa".
	TaskID string `yaml:"task_id,omitempty" json:"task_id,omitempty"`

	// Extras holds any frontmatter key not captured above, keyed by its
	// original name, preserved verbatim across read/write cycles.
	Extras map[string]any `yaml:"-" json:"-"`

	// Body is the markdown content following the frontmatter block.
	Body string `yaml:"-" json:"-"`
}

// QARecordID derives a QA record's id from its task id.
func QARecordID(taskID string) string {
	return taskID + "-qa"
}
