package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/edison-dev/edison/internal/entity"
	"github.com/edison-dev/edison/internal/jsonutil"
	"github.com/edison-dev/edison/internal/paths"
)

// JournalEntry is one per-operation record under sessions/_tx/{id}/,
// tagged by domain so resume_from_recovery can distinguish in-flight
// restores from in-flight rollbacks.
type JournalEntry struct {
	Domain    string    `json:"domain"` // "restore-task" | "restore-qa" | "rollback-restore-task" | "rollback-restore-qa"
	EntityID  string    `json:"entityId"`
	FromPath  string    `json:"fromPath"`
	ToPath    string    `json:"toPath"`
	Ts        time.Time `json:"ts"`
	Completed bool      `json:"completed"`
}

func (m *Manager) txDir(sessionID string) string {
	return filepath.Join(m.resolver.Root, paths.SessionsTxDir, sessionID)
}

func (m *Manager) writeJournalEntry(sessionID string, seq int, e JournalEntry) error {
	dir := m.txDir(sessionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating tx journal dir: %w", err)
	}
	data, err := jsonutil.MarshalIndentWithNewline(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding journal entry: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%04d-%s-%s.json", seq, e.Domain, e.EntityID))
	return os.WriteFile(path, data, 0o644) //nolint:gosec // journal entries are not secrets
}

// CloseResult summarizes a Close call.
type CloseResult struct {
	MovedTasks []string
	MovedQA    []string
	RolledBack bool
}

// Close implements `session complete`'s journalled close transaction (spec
// §4.8): move every session-scoped task/QA record into the global tree,
// one operation at a time, with a per-entity lock/copy/verify/delete
// sequence. Any failure triggers a full rollback using the inverse
// journal, all-or-nothing; only on success does the session advance to
// closing then validated.
// taskStore/qaStore must be configured to search session-scoped directories
// (sessions/{id}/tasks/{state}, sessions/{id}/qa/{state}) ahead of the
// global tree, via their DirLister — see paths.Resolver.ScopedTaskDir/
// ScopedQADir — so FindBySession/Create/GetPath resolve consistently
// across both the scoped source and the global destination.
func (m *Manager) Close(sessionID string, taskStore, qaStore *entity.Store) (*CloseResult, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	tasks, err := taskStore.FindBySession(entity.KindTask, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing session tasks: %w", err)
	}
	qas, err := qaStore.FindBySession(entity.KindQA, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing session qa records: %w", err)
	}

	result := &CloseResult{}
	seq := 0
	var journal []JournalEntry

	rollback := func(cause error) (*CloseResult, error) {
		for i := len(journal) - 1; i >= 0; i-- {
			e := journal[i]
			if !e.Completed {
				continue
			}
			seq++
			_ = m.writeJournalEntry(sessionID, seq, JournalEntry{ //nolint:errcheck // best-effort audit trail during an already-failing rollback
				Domain: "rollback-" + e.Domain, EntityID: e.EntityID,
				FromPath: e.ToPath, ToPath: e.FromPath, Ts: time.Now().UTC(), Completed: true,
			})
			_ = os.Rename(e.ToPath, e.FromPath) //nolint:errcheck // best-effort: original is gone only if the forward move itself failed
		}
		result.RolledBack = true
		return result, fmt.Errorf("session close failed, rolled back: %w", cause)
	}

	for _, t := range tasks {
		seq++
		oldPath, err := taskStore.GetPath(entity.KindTask, t.ID)
		if err != nil {
			return rollback(err)
		}
		t.SessionID = ""
		if err := taskStore.Create(t); err != nil {
			return rollback(fmt.Errorf("copying task %s to global tree: %w", t.ID, err))
		}
		newPath, err := taskStore.GetPath(entity.KindTask, t.ID)
		if err != nil {
			return rollback(err)
		}
		if _, err := taskStore.Get(entity.KindTask, t.ID); err != nil {
			return rollback(fmt.Errorf("verifying copied task %s: %w", t.ID, err))
		}
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return rollback(fmt.Errorf("removing session-scoped source for task %s: %w", t.ID, err))
		}
		entry := JournalEntry{Domain: "restore-task", EntityID: t.ID, FromPath: oldPath, ToPath: newPath, Ts: time.Now().UTC(), Completed: true}
		if err := m.writeJournalEntry(sessionID, seq, entry); err != nil {
			return rollback(err)
		}
		journal = append(journal, entry)
		result.MovedTasks = append(result.MovedTasks, t.ID)
	}

	for _, q := range qas {
		seq++
		oldPath, err := qaStore.GetPath(entity.KindQA, q.ID)
		if err != nil {
			return rollback(err)
		}
		q.SessionID = ""
		if err := qaStore.Create(q); err != nil {
			return rollback(fmt.Errorf("copying qa record %s to global tree: %w", q.ID, err))
		}
		newPath, err := qaStore.GetPath(entity.KindQA, q.ID)
		if err != nil {
			return rollback(err)
		}
		if _, err := qaStore.Get(entity.KindQA, q.ID); err != nil {
			return rollback(fmt.Errorf("verifying copied qa record %s: %w", q.ID, err))
		}
		if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
			return rollback(fmt.Errorf("removing session-scoped source for qa record %s: %w", q.ID, err))
		}
		entry := JournalEntry{Domain: "restore-qa", EntityID: q.ID, FromPath: oldPath, ToPath: newPath, Ts: time.Now().UTC(), Completed: true}
		if err := m.writeJournalEntry(sessionID, seq, entry); err != nil {
			return rollback(err)
		}
		journal = append(journal, entry)
		result.MovedQA = append(result.MovedQA, q.ID)
	}

	sess.State = "closing"
	if err := m.store.Update(sess); err != nil {
		return rollback(err)
	}
	sess.State = "validated"
	if err := m.store.MoveToState(sess, "closing"); err != nil {
		return rollback(err)
	}

	_ = os.RemoveAll(m.txDir(sessionID)) //nolint:errcheck // best-effort cleanup of a now-irrelevant journal
	return result, nil
}

// ResumeFromRecovery implements resume_from_recovery(dir): reload a
// partially-archived session's canonical model from a recovery directory,
// deep-merging any unknown fields over the current in-memory model so a
// resumed close never silently drops extras the original writer didn't
// understand either.
func (m *Manager) ResumeFromRecovery(dir string) (*entity.Entity, error) {
	data, err := os.ReadFile(filepath.Join(dir, "session.json")) //nolint:gosec // dir comes from the resolved sessions/recovery tree
	if err != nil {
		return nil, fmt.Errorf("reading recovery session.json: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing recovery session.json: %w", err)
	}
	id, _ := raw["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("recovery session.json missing id")
	}
	current, err := m.Get(id)
	if err != nil {
		return nil, fmt.Errorf("loading current session %s: %w", id, err)
	}
	if current.Extras == nil {
		current.Extras = map[string]any{}
	}
	for k, v := range raw {
		if _, known := current.Extras[k]; !known {
			current.Extras[k] = v
		}
	}
	return current, nil
}
