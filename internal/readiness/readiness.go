// Package readiness implements ReadinessEvaluator and TaskPlanner: pure
// functions over the task dependency graph that compute ready/blocked sets
// and topologically ordered parallel waves.
package readiness

import (
	"sort"

	"github.com/edison-dev/edison/internal/entity"
)

// Diagnostic explains why a single dependency is unsatisfied.
type Diagnostic struct {
	DepID          string   `json:"dep_id"`
	DepState       string   `json:"dep_state,omitempty"`
	RequiredStates []string `json:"required_states"`
	Reason         string   `json:"reason"`
	DepSessionID   string   `json:"dep_session_id,omitempty"`
	DepPath        string   `json:"dep_path,omitempty"`
}

// BlockedTask pairs a task with the diagnostics explaining its block.
type BlockedTask struct {
	Task        *entity.Entity `json:"-"`
	ID          string         `json:"id"`
	Diagnostics []Diagnostic   `json:"diagnostics"`
}

// MissingDependencyPolicy controls behavior when a depends_on id does not
// resolve to any known task.
type MissingDependencyPolicy string

const (
	PolicyBlock  MissingDependencyPolicy = "block"
	PolicyIgnore MissingDependencyPolicy = "ignore"
)

// Evaluator computes readiness over a fixed snapshot of tasks.
type Evaluator struct {
	bySessionScope map[string]map[string]*entity.Entity // "" = global
	satisfied      map[string]bool
	policy         MissingDependencyPolicy
}

// NewEvaluator indexes tasks by scope (session id, or "" for global) for
// fast dependency lookups honoring spec invariant 5: a session-scoped
// dependency never satisfies a global or other-session requirement.
func NewEvaluator(tasks []*entity.Entity, satisfiedStates []string, policy MissingDependencyPolicy) *Evaluator {
	e := &Evaluator{
		bySessionScope: map[string]map[string]*entity.Entity{},
		satisfied:      map[string]bool{},
		policy:         policy,
	}
	for _, s := range satisfiedStates {
		e.satisfied[s] = true
	}
	for _, t := range tasks {
		scope := t.SessionID
		if e.bySessionScope[scope] == nil {
			e.bySessionScope[scope] = map[string]*entity.Entity{}
		}
		e.bySessionScope[scope][t.ID] = t
	}
	return e
}

func (e *Evaluator) lookup(scope, id string) (*entity.Entity, bool) {
	if t, ok := e.bySessionScope[scope][id]; ok {
		return t, true
	}
	if scope != "" {
		if t, ok := e.bySessionScope[""][id]; ok {
			return t, true
		}
	}
	return nil, false
}

// DependenciesSatisfied reports whether every depends_on entry of task id
// resolves within scope and sits in a satisfied state. It implements the
// statemachine.DependencyLookup contract.
func (e *Evaluator) DependenciesSatisfied(id string) (bool, []string, error) {
	task := e.findTask(id)
	if task == nil {
		return true, nil, nil
	}
	diags := e.diagnose(task)
	if len(diags) == 0 {
		return true, nil, nil
	}
	missing := make([]string, 0, len(diags))
	for _, d := range diags {
		missing = append(missing, d.DepID)
	}
	return false, missing, nil
}

func (e *Evaluator) findTask(id string) *entity.Entity {
	for _, scoped := range e.bySessionScope {
		if t, ok := scoped[id]; ok {
			return t
		}
	}
	return nil
}

// diagnose returns per-dependency diagnostics for an unready task; empty
// slice means ready.
func (e *Evaluator) diagnose(task *entity.Entity) []Diagnostic {
	var diags []Diagnostic
	requiredStates := e.satisfiedStateList()
	for _, depID := range task.DependsOn {
		dep, ok := e.lookup(task.SessionID, depID)
		if !ok {
			if e.policy == PolicyIgnore {
				continue
			}
			diags = append(diags, Diagnostic{
				DepID: depID, RequiredStates: requiredStates,
				Reason: "dependency not found",
			})
			continue
		}
		if !e.satisfied[dep.State] {
			diags = append(diags, Diagnostic{
				DepID: depID, DepState: dep.State, RequiredStates: requiredStates,
				Reason: "dependency not in a satisfied state", DepSessionID: dep.SessionID,
			})
		}
	}
	return diags
}

func (e *Evaluator) satisfiedStateList() []string {
	out := make([]string, 0, len(e.satisfied))
	for s := range e.satisfied {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Ready returns every todo task whose dependencies are all satisfied.
func (e *Evaluator) Ready() []*entity.Entity {
	var out []*entity.Entity
	for _, scoped := range e.bySessionScope {
		for _, t := range scoped {
			if t.State != "todo" {
				continue
			}
			if len(e.diagnose(t)) == 0 {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Blocked returns every todo task with at least one unsatisfied dependency.
func (e *Evaluator) Blocked() []BlockedTask {
	var out []BlockedTask
	for _, scoped := range e.bySessionScope {
		for _, t := range scoped {
			if t.State != "todo" {
				continue
			}
			diags := e.diagnose(t)
			if len(diags) > 0 {
				out = append(out, BlockedTask{Task: t, ID: t.ID, Diagnostics: diags})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
