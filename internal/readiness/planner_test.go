package readiness

import (
	"testing"

	"github.com/edison-dev/edison/internal/entity"
)

func task(id, state string, deps ...string) *entity.Entity {
	return &entity.Entity{ID: id, Title: id, State: state, DependsOn: deps}
}

func waveIDs(w Wave) []string {
	ids := make([]string, len(w.Tasks))
	for i, t := range w.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// TestPlan_InPlanDependencyIsNotExternallyBlocked is the concrete seed
// scenario: A(done), B(todo,deps:[A]), C(todo,deps:[B]),
// D(todo,deps:[A,Z-missing]). C depends on B, another todo in the same plan
// set, so C must not be externally blocked — it belongs in a later wave,
// not in the blocked list. D depends on a dependency that does not resolve
// at all, so it is genuinely externally blocked.
func TestPlan_InPlanDependencyIsNotExternallyBlocked(t *testing.T) {
	tasks := []*entity.Entity{
		task("A", "done"),
		task("B", "todo", "A"),
		task("C", "todo", "B"),
		task("D", "todo", "A", "Z-missing"),
	}
	e := NewEvaluator(tasks, []string{"done"}, PolicyBlock)
	plan := e.Plan()

	if len(plan.Waves) != 2 {
		t.Fatalf("expected 2 waves, got %d: %+v", len(plan.Waves), plan.Waves)
	}
	if got := waveIDs(plan.Waves[0]); len(got) != 1 || got[0] != "B" {
		t.Errorf("wave 1 = %v, want [B]", got)
	}
	if got := waveIDs(plan.Waves[1]); len(got) != 1 || got[0] != "C" {
		t.Errorf("wave 2 = %v, want [C]", got)
	}

	if len(plan.Blocked) != 1 || plan.Blocked[0].ID != "D" {
		t.Fatalf("blocked = %+v, want only [D]", plan.Blocked)
	}
}

// TestPlan_PropagatesBlockThroughInPlanChain verifies that once a todo is
// genuinely externally blocked, every in-plan dependent is transitively
// blocked too, rather than left dangling in a wave with an unmet
// dependency.
func TestPlan_PropagatesBlockThroughInPlanChain(t *testing.T) {
	tasks := []*entity.Entity{
		task("X", "todo", "missing-dep"),
		task("Y", "todo", "X"),
	}
	e := NewEvaluator(tasks, []string{"done"}, PolicyBlock)
	plan := e.Plan()

	if len(plan.Waves) != 0 {
		t.Fatalf("expected no schedulable waves, got %+v", plan.Waves)
	}
	if len(plan.Blocked) != 2 {
		t.Fatalf("expected both X and Y blocked, got %+v", plan.Blocked)
	}
}

// TestPlan_IgnorePolicySkipsMissingDeps confirms PolicyIgnore never
// externally blocks on an unresolved dependency id.
func TestPlan_IgnorePolicySkipsMissingDeps(t *testing.T) {
	tasks := []*entity.Entity{
		task("A", "todo", "ghost"),
	}
	e := NewEvaluator(tasks, []string{"done"}, PolicyIgnore)
	plan := e.Plan()

	if len(plan.Blocked) != 0 {
		t.Fatalf("expected no blocked tasks under PolicyIgnore, got %+v", plan.Blocked)
	}
	if len(plan.Waves) != 1 || len(plan.Waves[0].Tasks) != 1 {
		t.Fatalf("expected a single wave containing A, got %+v", plan.Waves)
	}
}
