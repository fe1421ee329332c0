package readiness

import (
	"sort"

	"github.com/edison-dev/edison/internal/entity"
)

// WaveTask is one entry in a planned wave.
type WaveTask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	State string `json:"state"`
}

// Wave is one parallel batch of schedulable tasks.
type Wave struct {
	Wave  int        `json:"wave"`
	Tasks []WaveTask `json:"tasks"`
}

// Plan is TaskPlanner's output: spec §4.5.
type Plan struct {
	Waves   []Wave        `json:"waves"`
	Blocked []BlockedTask `json:"blocked"`
}

// unionFind is a standard union-find over string ids for related-cluster
// ordering within a wave.
type unionFind struct {
	parent map[string]string
}

func newUnionFind(ids []string) *unionFind {
	p := make(map[string]string, len(ids))
	for _, id := range ids {
		p[id] = id
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// Plan builds the wave plan per spec §4.5:
//  1. partition todos into externally-blocked vs schedulable
//  2. propagate blocked status through in-plan dependents
//  3. Kahn's algorithm over the remaining eligible set to produce waves
//  4. within a wave, order by related-cluster (union-find), then by id
func (e *Evaluator) Plan() Plan {
	todos := e.allTodos()

	todoByID := map[string]*entity.Entity{}
	for _, t := range todos {
		todoByID[t.ID] = t
	}

	// Step 1: a todo is externally blocked only when it has an unsatisfied
	// dependency that is NOT itself in the todos-being-planned set. An
	// unsatisfied dependency on another in-plan todo is left for Kahn's
	// algorithm (step 3) to sequence into a later wave.
	blockedSet := map[string]bool{}
	var blockedDiags []BlockedTask
	for _, t := range todos {
		var external []Diagnostic
		for _, d := range e.diagnose(t) {
			if _, inPlan := todoByID[d.DepID]; inPlan {
				continue
			}
			external = append(external, d)
		}
		if len(external) > 0 {
			blockedSet[t.ID] = true
			blockedDiags = append(blockedDiags, BlockedTask{Task: t, ID: t.ID, Diagnostics: external})
		}
	}

	// Propagate: a todo dependent on a blocked in-plan todo is itself
	// blocked, transitively, until a fixed point.
	changed := true
	for changed {
		changed = false
		for _, t := range todos {
			if blockedSet[t.ID] {
				continue
			}
			for _, dep := range t.DependsOn {
				if blockedSet[dep] {
					blockedSet[t.ID] = true
					blockedDiags = append(blockedDiags, BlockedTask{
						Task: t, ID: t.ID,
						Diagnostics: []Diagnostic{{
							DepID: dep, Reason: "depends on a blocked task within the plan",
						}},
					})
					changed = true
					break
				}
			}
		}
	}

	eligible := make([]*entity.Entity, 0, len(todos))
	for _, t := range todos {
		if !blockedSet[t.ID] {
			eligible = append(eligible, t)
		}
	}

	waves := kahnWaves(eligible)

	sort.Slice(blockedDiags, func(i, j int) bool { return blockedDiags[i].ID < blockedDiags[j].ID })
	return Plan{Waves: waves, Blocked: blockedDiags}
}

func (e *Evaluator) allTodos() []*entity.Entity {
	var out []*entity.Entity
	for _, scoped := range e.bySessionScope {
		for _, t := range scoped {
			if t.State == "todo" {
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func kahnWaves(eligible []*entity.Entity) []Wave {
	byID := map[string]*entity.Entity{}
	inDegree := map[string]int{}
	for _, t := range eligible {
		byID[t.ID] = t
		if _, ok := inDegree[t.ID]; !ok {
			inDegree[t.ID] = 0
		}
	}
	// dependents[dep] = list of ids that depend on dep, restricted to the
	// eligible in-plan set.
	dependents := map[string][]string{}
	for _, t := range eligible {
		for _, dep := range t.DependsOn {
			if _, ok := byID[dep]; ok {
				inDegree[t.ID]++
				dependents[dep] = append(dependents[dep], t.ID)
			}
		}
	}

	var waves []Wave
	remaining := len(eligible)
	consumed := map[string]bool{}
	waveNum := 1
	for remaining > 0 {
		var frontier []string
		for id, deg := range inDegree {
			if deg == 0 && !consumed[id] {
				frontier = append(frontier, id)
			}
		}
		if len(frontier) == 0 {
			// Residual cycle among "eligible" tasks (shouldn't happen per
			// spec invariant 3, acyclic graph) — stop rather than loop
			// forever; anything left is surfaced as its own final wave in
			// id order so no task silently disappears from the plan.
			sort.Strings(frontier)
			for id := range inDegree {
				if !consumed[id] {
					frontier = append(frontier, id)
				}
			}
			sort.Strings(frontier)
		}

		ordered := orderByRelatedCluster(frontier, byID)
		wt := make([]WaveTask, 0, len(ordered))
		for _, id := range ordered {
			t := byID[id]
			wt = append(wt, WaveTask{ID: t.ID, Title: t.Title, State: t.State})
			consumed[id] = true
			remaining--
			for _, dependent := range dependents[id] {
				inDegree[dependent]--
			}
		}
		waves = append(waves, Wave{Wave: waveNum, Tasks: wt})
		waveNum++
	}
	return waves
}

// orderByRelatedCluster groups ids by connected components of their
// related[] edges (restricted to the frontier set), then orders clusters
// and within-cluster members by id for determinism.
func orderByRelatedCluster(ids []string, byID map[string]*entity.Entity) []string {
	uf := newUnionFind(ids)
	inFrontier := map[string]bool{}
	for _, id := range ids {
		inFrontier[id] = true
	}
	for _, id := range ids {
		for _, rel := range byID[id].Related {
			if inFrontier[rel] {
				uf.union(id, rel)
			}
		}
	}

	clusters := map[string][]string{}
	for _, id := range ids {
		root := uf.find(id)
		clusters[root] = append(clusters[root], id)
	}

	var roots []string
	for root, members := range clusters {
		sort.Strings(members)
		clusters[root] = members
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool { return clusters[roots[i]][0] < clusters[roots[j]][0] })

	out := make([]string, 0, len(ids))
	for _, root := range roots {
		out = append(out, clusters[root]...)
	}
	return out
}
