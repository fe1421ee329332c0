// Package statemachine implements the declarative entity transition model:
// per-entity-type transition tables with guard predicates and action hooks,
// dispatched through named registries. The tables are built in code
// (DefaultTaskTable, DefaultQATable, DefaultSessionTable); none is read
// from configuration.
package statemachine

import (
	"fmt"
	"time"

	"github.com/edison-dev/edison/internal/entity"
)

// Context is the evaluation context passed to every guard and action.
// Implementations live in the calling package (session/evidence/validation)
// since the state machine itself must not import them back (it would
// create an import cycle with EvidenceService/ValidationOrchestrator,
// which themselves drive transitions).
type Context struct {
	Entity    *entity.Entity
	ToState   string
	Reason    string
	Extra     map[string]any
}

// Guard is a pure predicate; any non-true result blocks the transition
// (fail-closed, spec §4.4).
type Guard func(ctx *Context) (bool, string)

// Action performs a side effect during a transition. A Compensate function,
// if registered, is invoked to undo a prior action's effect when a later
// action in the same transition fails.
type Action struct {
	Name       string
	Run        func(ctx *Context) error
	Compensate func(ctx *Context) error
}

// IllegalTransition is raised when no (from, to) entry exists for an
// entity's current state.
type IllegalTransition struct {
	Kind entity.Kind
	From string
	To   string
}

func (e *IllegalTransition) Error() string {
	return fmt.Sprintf("statemachine: illegal transition %s %s -> %s", e.Kind, e.From, e.To)
}

// GuardFailed carries every violation collected while evaluating guards for
// a transition. The entity is left unchanged.
type GuardFailed struct {
	Violations []entity.Violation
}

func (e *GuardFailed) Error() string {
	return fmt.Sprintf("statemachine: %d guard(s) failed", len(e.Violations))
}

// TransitionSpec is one allowed outgoing edge from a state.
type TransitionSpec struct {
	To      string
	Guards  []string
	Actions []string
}

// StateSpec describes one state's metadata and its allowed outgoing edges.
type StateSpec struct {
	Initial     bool
	Final       bool
	Transitions []TransitionSpec
}

// Table is the declarative transition model for one entity Kind: a map of
// state name to its spec. The tables in use come from DefaultTaskTable,
// DefaultQATable and DefaultSessionTable; workflow.yml does not supply or
// override them.
type Table map[string]StateSpec

// Registry resolves guard/action ids to their implementations. Built-ins
// are registered by this package's RegisterBuiltinGuards/RegisterBuiltinActions
// over small backend interfaces, so it never imports evidence or session;
// see RegisterGuard/RegisterAction.
type Registry struct {
	guards  map[string]Guard
	actions map[string]Action
}

// NewRegistry returns an empty Registry ready for built-ins to register into.
func NewRegistry() *Registry {
	return &Registry{guards: map[string]Guard{}, actions: map[string]Action{}}
}

// RegisterGuard adds or replaces a named guard.
func (r *Registry) RegisterGuard(id string, g Guard) {
	r.guards[id] = g
}

// RegisterAction adds or replaces a named action.
func (r *Registry) RegisterAction(id string, a Action) {
	r.actions[id] = a
}

// Machine drives transitions for one entity Kind against a Table and
// Registry, persisting the result through a Store-like interface.
type Machine struct {
	Kind     entity.Kind
	Table    Table
	Registry *Registry
	Store    EntityPersister
}

// EntityPersister is the subset of entity.Store the machine needs, kept as
// an interface so tests can substitute an in-memory fake.
type EntityPersister interface {
	MoveToState(ent *entity.Entity, oldState string) error
}

// NewMachine builds a Machine.
func NewMachine(kind entity.Kind, table Table, reg *Registry, store EntityPersister) *Machine {
	return &Machine{Kind: kind, Table: table, Registry: reg, Store: store}
}

// Transition drives ent from its current state to toState, evaluating
// guards, then actions, then committing the move and history entry.
// Pipeline order matches spec §4.4 exactly.
func (m *Machine) Transition(ent *entity.Entity, toState, reason string, extra map[string]any) (*entity.Entity, error) {
	fromState := ent.State
	spec, ok := m.Table[fromState]
	if !ok {
		return nil, &IllegalTransition{Kind: m.Kind, From: fromState, To: toState}
	}
	var edge *TransitionSpec
	for i := range spec.Transitions {
		if spec.Transitions[i].To == toState {
			edge = &spec.Transitions[i]
			break
		}
	}
	if edge == nil {
		return nil, &IllegalTransition{Kind: m.Kind, From: fromState, To: toState}
	}

	ctx := &Context{Entity: ent, ToState: toState, Reason: reason, Extra: extra}

	var violations []entity.Violation
	for _, gid := range edge.Guards {
		guard, ok := m.Registry.guards[gid]
		if !ok {
			violations = append(violations, entity.Violation{Guard: gid, Reason: "guard not registered"})
			continue
		}
		ok2, why := guard(ctx)
		if ok2 != true {
			if why == "" {
				why = "guard failed"
			}
			violations = append(violations, entity.Violation{Guard: gid, Reason: why})
		}
	}
	if len(violations) > 0 {
		return nil, &GuardFailed{Violations: violations}
	}

	var executed []Action
	for _, aid := range edge.Actions {
		act, ok := m.Registry.actions[aid]
		if !ok {
			m.rollback(executed, ctx)
			return nil, fmt.Errorf("statemachine: action %q not registered", aid)
		}
		if err := act.Run(ctx); err != nil {
			m.rollback(executed, ctx)
			return nil, fmt.Errorf("statemachine: action %q failed: %w", aid, err)
		}
		executed = append(executed, act)
	}

	ent.History = append(ent.History, entity.HistoryEntry{
		From: fromState, To: toState, Ts: time.Now().UTC(), Reason: reason,
	})
	ent.State = toState

	if err := m.Store.MoveToState(ent, fromState); err != nil {
		return nil, fmt.Errorf("statemachine: persisting transition: %w", err)
	}
	return ent, nil
}

// rollback runs compensating actions for already-executed actions, in
// reverse order, best-effort (a failing compensation surfaces nothing
// further since the original error already dominates).
func (m *Machine) rollback(executed []Action, ctx *Context) {
	for i := len(executed) - 1; i >= 0; i-- {
		if executed[i].Compensate != nil {
			_ = executed[i].Compensate(ctx)
		}
	}
}
