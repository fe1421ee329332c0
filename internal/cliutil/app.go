package cliutil

import (
	"os"
	"path/filepath"

	"github.com/edison-dev/edison/internal/compose"
	"github.com/edison-dev/edison/internal/config"
	"github.com/edison-dev/edison/internal/entity"
	"github.com/edison-dev/edison/internal/evidence"
	"github.com/edison-dev/edison/internal/gitcap"
	"github.com/edison-dev/edison/internal/paths"
	"github.com/edison-dev/edison/internal/readiness"
	"github.com/edison-dev/edison/internal/session"
	"github.com/edison-dev/edison/internal/statemachine"
	"github.com/edison-dev/edison/internal/validation"
)

// dirLister adapts paths.Resolver and config.WorkflowConfig's state->dir
// maps into entity.DirLister. No concrete implementer existed prior to this
// package: Resolver exposes single-state accessors (TaskDir(state), ...)
// while entity.Store wants "every candidate directory for kind, in search
// order" plus "the one directory to write a given state into".
//
// scopeSessionID, when set, makes this lister's write target (DirForState)
// and read priority (StateDirs) a specific session's scoped tree; global
// directories and every other session's scoped tree are still searched,
// just after the pinned scope, so cross-session dependency lookups and
// session-close migrations still see everything.
type dirLister struct {
	resolver       *paths.Resolver
	wf             *config.WorkflowConfig
	listSessionIDs func() []string
	scopeSessionID string
}

func newDirLister(resolver *paths.Resolver, wf *config.WorkflowConfig, listSessionIDs func() []string, scopeSessionID string) *dirLister {
	return &dirLister{resolver: resolver, wf: wf, listSessionIDs: listSessionIDs, scopeSessionID: scopeSessionID}
}

func (d *dirLister) statesFor(kind entity.Kind) []string {
	switch kind {
	case entity.KindTask:
		return d.wf.TaskStates
	case entity.KindQA:
		return d.wf.QAStates
	case entity.KindSession:
		return d.wf.SessionStates
	default:
		return nil
	}
}

func (d *dirLister) globalDir(kind entity.Kind, state string) string {
	switch kind {
	case entity.KindTask:
		return d.resolver.TaskDir(state)
	case entity.KindQA:
		return d.resolver.QADir(state)
	case entity.KindSession:
		return d.resolver.SessionDir(state)
	default:
		return ""
	}
}

func (d *dirLister) scopedDir(kind entity.Kind, sessionID, state string) string {
	switch kind {
	case entity.KindTask:
		return d.resolver.ScopedTaskDir(sessionID, state)
	case entity.KindQA:
		return d.resolver.ScopedQADir(sessionID, state)
	default:
		return d.globalDir(kind, state)
	}
}

// StateDirs implements entity.DirLister.
func (d *dirLister) StateDirs(kind entity.Kind) []string {
	states := d.statesFor(kind)
	var dirs []string

	if kind == entity.KindSession {
		for _, s := range states {
			dirs = append(dirs, d.globalDir(kind, s))
		}
		return dirs
	}

	if d.scopeSessionID != "" {
		for _, s := range states {
			dirs = append(dirs, d.scopedDir(kind, d.scopeSessionID, s))
		}
	}
	for _, s := range states {
		dirs = append(dirs, d.globalDir(kind, s))
	}
	if d.listSessionIDs != nil {
		for _, sid := range d.listSessionIDs() {
			if sid == d.scopeSessionID {
				continue
			}
			for _, s := range states {
				dirs = append(dirs, d.scopedDir(kind, sid, s))
			}
		}
	}
	return dirs
}

// DirForState implements entity.DirLister.
func (d *dirLister) DirForState(kind entity.Kind, state string) string {
	if kind != entity.KindSession && d.scopeSessionID != "" {
		return d.scopedDir(kind, d.scopeSessionID, state)
	}
	return d.globalDir(kind, state)
}

// App bundles every backend the CommandSurface wires into cobra handlers:
// the config registry and its loaded domain views, the path resolver, the
// three entity stores, and the services layered on top of them.
type App struct {
	Root     string
	Registry *config.Registry
	Resolver *paths.Resolver

	Workflow   *config.WorkflowConfig
	TaskCfg    *config.TaskConfig
	QACfg      *config.QAConfig
	Orch       *config.OrchestratorConfig
	Exec       *config.ExecutionConfig
	Context7   *config.Context7Config
	Adapters   *config.AdaptersConfig
	Resilience *config.ResilienceConfig
	ComposeCfg *config.ComposeConfig
	Telemetry  *config.TelemetryConfig

	TaskStore    *entity.Store
	QAStore      *entity.Store
	SessionStore *entity.Store

	Evidence      *evidence.Service
	Git           gitcap.Capability
	Sessions      *session.Manager
	Composer      *compose.Composer
	Validation    *validation.Orchestrator
	StateMachines *statemachine.Registry

	TaskMachine    *statemachine.Machine
	QAMachine      *statemachine.Machine
	SessionMachine *statemachine.Machine
}

// BundledConfigDir is the path of edison's default (bundled_core) config
// layer; compose joins it under the project root. Overridable in tests.
var BundledConfigDir = "configs/defaults"

// NewApp resolves the project root and wires every backend service needed
// by the CommandSurface. bundledConfigDir overrides BundledConfigDir when
// non-empty (tests point this at a fixture directory).
func NewApp(rootOverride, bundledConfigDir string) (*App, error) {
	root, err := paths.ResolveProjectRoot(rootOverride)
	if err != nil {
		return nil, err
	}
	if bundledConfigDir == "" {
		bundledConfigDir = BundledConfigDir
	}

	reg, err := config.NewRegistry(root, bundledConfigDir)
	if err != nil {
		return nil, err
	}

	wf, err := reg.Workflow()
	if err != nil {
		return nil, err
	}
	taskCfg, err := reg.Task()
	if err != nil {
		return nil, err
	}
	qaCfg, err := reg.QA()
	if err != nil {
		return nil, err
	}
	orch, err := reg.Orchestrator()
	if err != nil {
		return nil, err
	}
	exec, err := reg.Execution()
	if err != nil {
		return nil, err
	}
	ctx7, err := reg.Context7()
	if err != nil {
		return nil, err
	}
	adapters, err := reg.Adapters()
	if err != nil {
		return nil, err
	}
	resilienceCfg, err := reg.Resilience()
	if err != nil {
		return nil, err
	}
	composeCfg, err := reg.Compose()
	if err != nil {
		return nil, err
	}
	telemetryCfg, err := reg.Telemetry()
	if err != nil {
		return nil, err
	}

	resolver := paths.NewResolver(root, wf.TaskDirs, wf.QADirs, wf.SessionDirs)

	app := &App{
		Root: root, Registry: reg, Resolver: resolver,
		Workflow: wf, TaskCfg: taskCfg, QACfg: qaCfg, Orch: orch, Exec: exec,
		Context7: ctx7, Adapters: adapters, Resilience: resilienceCfg,
		ComposeCfg: composeCfg, Telemetry: telemetryCfg,
	}

	sessionIDLister := app.listSessionIDs

	taskStore, err := entity.NewStore(newDirLister(resolver, wf, sessionIDLister, ""), 256)
	if err != nil {
		return nil, err
	}
	qaStore, err := entity.NewStore(newDirLister(resolver, wf, sessionIDLister, ""), 256)
	if err != nil {
		return nil, err
	}
	sessionStore, err := entity.NewStore(newDirLister(resolver, wf, sessionIDLister, ""), 64)
	if err != nil {
		return nil, err
	}
	app.TaskStore, app.QAStore, app.SessionStore = taskStore, qaStore, sessionStore

	ev := evidence.NewService(resolver.EvidenceRoundDir, resolver.EvidenceTaskDir)
	ev.SetRequiredEvidence(qaCfg.RequiredEvidence)
	app.Evidence = ev

	app.Git = gitcap.New()
	app.Sessions = session.NewManager(sessionStore, app.Git, resolver, exec)

	projectConfigDir := filepath.Join(root, paths.EdisonConfigDir)
	app.Composer = compose.NewComposer(root, projectConfigDir, composeCfg)

	engines := map[string]validation.Engine{
		"secrets-scan": validation.NewSecretScanEngine(),
	}
	app.Validation = validation.NewOrchestrator(orch, ev, engines)

	app.StateMachines = statemachine.NewRegistry()
	deps := readiness.NewEvaluator(nil, taskCfg.SatisfiedStates, readiness.MissingDependencyPolicy(taskCfg.MissingDependencyPolicy))
	statemachine.RegisterBuiltinGuards(app.StateMachines, ev, deps)
	statemachine.RegisterBuiltinActions(app.StateMachines, statemachine.ActionDeps{
		Activity: activityLoggerAdapter{app: app},
		QA:       qaAdvancerAdapter{app: app},
		Bundles:  ev,
	})

	app.TaskMachine = statemachine.NewMachine(entity.KindTask, statemachine.DefaultTaskTable(), app.StateMachines, taskStore)
	app.QAMachine = statemachine.NewMachine(entity.KindQA, statemachine.DefaultQATable(), app.StateMachines, qaStore)
	app.SessionMachine = statemachine.NewMachine(entity.KindSession, statemachine.DefaultSessionTable(), app.StateMachines, sessionStore)

	return app, nil
}

// listSessionIDs enumerates every session id currently materialized on
// disk, across every session lifecycle state, for cross-session dirLister
// search fan-out.
func (a *App) listSessionIDs() []string {
	var ids []string
	seen := map[string]bool{}
	for _, state := range a.Workflow.SessionStates {
		dir := a.Resolver.SessionDir(state)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			name := e.Name()
			if !seen[name] {
				seen[name] = true
				ids = append(ids, name)
			}
		}
	}
	return ids
}

// ReadinessEvaluator builds a fresh readiness.Evaluator over the current
// on-disk task snapshot. Built fresh per call since task state changes
// between CLI invocations (no long-lived daemon holds this in memory).
func (a *App) ReadinessEvaluator() (*readiness.Evaluator, error) {
	tasks, err := a.TaskStore.FindAll(entity.KindTask)
	if err != nil {
		return nil, err
	}
	return readiness.NewEvaluator(tasks, a.TaskCfg.SatisfiedStates, readiness.MissingDependencyPolicy(a.TaskCfg.MissingDependencyPolicy)), nil
}

// ScopedTaskStore returns a Store whose writes and read-priority target a
// specific session's scoped tree, for `task create --session-id` and the
// session-close migration.
func (a *App) ScopedTaskStore(sessionID string) (*entity.Store, error) {
	return entity.NewStore(newDirLister(a.Resolver, a.Workflow, a.listSessionIDs, sessionID), 64)
}

// ScopedQAStore is the QA analog of ScopedTaskStore.
func (a *App) ScopedQAStore(sessionID string) (*entity.Store, error) {
	return entity.NewStore(newDirLister(a.Resolver, a.Workflow, a.listSessionIDs, sessionID), 64)
}

// activityLoggerAdapter implements statemachine.ActivityLogger over
// session.Manager.AppendActivity, looking the session up by id first since
// the action contract only carries an id, not a loaded entity.
type activityLoggerAdapter struct{ app *App }

func (a activityLoggerAdapter) LogActivity(sessionID, message, entityRef string) error {
	sess, err := a.app.Sessions.Get(sessionID)
	if err != nil {
		return err
	}
	return a.app.Sessions.AppendActivity(sess, message, entityRef)
}

// qaAdvancerAdapter implements statemachine.QAAdvancer: when a task reaches
// done, its paired QA record advances from waiting to todo via its own
// machine so QA guard/action wiring stays in one place.
type qaAdvancerAdapter struct{ app *App }

func (a qaAdvancerAdapter) AdvanceQA(taskID, toState string) error {
	qaID := entity.QARecordID(taskID)
	qa, err := a.app.QAStore.Get(entity.KindQA, qaID)
	if err != nil {
		return err
	}
	_, err = a.app.QAMachine.Transition(qa, toState, "task reached done", nil)
	return err
}
