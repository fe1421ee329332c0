package config

import "fmt"

// WorkflowConfig is the read-through projection of workflow.yml: the
// semantic state names for tasks/QA/sessions and the state->directory map
// PathResolver uses to materialize state as a directory.
type WorkflowConfig struct {
	TaskStates    []string
	QAStates      []string
	SessionStates []string
	TaskDirs      map[string]string
	QADirs        map[string]string
	SessionDirs   map[string]string
}

var defaultWorkflowConfig = WorkflowConfig{
	TaskStates:    []string{"todo", "wip", "done", "validated"},
	QAStates:      []string{"waiting", "todo", "wip", "done", "validated"},
	SessionStates: []string{"active", "closing", "validated"},
	TaskDirs: map[string]string{
		"todo": "todo", "wip": "wip", "done": "done", "validated": "validated",
	},
	QADirs: map[string]string{
		"waiting": "waiting", "todo": "todo", "wip": "wip", "done": "done", "validated": "validated",
	},
	SessionDirs: map[string]string{
		"active": "active", "closing": "closing", "validated": "validated",
	},
}

// Workflow loads the workflow domain view, falling back to documented
// defaults for any state/dir map not explicitly overridden.
func (r *Registry) Workflow() (*WorkflowConfig, error) {
	doc, err := r.Load("workflow.yml")
	if err != nil {
		return nil, err
	}
	cfg := defaultWorkflowConfig
	if doc == nil {
		return &cfg, nil
	}
	if v := OptStringSlice(doc, "task_states"); v != nil {
		cfg.TaskStates = v
	}
	if v := OptStringSlice(doc, "qa_states"); v != nil {
		cfg.QAStates = v
	}
	if v := OptStringSlice(doc, "session_states"); v != nil {
		cfg.SessionStates = v
	}
	if m, ok := doc["task_dirs"].(map[string]any); ok {
		cfg.TaskDirs = mergeDirMap(cfg.TaskDirs, m)
	}
	if m, ok := doc["qa_dirs"].(map[string]any); ok {
		cfg.QADirs = mergeDirMap(cfg.QADirs, m)
	}
	if m, ok := doc["session_dirs"].(map[string]any); ok {
		cfg.SessionDirs = mergeDirMap(cfg.SessionDirs, m)
	}
	return &cfg, nil
}

func mergeDirMap(base map[string]string, override map[string]any) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// TaskConfig is the read-through projection of task.yml.
type TaskConfig struct {
	MissingDependencyPolicy string // "block" (default) | "ignore"
	SatisfiedStates         []string
	SimilarityThreshold     float64
	SimilarityShingleSize   int
	SimilarityTitleWeight   float64
	SimilarityBodyWeight    float64
	SimilarityUseShingles   bool
}

// Task loads the task domain view.
func (r *Registry) Task() (*TaskConfig, error) {
	doc, err := r.Load("task.yml")
	if err != nil {
		return nil, err
	}
	cfg := &TaskConfig{
		MissingDependencyPolicy: "block",
		SatisfiedStates:         []string{"done", "validated"},
		SimilarityThreshold:     0.6,
		SimilarityShingleSize:   3,
		SimilarityTitleWeight:   0.6,
		SimilarityBodyWeight:    0.4,
		SimilarityUseShingles:   true,
	}
	if doc == nil {
		return cfg, nil
	}
	cfg.MissingDependencyPolicy = OptString(doc, "missing_dependency_policy", cfg.MissingDependencyPolicy)
	if v := OptStringSlice(doc, "satisfied_states"); v != nil {
		cfg.SatisfiedStates = v
	}
	if v, ok := doc["similarity_threshold"].(float64); ok {
		cfg.SimilarityThreshold = v
	}
	if v, ok := doc["similarity_shingle_size"].(int); ok {
		cfg.SimilarityShingleSize = v
	}
	if v, ok := doc["similarity_title_weight"].(float64); ok {
		cfg.SimilarityTitleWeight = v
	}
	if v, ok := doc["similarity_body_weight"].(float64); ok {
		cfg.SimilarityBodyWeight = v
	}
	if v, ok := doc["similarity_use_shingles"].(bool); ok {
		cfg.SimilarityUseShingles = v
	}
	return cfg, nil
}

// QAConfig is the read-through projection of qa.yml.
type QAConfig struct {
	RequiredEvidence []string // filenames/kinds gating wip->done
}

// QA loads the QA domain view. Fails closed: required_evidence must be
// declared explicitly or task.ready can never find evidence complete.
func (r *Registry) QA() (*QAConfig, error) {
	doc, err := r.Load("qa.yml")
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, &ConfigError{Domain: "qa", Key: "required_evidence", Reason: "missing required key"}
	}
	req := OptStringSlice(doc, "required_evidence")
	if req == nil {
		return nil, &ConfigError{Domain: "qa", Key: "required_evidence", Reason: "missing required key"}
	}
	return &QAConfig{RequiredEvidence: req}, nil
}

// ValidatorSpec is one entry of validation.validators.
type ValidatorSpec struct {
	ID         string
	Name       string
	Engine     string
	Wave       string
	AlwaysRun  bool
	Blocking   bool
	Triggers   []string
	Focus      []string
	WebServer  *WebServerSpec
}

// WebServerSpec is the optional web-server guard a validator may declare.
type WebServerSpec struct {
	URL               string
	EnsureRunning     bool
	StartCommand      string
	HealthcheckURL    string
	StopCommand       string
	StartupTimeoutSec int
}

// WaveSpec is one entry of validation.waves.
type WaveSpec struct {
	Name                string
	RequiresPreviousPass bool
	ContinueOnFail       bool
}

// PresetSpec is one entry of validation.presets.
type PresetSpec struct {
	Name               string
	Validators         []string
	BlockingValidators []string
	RequiredEvidence   []string
}

// OrchestratorConfig is the read-through projection of validation.yml.
type OrchestratorConfig struct {
	Validators        map[string]ValidatorSpec
	Waves             []WaveSpec
	Presets           map[string]PresetSpec
	DefaultPreset     string
	SessionClosePreset string
	MaxWorkers        int
	Sequential        bool
}

// Orchestrator loads the validation domain view.
func (r *Registry) Orchestrator() (*OrchestratorConfig, error) {
	doc, err := r.Load("validation.yml")
	if err != nil {
		return nil, err
	}
	cfg := &OrchestratorConfig{
		Validators:    map[string]ValidatorSpec{},
		Presets:       map[string]PresetSpec{},
		DefaultPreset: "default",
		MaxWorkers:    4,
	}
	if doc == nil {
		return cfg, nil
	}
	if m, ok := doc["validators"].(map[string]any); ok {
		for id, raw := range m {
			spec, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			v := ValidatorSpec{
				ID:        id,
				Name:      OptString(spec, "name", id),
				Engine:    OptString(spec, "engine", "agent"),
				Wave:      OptString(spec, "wave", "default"),
				AlwaysRun: OptBool(spec, "always_run", false),
				Blocking:  OptBool(spec, "blocking", true),
				Triggers:  OptStringSlice(spec, "triggers"),
				Focus:     OptStringSlice(spec, "focus"),
			}
			if ws, ok := spec["web_server"].(map[string]any); ok {
				v.WebServer = &WebServerSpec{
					URL:               OptString(ws, "url", ""),
					EnsureRunning:     OptBool(ws, "ensure_running", false),
					StartCommand:      OptString(ws, "start_command", ""),
					HealthcheckURL:    OptString(ws, "healthcheck_url", ""),
					StopCommand:       OptString(ws, "stop_command", ""),
					StartupTimeoutSec: 30,
				}
				if n, ok := ws["startup_timeout_seconds"].(int); ok {
					v.WebServer.StartupTimeoutSec = n
				}
			}
			cfg.Validators[id] = v
		}
	}
	if arr, ok := doc["waves"].([]any); ok {
		for _, raw := range arr {
			w, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			cfg.Waves = append(cfg.Waves, WaveSpec{
				Name:                 OptString(w, "name", ""),
				RequiresPreviousPass: OptBool(w, "requires_previous_pass", false),
				ContinueOnFail:       OptBool(w, "continue_on_fail", false),
			})
		}
	}
	if m, ok := doc["presets"].(map[string]any); ok {
		for name, raw := range m {
			p, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			cfg.Presets[name] = PresetSpec{
				Name:               name,
				Validators:         OptStringSlice(p, "validators"),
				BlockingValidators: OptStringSlice(p, "blocking_validators"),
				RequiredEvidence:   OptStringSlice(p, "required_evidence"),
			}
		}
	}
	cfg.DefaultPreset = OptString(doc, "default_preset", cfg.DefaultPreset)
	cfg.SessionClosePreset = OptString(doc, "session_close_preset", cfg.SessionClosePreset)
	return cfg, nil
}

// Lint validates the loaded validator set against known configuration
// footguns. Currently: triggers:["*"] combined with always_run:false, which
// silently degrades to "never runs unless explicitly selected".
func (c *OrchestratorConfig) Lint() []error {
	var errs []error
	for id, v := range c.Validators {
		for _, t := range v.Triggers {
			if t == "*" && !v.AlwaysRun {
				errs = append(errs, fmt.Errorf(
					"validator %q: triggers:[\"*\"] with always_run:false never actually triggers; set always_run:true or narrow the glob", id))
			}
		}
	}
	return errs
}

// ExecutionConfig is the read-through projection of execution.yml (worktree
// layout, base branch, enforcement policy).
type ExecutionConfig struct {
	WorktreesEnabled     bool
	BranchPrefix         string
	BaseBranch           string
	WorktreeBaseDir      string
	EnforcementEnabled   bool
	EnforcementCommands  []string
}

// Execution loads the session/worktree execution domain view.
func (r *Registry) Execution() (*ExecutionConfig, error) {
	doc, err := r.Load("execution.yml")
	if err != nil {
		return nil, err
	}
	cfg := &ExecutionConfig{
		WorktreesEnabled: true,
		BranchPrefix:     "edison/",
		BaseBranch:       "main",
		WorktreeBaseDir:  ".edison-worktrees",
	}
	if doc == nil {
		return cfg, nil
	}
	cfg.WorktreesEnabled = OptBool(doc, "worktrees_enabled", cfg.WorktreesEnabled)
	cfg.BranchPrefix = OptString(doc, "branch_prefix", cfg.BranchPrefix)
	cfg.BaseBranch = OptString(doc, "base_branch", cfg.BaseBranch)
	cfg.WorktreeBaseDir = OptString(doc, "worktree_base_dir", cfg.WorktreeBaseDir)
	if enf, ok := doc["enforcement"].(map[string]any); ok {
		cfg.EnforcementEnabled = OptBool(enf, "enabled", false)
		cfg.EnforcementCommands = OptStringSlice(enf, "commands")
	}
	return cfg, nil
}

// Context7Config is the read-through projection of context7.yml.
type Context7Config struct {
	Enabled          bool
	TriggerPackages  []string
}

// Context7 loads the Context7 domain view.
func (r *Registry) Context7() (*Context7Config, error) {
	doc, err := r.Load("context7.yml")
	if err != nil {
		return nil, err
	}
	cfg := &Context7Config{Enabled: true}
	if doc == nil {
		return cfg, nil
	}
	cfg.Enabled = OptBool(doc, "enabled", true)
	cfg.TriggerPackages = OptStringSlice(doc, "trigger_packages")
	return cfg, nil
}

// AdaptersConfig is the read-through projection of adapters.yml, the only
// thing the core exposes about the (out-of-scope) per-platform adapters.
type AdaptersConfig struct {
	Targets         []string // e.g. "claude", "codex", "opencode", "cursor"
	PrefixOverrides map[string]string
}

// Adapters loads the adapters domain view.
func (r *Registry) Adapters() (*AdaptersConfig, error) {
	doc, err := r.Load("adapters.yml")
	if err != nil {
		return nil, err
	}
	cfg := &AdaptersConfig{Targets: []string{"claude", "codex", "opencode", "cursor"}}
	if doc == nil {
		return cfg, nil
	}
	if v := OptStringSlice(doc, "targets"); v != nil {
		cfg.Targets = v
	}
	if m, ok := doc["prefix_overrides"].(map[string]any); ok {
		cfg.PrefixOverrides = map[string]string{}
		for k, v := range m {
			if s, ok := v.(string); ok {
				cfg.PrefixOverrides[k] = s
			}
		}
	}
	return cfg, nil
}

// ResilienceConfig is the read-through projection of resilience.yml
// (subprocess retry/backoff policy).
type ResilienceConfig struct {
	MaxAttempts   int
	InitialDelayMS int
	BackoffFactor  float64
	MaxDelayMS     int
}

// ComposeConfig is the read-through projection of compose.yml: include
// resolution limits, the active pack order, and dedup tuning for the
// Composer's CONCATENATE mode.
type ComposeConfig struct {
	MaxIncludeDepth int
	ActivePacks     []string // pack ids, low to high precedence
	ShingleK        int      // rolling word-shingle width
	ShingleMin      int      // minimum shared shingles to call two paragraphs duplicates
}

// Compose loads the composition domain view.
func (r *Registry) Compose() (*ComposeConfig, error) {
	doc, err := r.Load("compose.yml")
	if err != nil {
		return nil, err
	}
	cfg := &ComposeConfig{MaxIncludeDepth: 3, ShingleK: 12, ShingleMin: 3}
	if doc == nil {
		return cfg, nil
	}
	if v, ok := doc["max_include_depth"].(int); ok {
		cfg.MaxIncludeDepth = v
	}
	if v := OptStringSlice(doc, "active_packs"); v != nil {
		cfg.ActivePacks = v
	}
	if v, ok := doc["shingle_k"].(int); ok {
		cfg.ShingleK = v
	}
	if v, ok := doc["shingle_min"].(int); ok {
		cfg.ShingleMin = v
	}
	return cfg, nil
}

// Resilience loads the resilience domain view.
func (r *Registry) Resilience() (*ResilienceConfig, error) {
	doc, err := r.Load("resilience.yml")
	if err != nil {
		return nil, err
	}
	cfg := &ResilienceConfig{MaxAttempts: 3, InitialDelayMS: 200, BackoffFactor: 2.0, MaxDelayMS: 5000}
	if doc == nil {
		return cfg, nil
	}
	if v, ok := doc["retry"].(map[string]any); ok {
		if n, ok := v["max_attempts"].(int); ok {
			cfg.MaxAttempts = n
		}
		if n, ok := v["initial_delay_ms"].(int); ok {
			cfg.InitialDelayMS = n
		}
		if f, ok := v["backoff_factor"].(float64); ok {
			cfg.BackoffFactor = f
		}
		if n, ok := v["max_delay_ms"].(int); ok {
			cfg.MaxDelayMS = n
		}
	}
	return cfg, nil
}

// TelemetryConfig is the read-through projection of telemetry.yml.
// Enabled is a pointer because absence (not configured) and explicit false
// are different states: nil defaults to disabled, matching the teacher's
// opt-in-only telemetry posture.
type TelemetryConfig struct {
	Enabled *bool
}

// Telemetry loads the telemetry domain view.
func (r *Registry) Telemetry() (*TelemetryConfig, error) {
	doc, err := r.Load("telemetry.yml")
	if err != nil {
		return nil, err
	}
	cfg := &TelemetryConfig{}
	if doc == nil {
		return cfg, nil
	}
	if v, ok := doc["enabled"].(bool); ok {
		cfg.Enabled = &v
	}
	return cfg, nil
}
