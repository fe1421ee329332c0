package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigError is raised when a required key is missing or a value fails
// schema validation. Domains fail closed on required keys.
type ConfigError struct {
	Domain string
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s.%s: %s", e.Domain, e.Key, e.Reason)
}

// Registry loads the layer stack, merges every *.yml/*.yaml file found at
// matching relative paths across layers (low to high precedence), and
// serves typed domain views over the merged tree. It caches the merged
// document per (root, stack fingerprint).
type Registry struct {
	root             string
	bundledConfigDir string
	projectConfigDir string

	mu     sync.RWMutex
	cache  map[string]map[string]any // fingerprint -> merged doc, by relative file
	layers []Layer
}

var (
	globalMu  sync.Mutex
	instances = map[string]*Registry{}
)

// NewRegistry constructs a Registry rooted at root. bundledConfigDir is the
// location of the binary's bundled default config (read-only).
func NewRegistry(root, bundledConfigDir string) (*Registry, error) {
	projectConfigDir := filepath.Join(root, ".edison", "config")
	layers, err := BuildLayerStack(bundledConfigDir, projectConfigDir)
	if err != nil {
		return nil, err
	}
	return &Registry{
		root:             root,
		bundledConfigDir: bundledConfigDir,
		projectConfigDir: projectConfigDir,
		cache:            map[string]map[string]any{},
		layers:           layers,
	}, nil
}

// ForProject returns (creating if needed) the process-wide Registry for the
// given root. Each workspace context keeps its own instance instead of a
// single global, but CLI entry points that don't carry a context through
// yet can use this convenience accessor.
func ForProject(root, bundledConfigDir string) (*Registry, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if r, ok := instances[root]; ok {
		return r, nil
	}
	r, err := NewRegistry(root, bundledConfigDir)
	if err != nil {
		return nil, err
	}
	instances[root] = r
	return r, nil
}

// ClearAllCaches drops every process-wide Registry instance and their merge
// caches. Intended for tests and `edison config reload`-style reconfiguration.
func ClearAllCaches() {
	globalMu.Lock()
	defer globalMu.Unlock()
	instances = map[string]*Registry{}
}

// Fingerprint returns the current stack fingerprint, recomputed from the
// layer list captured at construction time.
func (r *Registry) Fingerprint() string {
	return StackFingerprint(r.layers)
}

// Load merges a single relative config document (e.g. "task.yml") across
// every enabled layer, low to high precedence, including any packs attached
// to a layer (packs are merged in attach order immediately before that
// layer is merged). Results are cached by (fingerprint, relPath).
func (r *Registry) Load(relPath string) (map[string]any, error) {
	key := r.Fingerprint() + "::" + relPath

	r.mu.RLock()
	if cached, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	merged := map[string]any{}
	for _, layer := range r.layers {
		if !layer.Enabled {
			continue
		}
		for _, pack := range layer.Packs {
			doc, err := readYAMLFile(filepath.Join(pack.Path, relPath))
			if err != nil {
				return nil, err
			}
			if doc != nil {
				m, err := MergeLayer(merged, doc)
				if err != nil {
					return nil, fmt.Errorf("merging pack %s/%s: %w", layer.ID, pack.ID, err)
				}
				merged = m
			}
		}
		doc, err := readYAMLFile(filepath.Join(layer.Path, relPath))
		if err != nil {
			return nil, err
		}
		if doc != nil {
			m, err := MergeLayer(merged, doc)
			if err != nil {
				return nil, fmt.Errorf("merging layer %s: %w", layer.ID, err)
			}
			merged = m
		}
	}

	r.mu.Lock()
	r.cache[key] = merged
	r.mu.Unlock()

	return merged, nil
}

// ClearCache drops this Registry's merge cache without discarding the
// resolved layer stack.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	r.cache = map[string]map[string]any{}
	r.mu.Unlock()
}

func readYAMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from resolved layer/pack directories
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return doc, nil
}

// RequireString fetches a required string key from a domain document,
// failing closed with a ConfigError when absent or not a string.
func RequireString(domain string, doc map[string]any, key string) (string, error) {
	v, ok := doc[key]
	if !ok {
		return "", &ConfigError{Domain: domain, Key: key, Reason: "missing required key"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ConfigError{Domain: domain, Key: key, Reason: "expected string"}
	}
	return s, nil
}

// OptString fetches an optional string key, returning def when absent.
func OptString(doc map[string]any, key, def string) string {
	if v, ok := doc[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// OptBool fetches an optional bool key, returning def when absent.
func OptBool(doc map[string]any, key string, def bool) bool {
	if v, ok := doc[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// OptStringSlice fetches an optional []string key, filtering out any
// residual array-marker tokens that a misconfigured leaf document left in.
func OptStringSlice(doc map[string]any, key string) []string {
	v, ok := doc[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && !isMarkerString(s) {
			out = append(out, s)
		}
	}
	return out
}
