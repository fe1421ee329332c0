// Package config implements the layered configuration stack: discovery,
// merge semantics, cached composition, typed domain views, and optional
// JSON-Schema validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Layer is one entry in the layer stack.
type Layer struct {
	ID      string
	Path    string
	Enabled bool
	// Packs attached to this layer, in attach order (low to high precedence).
	Packs []Pack
}

// Pack is a named overlay attached to a layer.
type Pack struct {
	ID   string
	Path string
}

// extraLayerSpec is the shape of an extras entry in config/layers.yaml.
type extraLayerSpec struct {
	ID      string `yaml:"id"`
	Path    string `yaml:"path"`
	Before  string `yaml:"before"`
	After   string `yaml:"after"`
	Enabled *bool  `yaml:"enabled"`
}

type layersFile struct {
	Extras []extraLayerSpec `yaml:"extras"`
	Packs  map[string][]Pack `yaml:"packs"` // layer id -> packs
}

// builtinLayerOrder is the fixed low-to-high precedence skeleton; extras are
// inserted into it by repeated topological placement.
var builtinLayerOrder = []string{"bundled_core", "user", "project", "project-local"}

// BuildLayerStack reads layers.yaml (if present) from the project config
// dir, and returns the full ordered stack low to high precedence. The
// bundled config dir is only used as the bundled_core layer's path; no
// layers.yaml is read from it.
func BuildLayerStack(bundledConfigDir, projectConfigDir string) ([]Layer, error) {
	spec, err := loadLayersFile(filepath.Join(projectConfigDir, "layers.yaml"))
	if err != nil {
		return nil, err
	}

	order, err := placeExtras(builtinLayerOrder, spec.Extras)
	if err != nil {
		return nil, err
	}

	layers := make([]Layer, 0, len(order))
	for _, id := range order {
		l := Layer{ID: id, Enabled: true}
		switch id {
		case "bundled_core":
			l.Path = bundledConfigDir
		case "user":
			home, herr := os.UserHomeDir()
			if herr == nil {
				l.Path = filepath.Join(home, ".edison", "config")
			}
		case "project":
			l.Path = projectConfigDir
		case "project-local":
			l.Path = filepath.Join(projectConfigDir, "local")
		default:
			for _, e := range spec.Extras {
				if e.ID == id {
					l.Path = resolveExtraPath(e.Path, projectConfigDir)
					if e.Enabled != nil {
						l.Enabled = *e.Enabled
					}
				}
			}
		}
		l.Packs = spec.Packs[id]
		layers = append(layers, l)
	}
	return layers, nil
}

func resolveExtraPath(p, projectConfigDir string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(projectConfigDir, p)
}

func loadLayersFile(path string) (*layersFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path built from resolved config directories
	if err != nil {
		if os.IsNotExist(err) {
			return &layersFile{}, nil
		}
		return nil, fmt.Errorf("reading layers.yaml: %w", err)
	}
	var spec layersFile
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing layers.yaml: %w", err)
	}
	return &spec, nil
}

// placeExtras inserts each extra into base by repeated topological
// insertion honoring before/after constraints relative to existing ids.
// Extras with unresolvable anchors are appended at the end, after a second
// pass, in declaration order (deterministic, not silently dropped).
func placeExtras(base []string, extras []extraLayerSpec) ([]string, error) {
	order := append([]string(nil), base...)
	pending := append([]extraLayerSpec(nil), extras...)

	for progress := true; len(pending) > 0 && progress; {
		progress = false
		remaining := pending[:0:0]
		for _, e := range pending {
			idx, ok := anchorIndex(order, e)
			if !ok {
				remaining = append(remaining, e)
				continue
			}
			order = insertAt(order, idx, e.ID)
			progress = true
		}
		pending = remaining
	}

	// Anything left has neither a resolvable before nor after target among
	// the ids placed so far (e.g. two extras anchored to each other with a
	// cycle); append deterministically rather than erroring, since the
	// layer stack must always be usable.
	for _, e := range pending {
		order = append(order, e.ID)
	}

	return order, nil
}

func anchorIndex(order []string, e extraLayerSpec) (int, bool) {
	if e.Before != "" {
		for i, id := range order {
			if id == e.Before {
				return i, true
			}
		}
	}
	if e.After != "" {
		for i, id := range order {
			if id == e.After {
				return i + 1, true
			}
		}
	}
	if e.Before == "" && e.After == "" {
		// No anchor: default to just before project overlays.
		for i, id := range order {
			if id == "project" {
				return i, true
			}
		}
		return len(order), true
	}
	return 0, false
}

func insertAt(order []string, idx int, id string) []string {
	out := make([]string, 0, len(order)+1)
	out = append(out, order[:idx]...)
	out = append(out, id)
	out = append(out, order[idx:]...)
	return out
}

// StackFingerprint produces a deterministic cache key component from the
// layer paths and their enabled state, without hashing file contents or
// checking mtimes: an edited file under an unchanged stack leaves the
// fingerprint unchanged.
func StackFingerprint(layers []Layer) string {
	ids := make([]string, 0, len(layers))
	for _, l := range layers {
		if !l.Enabled {
			continue
		}
		ids = append(ids, l.ID+"="+l.Path)
		for _, p := range l.Packs {
			ids = append(ids, l.ID+"/"+p.ID+"="+p.Path)
		}
	}
	sort.Strings(ids)
	h := fmt.Sprintf("%x", ids)
	return h
}
