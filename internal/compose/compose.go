// Package compose implements the Composer: anchored include resolution,
// layered SECTION/CONCATENATE merge of rules, guidelines, and agent specs,
// paragraph-level dedup, and content-hash caching of composed artifacts.
// Grounded on original_source's edison/core/composition/includes.py for
// include semantics and on spec §4.9 for layering and dedup rules.
package compose

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/edison-dev/edison/internal/config"
)

// Error marks a composition failure: a missing required include, a
// circular reference, a depth overflow, or unbalanced SECTION markers.
// Fail-closed, same spirit as evidence.ParseError — a caller never gets a
// half-composed artifact silently.
type Error struct {
	Reason string
}

func (e *Error) Error() string { return "compose: " + e.Reason }

// Composer resolves includes and composes layered markdown sources into
// artifacts, rooted at a project and bound to its ComposeConfig.
type Composer struct {
	root       string
	projectDir string // .edison/config under root, or active layer's project config dir
	cfg        *config.ComposeConfig
}

// NewComposer builds a Composer rooted at root, using projectConfigDir for
// `project/...` and project-config-dir-name (e.g. `config/...`)
// path-normalization shorthand.
func NewComposer(root, projectConfigDir string, cfg *config.ComposeConfig) *Composer {
	if cfg == nil {
		cfg = &config.ComposeConfig{MaxIncludeDepth: 3, ShingleK: 12, ShingleMin: 3}
	}
	return &Composer{root: root, projectDir: projectConfigDir, cfg: cfg}
}

// normalizeIncludeTarget applies spec §4.9's path-normalization rules:
// leading '/' is project-root-absolute; a leading "project/" or the
// project config dir's own name routes into the project config dir;
// "packs/..." routes to the active project config dir; otherwise the path
// is relative to the including file.
func (c *Composer) normalizeIncludeTarget(raw, baseFile string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 && (raw[0] == '\'' || raw[0] == '"') && raw[len(raw)-1] == raw[0] {
		raw = raw[1 : len(raw)-1]
	}

	if strings.HasPrefix(raw, "/") {
		return filepath.Join(c.root, strings.TrimPrefix(raw, "/"))
	}

	projectPrefix := filepath.Base(c.projectDir) + "/"
	if strings.HasPrefix(raw, projectPrefix) {
		return filepath.Join(c.projectDir, strings.TrimPrefix(raw, projectPrefix))
	}
	if strings.HasPrefix(raw, "project/") {
		return filepath.Join(c.projectDir, strings.TrimPrefix(raw, "project/"))
	}
	if strings.HasPrefix(raw, "packs/") {
		return filepath.Join(c.projectDir, raw)
	}
	return filepath.Join(filepath.Dir(baseFile), raw)
}

func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is normalized against a resolved project/config root
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
