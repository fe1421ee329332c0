package compose

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/mod/semver"

	"github.com/edison-dev/edison/internal/jsonutil"
)

// ManifestEntry records one composed artifact's provenance, per spec §4.9's
// caching contract.
type ManifestEntry struct {
	Path          string   `json:"path"`
	Hash          string   `json:"hash"`
	EngineVersion string   `json:"engineVersion"`
	Dependencies  []string `json:"dependencies"`
}

// Manifest is {project_config}/_generated/.../manifest.json: one entry per
// composed artifact, keyed by artifact id.
type Manifest struct {
	Entries map[string]ManifestEntry `json:"entries"`
}

// ComputeHash hashes (engineVersion, optional extraKey, then every
// dependency path sorted together with its file bytes) into a single
// SHA-256 digest, matching the reference implementation's _hash_files.
func ComputeHash(engineVersion, extraKey string, deps map[string][]byte) string {
	h := sha256.New()
	h.Write([]byte(engineVersion))
	if extraKey != "" {
		h.Write([]byte(extraKey))
	}
	paths := make([]string, 0, len(deps))
	for p := range deps {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write(deps[p])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ReadManifest loads a manifest.json, returning an empty Manifest if absent
// — readers must tolerate a missing/stale manifest and always re-verify via
// hash rather than trust it blindly.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path built from resolved cache directory
	if err != nil {
		if os.IsNotExist(err) {
			return &Manifest{Entries: map[string]ManifestEntry{}}, nil
		}
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		// a corrupt manifest is treated as absent: the caller recomputes
		// and rewrites it rather than failing the whole composition.
		return &Manifest{Entries: map[string]ManifestEntry{}}, nil
	}
	if m.Entries == nil {
		m.Entries = map[string]ManifestEntry{}
	}
	return &m, nil
}

// WriteManifestEntry upserts one entry into manifest.json at path,
// read-modify-write, and persists atomically (temp file + rename).
func WriteManifestEntry(path, artifactID string, entry ManifestEntry) error {
	m, err := ReadManifest(path)
	if err != nil {
		return err
	}
	m.Entries[artifactID] = entry
	data, err := jsonutil.MarshalIndentWithNewline(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil { //nolint:gosec // manifest is not a secret
		return fmt.Errorf("writing temp manifest %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// WriteArtifact writes a composed artifact's text atomically and updates
// its manifest entry in one call — mirroring the reference implementation's
// _write_cache, which treats the artifact write and the manifest update as
// one logical unit even though they're two separate files on disk.
func WriteArtifact(dir, artifactID, text string, deps []string, hash, engineVersion string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating artifact directory %s: %w", dir, err)
	}
	outPath := filepath.Join(dir, artifactID+".md")
	tmp := outPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o644); err != nil { //nolint:gosec // composed artifact is not a secret
		return "", fmt.Errorf("writing temp artifact %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, outPath); err != nil {
		return "", fmt.Errorf("renaming %s to %s: %w", tmp, outPath, err)
	}
	entry := ManifestEntry{Path: outPath, Hash: hash, EngineVersion: engineVersion, Dependencies: deps}
	if err := WriteManifestEntry(filepath.Join(dir, "manifest.json"), artifactID, entry); err != nil {
		return "", err
	}
	return outPath, nil
}

// normalizeSemver prefixes a bare engine version like "1" or "2" with "v",
// the form golang.org/x/mod/semver requires, without disturbing a version
// already written that way.
func normalizeSemver(v string) string {
	if v == "" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// Stale reports whether a cached manifest entry should be rebuilt: either
// its content hash no longer matches the freshly computed one, or it was
// produced by a strictly older compose-engine version than the one now
// running. Engine versions are ordered with semantic-version comparison
// (golang.org/x/mod/semver) rather than plain string equality, so a cache
// entry is never treated as current just because someone strung together
// the same literal digits — and a version regression (entry newer than the
// running engine) is treated the same as a hash mismatch: rebuild rather
// than trust stale provenance forward across an engine downgrade.
func Stale(entry ManifestEntry, hash, engineVersion string) bool {
	if entry.Hash != hash {
		return true
	}
	cached, current := normalizeSemver(entry.EngineVersion), normalizeSemver(engineVersion)
	if !semver.IsValid(cached) || !semver.IsValid(current) {
		return entry.EngineVersion != engineVersion
	}
	return semver.Compare(cached, current) != 0
}
