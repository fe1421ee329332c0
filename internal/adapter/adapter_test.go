package adapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edison-dev/edison/internal/config"
)

func TestFacade_WriteIsIdempotent(t *testing.T) {
	root := t.TempDir()
	f := NewFacade(root, &config.AdaptersConfig{Targets: []string{"claude"}})

	artifacts := []Artifact{{RelPath: "guidelines.md", Content: "be helpful\n"}}

	written, err := f.Write("claude", artifacts)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("expected one file written, got %v", written)
	}

	outPath := filepath.Join(root, ".claude", "guidelines.md")
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !isGenerated(data) {
		t.Fatalf("expected output to carry the generated marker, got %q", data)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	mtime := info.ModTime()

	written, err = f.Write("claude", artifacts)
	if err != nil {
		t.Fatalf("second Write: %v", err)
	}
	if len(written) != 0 {
		t.Fatalf("expected no files rewritten on an unchanged second write, got %v", written)
	}
	info2, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("Stat after second write: %v", err)
	}
	if !info2.ModTime().Equal(mtime) {
		t.Fatalf("expected mtime unchanged by an idempotent rewrite")
	}
}

func TestFacade_PrunePreservesUserAuthoredFiles(t *testing.T) {
	root := t.TempDir()
	f := NewFacade(root, &config.AdaptersConfig{Targets: []string{"codex"}})

	if _, err := f.Write("codex", []Artifact{
		{RelPath: "old.md", Content: "stale"},
	}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	userPath := filepath.Join(root, ".codex", "notes.md")
	if err := os.MkdirAll(filepath.Dir(userPath), 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(userPath, []byte("hand-written notes, not generated"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	removed, err := f.Prune("codex", nil)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("expected exactly one stale generated file removed, got %v", removed)
	}

	if _, err := os.Stat(filepath.Join(root, ".codex", "old.md")); !os.IsNotExist(err) {
		t.Fatalf("expected stale generated file to be removed")
	}
	if _, err := os.Stat(userPath); err != nil {
		t.Fatalf("expected user-authored file to survive pruning: %v", err)
	}
}

func TestFacade_SyncKeepsOnlyCurrentArtifacts(t *testing.T) {
	root := t.TempDir()
	f := NewFacade(root, &config.AdaptersConfig{Targets: []string{"opencode"}})

	if _, _, err := f.Sync("opencode", []Artifact{
		{RelPath: "a.md", Content: "a"},
		{RelPath: "b.md", Content: "b"},
	}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	written, removed, err := f.Sync("opencode", []Artifact{
		{RelPath: "a.md", Content: "a"},
	})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if len(written) != 0 {
		t.Fatalf("expected a.md's unchanged content to skip rewrite, got %v", written)
	}
	if len(removed) != 1 {
		t.Fatalf("expected b.md to be pruned, got %v", removed)
	}
	if _, err := os.Stat(filepath.Join(root, ".opencode", "b.md")); !os.IsNotExist(err) {
		t.Fatalf("expected b.md removed after it dropped out of the artifact set")
	}
	if _, err := os.Stat(filepath.Join(root, ".opencode", "a.md")); err != nil {
		t.Fatalf("expected a.md to remain: %v", err)
	}
}

func TestFacade_PrefixOverride(t *testing.T) {
	root := t.TempDir()
	f := NewFacade(root, &config.AdaptersConfig{
		Targets:         []string{"claude"},
		PrefixOverrides: map[string]string{"claude": ".claude-custom"},
	})
	if got, want := f.Prefix("claude"), filepath.Join(root, ".claude-custom"); got != want {
		t.Fatalf("Prefix = %q, want %q", got, want)
	}
}
