package compose

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edison-dev/edison/internal/config"
)

func newTestComposer(t *testing.T, root string) *Composer {
	t.Helper()
	projectDir := filepath.Join(root, ".edison", "config")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return NewComposer(root, projectDir, &config.ComposeConfig{MaxIncludeDepth: 3, ShingleK: 4, ShingleMin: 1})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestResolveIncludes_RequiredInclude(t *testing.T) {
	root := t.TempDir()
	c := newTestComposer(t, root)
	writeFile(t, filepath.Join(root, "child.md"), "child body")
	base := filepath.Join(root, "base.md")
	out, deps, err := c.ResolveIncludes("before {{include:child.md}} after", base)
	if err != nil {
		t.Fatalf("ResolveIncludes: %v", err)
	}
	if out != "before child body after" {
		t.Fatalf("unexpected output: %q", out)
	}
	if len(deps) != 1 {
		t.Fatalf("expected one dependency, got %v", deps)
	}
}

func TestResolveIncludes_RequiredMissingErrors(t *testing.T) {
	root := t.TempDir()
	c := newTestComposer(t, root)
	base := filepath.Join(root, "base.md")
	if _, _, err := c.ResolveIncludes("{{include:missing.md}}", base); err == nil {
		t.Fatal("expected missing required include to error")
	}
}

func TestResolveIncludes_OptionalMissingIsSilent(t *testing.T) {
	root := t.TempDir()
	c := newTestComposer(t, root)
	base := filepath.Join(root, "base.md")
	out, _, err := c.ResolveIncludes("before [{{include-optional:missing.md}}] after", base)
	if err != nil {
		t.Fatalf("ResolveIncludes: %v", err)
	}
	if out != "before [] after" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestResolveIncludes_CircularDetected(t *testing.T) {
	root := t.TempDir()
	c := newTestComposer(t, root)
	writeFile(t, filepath.Join(root, "a.md"), "{{include:b.md}}")
	writeFile(t, filepath.Join(root, "b.md"), "{{include:a.md}}")
	if _, _, err := c.ResolveIncludes("{{include:a.md}}", filepath.Join(root, "base.md")); err == nil {
		t.Fatal("expected circular include to error")
	}
}

func TestResolveIncludes_DirectiveInsideFenceIsLiteral(t *testing.T) {
	root := t.TempDir()
	c := newTestComposer(t, root)
	base := filepath.Join(root, "base.md")
	text := "intro\n```\n{{include:child.md}}\n```\noutro"
	out, deps, err := c.ResolveIncludes(text, base)
	if err != nil {
		t.Fatalf("ResolveIncludes: %v", err)
	}
	if out != text {
		t.Fatalf("expected fenced directive preserved literally, got %q", out)
	}
	if len(deps) != 0 {
		t.Fatalf("expected no dependencies resolved from a fenced directive, got %v", deps)
	}
}

func TestResolveIncludes_DepthExceeded(t *testing.T) {
	root := t.TempDir()
	c := newTestComposer(t, root)
	writeFile(t, filepath.Join(root, "l1.md"), "{{include:l2.md}}")
	writeFile(t, filepath.Join(root, "l2.md"), "{{include:l3.md}}")
	writeFile(t, filepath.Join(root, "l3.md"), "{{include:l4.md}}")
	writeFile(t, filepath.Join(root, "l4.md"), "{{include:l5.md}}")
	writeFile(t, filepath.Join(root, "l5.md"), "leaf")
	c.cfg.MaxIncludeDepth = 2
	if _, _, err := c.ResolveIncludes("{{include:l1.md}}", filepath.Join(root, "base.md")); err == nil {
		t.Fatal("expected include depth overflow to error")
	}
}

func TestResolveIncludes_SectionAnchor(t *testing.T) {
	root := t.TempDir()
	c := newTestComposer(t, root)
	writeFile(t, filepath.Join(root, "guide.md"), "intro\n<!-- ANCHOR: first -->\nanchored body\n<!-- END ANCHOR: first -->\ntrailer")
	out, _, err := c.ResolveIncludes("{{include-section:guide.md#first}}", filepath.Join(root, "base.md"))
	if err != nil {
		t.Fatalf("ResolveIncludes: %v", err)
	}
	if out != "anchored body" {
		t.Fatalf("unexpected section output: %q", out)
	}
}

func TestExtractAnchor_MissingEndRunsToEOF(t *testing.T) {
	text := "pre\n<!-- ANCHOR: x -->\nbody line one\nbody line two"
	got, err := ExtractAnchor(text, "x")
	if err != nil {
		t.Fatalf("ExtractAnchor: %v", err)
	}
	if got != "body line one\nbody line two" {
		t.Fatalf("unexpected anchor content: %q", got)
	}
}

func TestParseSections_ReplaceAndExtend(t *testing.T) {
	base := "<!-- SECTION: intro -->\nbase intro\n<!-- /SECTION: intro -->"
	override := "<!-- SECTION: intro -->\nnew intro\n<!-- /SECTION: intro -->"
	extend := "<!-- EXTEND: intro -->\nmore intro\n<!-- /EXTEND: intro -->"

	replaced, err := ComposeSections([][]byte{[]byte(base), []byte(override)})
	if err != nil {
		t.Fatalf("ComposeSections: %v", err)
	}
	if !contains(replaced, "new intro") || contains(replaced, "base intro") {
		t.Fatalf("expected SECTION to replace, got %q", replaced)
	}

	extended, err := ComposeSections([][]byte{[]byte(base), []byte(extend)})
	if err != nil {
		t.Fatalf("ComposeSections: %v", err)
	}
	if !contains(extended, "base intro") || !contains(extended, "more intro") {
		t.Fatalf("expected EXTEND to append, got %q", extended)
	}
}

func TestParseSections_UnbalancedMarkerErrors(t *testing.T) {
	if _, _, err := ParseSections("<!-- SECTION: intro -->\nbody"); err == nil {
		t.Fatal("expected unbalanced SECTION marker to error")
	}
}

func TestParseSections_StrayCloseErrors(t *testing.T) {
	if _, _, err := ParseSections("body\n<!-- /SECTION: intro -->"); err == nil {
		t.Fatal("expected a stray close marker with no matching open to error")
	}
}

func TestConcatenateCompose_DedupKeepsFirstOccurrence(t *testing.T) {
	repeated := "alpha beta gamma delta epsilon zeta eta theta"
	core := "# Core\n\n" + repeated
	packs := []PackLayer{{Name: "react", Text: repeated}}
	project := "Project-specific addition."

	result := ConcatenateCompose(core, packs, project, 4, 1)
	if countOccurrences(result, "alpha beta gamma delta") != 1 {
		t.Fatalf("expected duplicate paragraph removed, got: %q", result)
	}
	if !contains(result, "Project-specific addition") {
		t.Fatalf("expected unique project paragraph retained, got: %q", result)
	}
}

func TestConcatenateCompose_FenceNeverSplit(t *testing.T) {
	core := "intro\n\n```\nfence line one\n\nfence line two\n```\n\noutro"
	result := ConcatenateCompose(core, nil, "", 4, 1)
	if !contains(result, "```\nfence line one\n\nfence line two\n```") {
		t.Fatalf("expected fence kept intact, got: %q", result)
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	deps := map[string][]byte{"a.md": []byte("a"), "b.md": []byte("b")}
	h1 := ComputeHash("v1", "", deps)
	h2 := ComputeHash("v1", "", deps)
	if h1 != h2 {
		t.Fatal("expected deterministic hash")
	}
	h3 := ComputeHash("v2", "", deps)
	if h1 == h3 {
		t.Fatal("expected engine version to affect hash")
	}
}

func TestWriteArtifact_WritesManifestEntry(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteArtifact(dir, "validator-lint", "composed text", []string{"a.md"}, "deadbeef", "v1")
	if err != nil {
		t.Fatalf("WriteArtifact: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if string(data) != "composed text" {
		t.Fatalf("unexpected artifact content: %q", data)
	}
	m, err := ReadManifest(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	entry, ok := m.Entries["validator-lint"]
	if !ok {
		t.Fatal("expected manifest entry for validator-lint")
	}
	if entry.Hash != "deadbeef" {
		t.Fatalf("unexpected hash: %q", entry.Hash)
	}
}

func TestStale_HashMismatchIsAlwaysStale(t *testing.T) {
	entry := ManifestEntry{Hash: "old", EngineVersion: "v1"}
	if !Stale(entry, "new", "v1") {
		t.Fatal("expected a changed hash to be stale regardless of engine version")
	}
}

func TestStale_SameHashAndEngineVersionIsFresh(t *testing.T) {
	entry := ManifestEntry{Hash: "abc", EngineVersion: "v1"}
	if Stale(entry, "abc", "v1") {
		t.Fatal("expected identical hash and engine version to be fresh")
	}
}

func TestStale_BareDigitEngineVersionsCompareBySemver(t *testing.T) {
	entry := ManifestEntry{Hash: "abc", EngineVersion: "1"}
	if Stale(entry, "abc", "1") {
		t.Fatal("expected equal bare-digit engine versions to compare equal via semver normalization")
	}
	if !Stale(entry, "abc", "2") {
		t.Fatal("expected a newer engine version to invalidate a cache entry even with an unchanged hash")
	}
}

func TestMergeRules_BlockingIsStickyAcrossLayers(t *testing.T) {
	base := []Rule{{ID: "r1", Title: "Base", Blocking: true}}
	override := []Rule{{ID: "r1", Title: "Override", Blocking: false}}
	merged := MergeRules([][]Rule{base, override})
	r, ok := merged["r1"]
	if !ok {
		t.Fatal("expected rule r1 present")
	}
	if !r.Blocking {
		t.Fatal("expected blocking to remain true once any layer sets it")
	}
	if r.Title != "Override" {
		t.Fatalf("expected higher layer's scalar title to win, got %q", r.Title)
	}
}

func TestRenderInjection_TruncatesLongBody(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	r := Rule{ID: "r1", Title: "T", Guidance: string(long)}
	out := RenderInjection(r)
	if len(out) > 2100 {
		t.Fatalf("expected body to be truncated, got length %d", len(out))
	}
	if !contains(out, "…") {
		t.Fatal("expected ellipsis marker on truncated body")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && (func() bool {
		for i := 0; i+len(substr) <= len(s); i++ {
			if s[i:i+len(substr)] == substr {
				return true
			}
		}
		return false
	})()
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}
