package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/edison-dev/edison/internal/adapter"
	"github.com/edison-dev/edison/internal/cliutil"
	"github.com/edison-dev/edison/internal/compose"
	"github.com/edison-dev/edison/internal/paths"
)

// composeEngineVersion is bumped whenever the composition algorithm
// (fence-aware dedup, include resolution) changes shape, invalidating any
// cached artifact keyed by it.
const composeEngineVersion = "1"

var composeKinds = map[string]string{
	"guidelines":    "guidelines.md",
	"validators":    "validators.md",
	"constitutions": "constitutions.md",
	"hooks":         "hooks.md",
}

func newComposeCmd() *cobra.Command {
	var ff *formatFlags
	var guidelines, validators, constitutions, hooks, apply bool
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Compose layered guidance documents",
	}
	all := &cobra.Command{
		Use:   "all",
		Short: "Compose every requested document kind (default: all kinds)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "compose all", "", format)
			if err != nil {
				return err
			}

			kinds := selectedKinds(guidelines, validators, constitutions, hooks)
			composer := compose.NewComposer(app.Root, filepath.Join(app.Root, paths.EdisonConfigDir), app.ComposeCfg)

			results := map[string]any{}
			artifacts := make([]adapter.Artifact, 0, len(kinds))
			for _, kind := range kinds {
				text, artifactPath, err := composeKind(composer, app, kind)
				if err != nil {
					return fail(cmd, format, err)
				}
				results[kind] = map[string]any{"artifactPath": artifactPath, "text": text}
				artifacts = append(artifacts, adapter.Artifact{RelPath: composeKinds[kind], Content: text})
			}

			if apply {
				facade := adapter.NewFacade(app.Root, app.Adapters)
				applied := map[string]any{}
				for _, target := range facade.Targets() {
					written, removed, err := facade.Sync(target, artifacts)
					if err != nil {
						return fail(cmd, format, err)
					}
					applied[target] = map[string]any{"written": written, "removed": removed}
				}
				results["applied"] = applied
			}
			return ok(cmd, format, results)
		},
	}
	all.Flags().BoolVar(&guidelines, "guidelines", false, "compose guidelines.md")
	all.Flags().BoolVar(&validators, "validators", false, "compose validators.md")
	all.Flags().BoolVar(&constitutions, "constitutions", false, "compose constitutions.md")
	all.Flags().BoolVar(&hooks, "hooks", false, "compose hooks.md")
	all.Flags().BoolVar(&apply, "apply", false, "publish composed artifacts to configured adapter targets (.claude/, .codex/, .opencode/, ...)")
	ff = addFormatFlags(all)
	cmd.AddCommand(all)
	return cmd
}

func selectedKinds(guidelines, validators, constitutions, hooks bool) []string {
	if !guidelines && !validators && !constitutions && !hooks {
		return []string{"guidelines", "validators", "constitutions", "hooks"}
	}
	var out []string
	if guidelines {
		out = append(out, "guidelines")
	}
	if validators {
		out = append(out, "validators")
	}
	if constitutions {
		out = append(out, "constitutions")
	}
	if hooks {
		out = append(out, "hooks")
	}
	return out
}

// composeKind assembles one document kind: the bundled core, any active
// pack overlays, and a project-local overlay under .edison/config, with
// {{include:...}} directives resolved within each layer before concatenation.
func composeKind(composer *compose.Composer, app *cliutil.App, kind string) (string, string, error) {
	filename, ok := composeKinds[kind]
	if !ok {
		return "", "", cliutil.NewCommandError(cliutil.CodeConfigInvalid, "unknown compose kind "+kind)
	}

	corePath := filepath.Join(app.Root, cliutil.BundledConfigDir, filename)
	coreText, deps, err := resolveLayer(composer, corePath)
	if err != nil {
		return "", "", err
	}

	var packs []compose.PackLayer
	for _, packID := range app.ComposeCfg.ActivePacks {
		packPath := filepath.Join(app.Root, paths.EdisonConfigDir, "packs", packID, filename)
		text, packDeps, err := resolveLayer(composer, packPath)
		if err != nil {
			continue
		}
		deps = append(deps, packDeps...)
		if text != "" {
			packs = append(packs, compose.PackLayer{Name: packID, Text: text})
		}
	}

	projectPath := filepath.Join(app.Root, paths.EdisonConfigDir, filename)
	projectText, projectDeps, err := resolveLayer(composer, projectPath)
	if err != nil {
		return "", "", err
	}
	deps = append(deps, projectDeps...)

	composed := compose.ConcatenateCompose(coreText, packs, projectText, app.ComposeCfg.ShingleK, app.ComposeCfg.ShingleMin)

	depHashes := map[string][]byte{}
	for _, d := range deps {
		if data, err := os.ReadFile(d); err == nil { //nolint:gosec // dep paths come from resolved config layers
			depHashes[d] = data
		}
	}
	hash := compose.ComputeHash(composeEngineVersion, kind, depHashes)

	cacheDir := filepath.Join(app.Root, paths.EdisonCacheDir)
	manifest, err := compose.ReadManifest(filepath.Join(cacheDir, "manifest.json"))
	if err != nil {
		return "", "", err
	}
	if entry, ok := manifest.Entries[kind]; ok && !compose.Stale(entry, hash, composeEngineVersion) {
		return composed, entry.Path, nil
	}

	artifactPath, err := compose.WriteArtifact(cacheDir, kind, composed, deps, hash, composeEngineVersion)
	if err != nil {
		return "", "", err
	}
	return composed, artifactPath, nil
}

func resolveLayer(composer *compose.Composer, path string) (string, []string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path built from configured compose layer directories
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, nil
		}
		return "", nil, err
	}
	resolved, deps, err := composer.ResolveIncludes(string(data), path)
	if err != nil {
		return "", nil, err
	}
	return resolved, append(deps, path), nil
}
