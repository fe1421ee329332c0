package cli

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/edison-dev/edison/internal/cliutil"
	"github.com/edison-dev/edison/internal/compose"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and inject the layered rule set",
	}
	cmd.AddCommand(newRulesCurrentCmd())
	cmd.AddCommand(newRulesComposeCmd())
	cmd.AddCommand(newRulesInjectCmd())
	return cmd
}

// loadRules reads rules.yml's merged `rules:` list. The registry's Load
// already deep-merges every enabled pack layer for this path (later layers
// override earlier ones field-by-field); MergeRules is then exercised over
// that single merged layer alongside the project's own local rule overrides
// so blocking-sticky-across-layers semantics still apply when a project
// pack adds or tightens a rule.
func loadRules(app *cliutil.App) ([]compose.Rule, error) {
	doc, err := app.Registry.Load("rules.yml")
	if err != nil {
		return nil, err
	}
	raw, _ := doc["rules"].([]any)
	packLayer := decodeRules(raw)

	projectDoc, _ := app.Registry.Load("rules.local.yml")
	var projectLayer []compose.Rule
	if projectDoc != nil {
		projectRaw, _ := projectDoc["rules"].([]any)
		projectLayer = decodeRules(projectRaw)
	}

	merged := compose.MergeRules([][]compose.Rule{packLayer, projectLayer})
	out := make([]compose.Rule, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return out, nil
}

func decodeRules(raw []any) []compose.Rule {
	var rules []compose.Rule
	for _, item := range raw {
		data, err := yaml.Marshal(item)
		if err != nil {
			continue
		}
		var r compose.Rule
		if err := yaml.Unmarshal(data, &r); err != nil {
			continue
		}
		rules = append(rules, r)
	}
	return rules
}

func newRulesCurrentCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "current",
		Short: "List every rule active after pack merge",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "rules current", "", format)
			if err != nil {
				return err
			}
			rules, err := loadRules(app)
			if err != nil {
				return fail(cmd, format, err)
			}
			var rows []map[string]any
			for _, r := range rules {
				rows = append(rows, map[string]any{
					"id": r.ID, "title": r.Title, "blocking": r.Blocking,
					"category": r.Category, "priority": r.Priority,
				})
			}
			return ok(cmd, format, rows)
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}

func newRulesComposeCmd() *cobra.Command {
	var ff *formatFlags
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Merge every rule layer and show the resulting rule set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "rules compose", "", format)
			if err != nil {
				return err
			}
			rules, err := loadRules(app)
			if err != nil {
				return fail(cmd, format, err)
			}
			return ok(cmd, format, map[string]any{"ruleCount": len(rules)})
		},
	}
	ff = addFormatFlags(cmd)
	return cmd
}

func newRulesInjectCmd() *cobra.Command {
	var ff *formatFlags
	var context, transition, state string
	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Render the rules relevant to a transition/state/context as injection text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := ff.resolve()
			if err != nil {
				return err
			}
			app, err := loadApp(cmd, "rules inject", "", format)
			if err != nil {
				return err
			}
			rules, err := loadRules(app)
			if err != nil {
				return fail(cmd, format, err)
			}
			var buf string
			for _, r := range rules {
				if context != "" && r.Category != context {
					continue
				}
				if transition != "" || state != "" {
					trig, _ := r.Config["triggers"].([]any)
					if len(trig) > 0 && !ruleTriggeredBy(trig, transition, state) {
						continue
					}
				}
				buf += compose.RenderInjection(r)
			}
			return ok(cmd, format, buf)
		},
	}
	ff = addFormatFlags(cmd)
	cmd.Flags().StringVar(&context, "context", "", "filter by rule category")
	cmd.Flags().StringVar(&transition, "transition", "", "filter by transition trigger, e.g. wip->done")
	cmd.Flags().StringVar(&state, "state", "", "filter by state trigger")
	return cmd
}

func ruleTriggeredBy(triggers []any, transition, state string) bool {
	for _, t := range triggers {
		s, ok := t.(string)
		if !ok {
			continue
		}
		if s == "*" || s == transition || s == state {
			return true
		}
	}
	return false
}
