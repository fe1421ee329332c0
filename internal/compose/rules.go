package compose

import (
	"fmt"
	"strings"
)

// RuleSource points at an anchored guideline excerpt backing a rule.
type RuleSource struct {
	File   string `yaml:"file" json:"file"`
	Anchor string `yaml:"anchor" json:"anchor"`
}

// Rule is one entry of the composed rules registry (spec §4.9: "Rules
// composition").
type Rule struct {
	ID       string         `yaml:"id" json:"id"`
	Title    string         `yaml:"title" json:"title"`
	Blocking bool           `yaml:"blocking" json:"blocking"`
	Source   *RuleSource    `yaml:"source,omitempty" json:"source,omitempty"`
	Guidance string         `yaml:"guidance,omitempty" json:"guidance,omitempty"`
	Category string         `yaml:"category,omitempty" json:"category,omitempty"`
	Priority int            `yaml:"priority,omitempty" json:"priority,omitempty"`
	Config   map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// MergeRules merges rule layers (low to high precedence) ID-keyed:
// a higher layer overrides a lower layer's scalar fields outright, deep-merges
// nested `config` maps, and a rule counts as blocking if ANY layer marks it
// so (an override can never silently un-block a rule another layer requires).
func MergeRules(layers [][]Rule) map[string]Rule {
	merged := map[string]Rule{}
	for _, layer := range layers {
		for _, r := range layer {
			existing, ok := merged[r.ID]
			if !ok {
				merged[r.ID] = r
				continue
			}
			next := r
			next.Blocking = existing.Blocking || r.Blocking
			if next.Config != nil || existing.Config != nil {
				next.Config = deepMergeMap(existing.Config, r.Config)
			}
			merged[r.ID] = next
		}
	}
	return merged
}

func deepMergeMap(base, override map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		if bv, ok := out[k]; ok {
			if bm, ok1 := bv.(map[string]any); ok1 {
				if ov, ok2 := v.(map[string]any); ok2 {
					out[k] = deepMergeMap(bm, ov)
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}

const ruleBodyTruncateLen = 1000

// RenderInjection renders a rule's injection text: a header, a title/priority
// line, and a body truncated to 1,000 chars with an ellipsis.
func RenderInjection(r Rule) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Rule: %s\n", r.ID)
	if r.Priority != 0 {
		fmt.Fprintf(&b, "%s (priority %d)\n", r.Title, r.Priority)
	} else {
		fmt.Fprintf(&b, "%s\n", r.Title)
	}
	body := r.Guidance
	if len(body) > ruleBodyTruncateLen {
		body = body[:ruleBodyTruncateLen] + "…"
	}
	b.WriteString(body)
	return b.String()
}
