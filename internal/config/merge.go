package config

import (
	"strings"

	"dario.cat/mergo"
)

// arrayMarker classifies the leading-character convention used by sparse
// array config: "+" append, "=" replace (default, same as omitting a
// marker), "-" remove matching elements.
type arrayMarker int

const (
	markerReplace arrayMarker = iota
	markerAppend
	markerRemove
)

func classifyMarker(s string) (arrayMarker, string) {
	if s == "" {
		return markerReplace, s
	}
	switch s[0] {
	case '+':
		return markerAppend, s[1:]
	case '-':
		return markerRemove, s[1:]
	case '=':
		return markerReplace, s[1:]
	default:
		return markerReplace, s
	}
}

// MergeLayer deep-merges `upper` (a higher-precedence layer's decoded YAML
// document) onto `base`, applying array marker semantics at every array
// found directly under a map key. Both must be generic `map[string]any`
// trees, which is what yaml.v3 produces for `map[string]interface{}`.
func MergeLayer(base, upper map[string]any) (map[string]any, error) {
	result := deepCopyMap(base)
	mergeArraysInPlace(result, upper)
	if err := mergo.Merge(&result, upper, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return nil, err
	}
	// mergo's WithAppendSlice always appends; re-apply our own array
	// semantics afterward since "replace" and "remove" need to win over it.
	applyArraySemantics(result, base, upper)
	return result, nil
}

// mergeArraysInPlace is a no-op placeholder kept for readability of the
// merge pipeline: array handling happens in applyArraySemantics after mergo
// runs, since mergo itself only knows how to append or overwrite wholesale.
func mergeArraysInPlace(map[string]any, map[string]any) {}

// applyArraySemantics walks upper's tree and, for every array value,
// recomputes the merged array directly from base+upper using the marker
// convention, overwriting whatever mergo produced for that key.
func applyArraySemantics(result, base, upper map[string]any) {
	for k, uv := range upper {
		switch uvt := uv.(type) {
		case []any:
			bv, _ := base[k].([]any)
			result[k] = mergeArray(bv, uvt)
		case map[string]any:
			bvm, _ := base[k].(map[string]any)
			if bvm == nil {
				bvm = map[string]any{}
			}
			rvm, ok := result[k].(map[string]any)
			if !ok {
				rvm = map[string]any{}
				result[k] = rvm
			}
			applyArraySemantics(rvm, bvm, uvt)
		}
	}
}

// mergeArray applies the append/replace/remove marker convention. Marker
// strings are filtered out of the final array; a bare (unmarked) array
// replaces the base array wholesale, matching the "replace by default" rule.
func mergeArray(base, upper []any) []any {
	var appends, removes, replaces []any
	replace := upper // default semantics: replace
	hasMarkers := false

	for _, item := range upper {
		s, ok := item.(string)
		if !ok {
			continue
		}
		marker, rest := classifyMarker(s)
		if marker == markerReplace && rest == s {
			continue // no marker prefix present
		}
		hasMarkers = true
		switch marker {
		case markerAppend:
			appends = append(appends, rest)
		case markerRemove:
			removes = append(removes, rest)
		case markerReplace:
			replaces = append(replaces, rest)
		}
	}

	if !hasMarkers {
		return cloneSlice(replace)
	}

	start := base
	if len(replaces) > 0 {
		start = replaces // "=" items replace the base array
	}
	out := make([]any, 0, len(start)+len(appends))
	out = append(out, start...)
	out = append(out, appends...)
	if len(removes) > 0 {
		out = filterOut(out, removes)
	}
	return out
}

func filterOut(items, removes []any) []any {
	removeSet := make(map[string]bool, len(removes))
	for _, r := range removes {
		if s, ok := r.(string); ok {
			removeSet[s] = true
		}
	}
	out := make([]any, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok && removeSet[s] {
			continue
		}
		out = append(out, it)
	}
	return out
}

func cloneSlice(in []any) []any {
	out := make([]any, len(in))
	copy(out, in)
	return out
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch vt := v.(type) {
		case map[string]any:
			out[k] = deepCopyMap(vt)
		case []any:
			out[k] = cloneSlice(vt)
		default:
			out[k] = v
		}
	}
	return out
}

// isMarkerString reports whether s looks like an array marker token, used
// by callers that need to filter markers out of already-merged arrays
// before handing them to strongly typed decoders.
func isMarkerString(s string) bool {
	return strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") || strings.HasPrefix(s, "=")
}
