package validation

import "github.com/bmatcuk/doublestar/v4"

// matchesAnyTrigger reports whether any file matches any of the glob
// patterns in triggers, using doublestar's `**` semantics (spec §4.7:
// "validators whose triggers[] match any changed/primary file glob").
// A malformed pattern is skipped rather than erroring — config.Lint is
// where pattern authoring mistakes are meant to surface, not dispatch.
func matchesAnyTrigger(triggers, files []string) bool {
	for _, pattern := range triggers {
		for _, f := range files {
			ok, err := doublestar.Match(pattern, f)
			if err == nil && ok {
				return true
			}
		}
	}
	return false
}
