package compose

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	includeRequiredRe = regexp.MustCompile(`\{\{\s*include:([^}]+)\}\}`)
	includeOptionalRe = regexp.MustCompile(`\{\{\s*include-optional:([^}]+)\}\}`)
	includeSectionRe  = regexp.MustCompile(`\{\{\s*include-section:([^}#]+)#([^}]+)\}\}`)
	anchorEndFmt      = `<!--\s*END ANCHOR:\s*%s\s*-->`
)

// ResolveIncludes expands every include directive in content, recursively,
// relative to baseFile. Directives inside fenced code blocks or inline code
// spans are left untouched so documentation examples that mention the
// syntax aren't themselves rewritten. Returns the expanded text and the
// absolute paths of every file pulled in, in resolution order.
func (c *Composer) ResolveIncludes(content, baseFile string) (string, []string, error) {
	deps := map[string]bool{}
	var order []string
	expanded, err := c.resolveIncludes(content, baseFile, 0, nil, deps, &order)
	if err != nil {
		return "", nil, err
	}
	return expanded, order, nil
}

func (c *Composer) resolveIncludes(content, baseFile string, depth int, stack []string, deps map[string]bool, order *[]string) (string, error) {
	if depth > c.cfg.MaxIncludeDepth {
		return "", &Error{Reason: fmt.Sprintf("include depth exceeded (>%d) while processing %s: %s",
			c.cfg.MaxIncludeDepth, baseFile, strings.Join(stack, " -> "))}
	}

	segments := splitPreservingFences(content)
	var out strings.Builder
	for _, seg := range segments {
		if seg.literal {
			out.WriteString(seg.text)
			continue
		}
		expanded, err := c.expandDirectives(seg.text, baseFile, depth, stack, deps, order)
		if err != nil {
			return "", err
		}
		out.WriteString(expanded)
	}
	return out.String(), nil
}

// expandDirectives processes one fence-free/code-span-free segment of text,
// resolving include/include-optional/include-section directives in source
// order (each directive type must be fully resolved before the text is
// considered literal, since resolved content can itself contain further
// directives resolved by the recursive call).
func (c *Composer) expandDirectives(text, baseFile string, depth int, stack []string, deps map[string]bool, order *[]string) (string, error) {
	var outerErr error

	replace := func(re *regexp.Regexp, fn func(raw string) (string, error)) {
		if outerErr != nil {
			return
		}
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			if outerErr != nil {
				return m
			}
			groups := re.FindStringSubmatch(m)
			replacement, err := fn(groups[1])
			if err != nil {
				outerErr = err
				return m
			}
			return replacement
		})
	}

	replace(includeRequiredRe, func(raw string) (string, error) {
		return c.expandOne(raw, baseFile, depth, stack, deps, order, false)
	})
	if outerErr != nil {
		return "", outerErr
	}
	replace(includeOptionalRe, func(raw string) (string, error) {
		return c.expandOne(raw, baseFile, depth, stack, deps, order, true)
	})
	if outerErr != nil {
		return "", outerErr
	}
	// include-section needs both path and anchor capture groups, so it gets
	// its own matcher rather than the single-capture replace() helper above.
	text, outerErr = c.expandSectionIncludes(text, baseFile, depth, stack, deps, order)
	return text, outerErr
}

func (c *Composer) expandSectionIncludes(text, baseFile string, depth int, stack []string, deps map[string]bool, order *[]string) (string, error) {
	var err error
	out := includeSectionRe.ReplaceAllStringFunc(text, func(m string) string {
		if err != nil {
			return m
		}
		groups := includeSectionRe.FindStringSubmatch(m)
		rawPath, anchor := groups[1], groups[2]
		target := c.normalizeIncludeTarget(rawPath, baseFile)
		if containsPath(stack, target) {
			err = &Error{Reason: fmt.Sprintf("circular include detected: %s", strings.Join(append(stack, target), " -> "))}
			return m
		}
		if !fileExists(target) {
			err = &Error{Reason: fmt.Sprintf("include-section target not found: %s (from %s)", target, baseFile)}
			return m
		}
		full, readErr := readTextFile(target)
		if readErr != nil {
			err = &Error{Reason: readErr.Error()}
			return m
		}
		section, extractErr := ExtractAnchor(full, anchor)
		if extractErr != nil {
			err = extractErr
			return m
		}
		if !deps[target] {
			deps[target] = true
			*order = append(*order, target)
		}
		expanded, subErr := c.resolveIncludes(section, target, depth+1, append(stack, target), deps, order)
		if subErr != nil {
			err = subErr
			return m
		}
		return expanded
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *Composer) expandOne(rawPath, baseFile string, depth int, stack []string, deps map[string]bool, order *[]string, optional bool) (string, error) {
	target := c.normalizeIncludeTarget(rawPath, baseFile)
	if containsPath(stack, target) {
		return "", &Error{Reason: fmt.Sprintf("circular include detected: %s", strings.Join(append(stack, target), " -> "))}
	}
	if !fileExists(target) {
		if optional {
			return "", nil
		}
		return "", &Error{Reason: fmt.Sprintf("include not found: %s (from %s): chain %s", target, baseFile, strings.Join(stack, " -> "))}
	}
	full, err := readTextFile(target)
	if err != nil {
		return "", &Error{Reason: err.Error()}
	}
	if !deps[target] {
		deps[target] = true
		*order = append(*order, target)
	}
	return c.resolveIncludes(full, target, depth+1, append(stack, target), deps, order)
}

func containsPath(stack []string, p string) bool {
	for _, s := range stack {
		if s == p {
			return true
		}
	}
	return false
}

// ExtractAnchor returns the text between `<!-- ANCHOR: name -->` and
// `<!-- END ANCHOR: name -->`. A missing end marker runs to EOF, matching
// the original implementation's "implicit termination" behavior.
func ExtractAnchor(text, name string) (string, error) {
	startRe := regexp.MustCompile(`<!--\s*ANCHOR:\s*` + regexp.QuoteMeta(name) + `\s*-->`)
	loc := startRe.FindStringIndex(text)
	if loc == nil {
		return "", &Error{Reason: fmt.Sprintf("anchor %q not found", name)}
	}
	rest := text[loc[1]:]
	endRe := regexp.MustCompile(fmt.Sprintf(anchorEndFmt, regexp.QuoteMeta(name)))
	endLoc := endRe.FindStringIndex(rest)
	if endLoc == nil {
		return strings.TrimSpace(rest), nil
	}
	return strings.TrimSpace(rest[:endLoc[0]]), nil
}
