package compose

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	sectionOpenRe  = regexp.MustCompile(`<!--\s*SECTION:\s*([^\s]+?)\s*-->`)
	sectionCloseRe = regexp.MustCompile(`<!--\s*/SECTION:\s*([^\s]+?)\s*-->`)
	extendOpenRe   = regexp.MustCompile(`<!--\s*EXTEND:\s*([^\s]+?)\s*-->`)
	extendCloseRe  = regexp.MustCompile(`<!--\s*/EXTEND:\s*([^\s]+?)\s*-->`)
)

// NamedSection is one anchored slot extracted from a layer's source text.
type NamedSection struct {
	Name   string
	Body   string
	Extend bool // true for EXTEND (append), false for SECTION (replace)
}

// ParseSections extracts every SECTION/EXTEND-delimited slot from text,
// plus the text outside any slot (preamble/epilogue kept verbatim in
// output order). Unbalanced markers are fatal per spec §4.9.
func ParseSections(text string) (outside string, sections []NamedSection, err error) {
	type openMarker struct {
		name    string
		extend  bool
		start   int
		bodyPos int
	}
	var stack []openMarker
	var out strings.Builder
	pos := 0

	for pos < len(text) {
		rest := text[pos:]
		oLoc := firstMatch(rest, sectionOpenRe, extendOpenRe)
		cLoc := firstMatch(rest, sectionCloseRe, extendCloseRe)

		switch {
		case oLoc == nil && cLoc == nil:
			if len(stack) == 0 {
				out.WriteString(rest)
			}
			pos = len(text)
		case oLoc != nil && (cLoc == nil || oLoc.start <= cLoc.start):
			if len(stack) == 0 {
				out.WriteString(rest[:oLoc.start])
			}
			stack = append(stack, openMarker{name: oLoc.name, extend: oLoc.extend, start: pos + oLoc.start, bodyPos: pos + oLoc.end})
			pos += oLoc.end
		default:
			if len(stack) == 0 {
				return "", nil, &Error{Reason: fmt.Sprintf("unbalanced section marker: close found for %q with no matching open", cLoc.name)}
			}
			if cLoc.name != stack[len(stack)-1].name || cLoc.extend != stack[len(stack)-1].extend {
				return "", nil, &Error{Reason: fmt.Sprintf("unbalanced section marker: expected close for %q, found close for %q", stack[len(stack)-1].name, cLoc.name)}
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			body := text[top.bodyPos : pos+cLoc.start]
			sections = append(sections, NamedSection{Name: top.name, Body: body, Extend: top.extend})
			pos += cLoc.end
		}
	}
	if len(stack) > 0 {
		return "", nil, &Error{Reason: fmt.Sprintf("unbalanced section marker: %q never closed", stack[len(stack)-1].name)}
	}
	return out.String(), sections, nil
}

type markerMatch struct {
	name   string
	extend bool
	start  int
	end    int
}

func firstMatch(text string, sectionRe, extendRe *regexp.Regexp) *markerMatch {
	var best *markerMatch
	if loc := sectionRe.FindStringSubmatchIndex(text); loc != nil {
		best = &markerMatch{name: text[loc[2]:loc[3]], extend: false, start: loc[0], end: loc[1]}
	}
	if loc := extendRe.FindStringSubmatchIndex(text); loc != nil {
		if best == nil || loc[0] < best.start {
			best = &markerMatch{name: text[loc[2]:loc[3]], extend: true, start: loc[0], end: loc[1]}
		}
	}
	return best
}

// ComposeSections merges layers (low to high precedence) in SECTION mode:
// the lowest layer's outside-text and section order form the skeleton;
// a higher layer's SECTION marker replaces the named slot's body, while an
// EXTEND marker appends to it. A higher layer naming a section the base
// never declared is appended at the end.
func ComposeSections(layers [][]byte) (string, error) {
	if len(layers) == 0 {
		return "", nil
	}
	baseOutside, baseSections, err := ParseSections(string(layers[0]))
	if err != nil {
		return "", err
	}
	order := make([]string, 0, len(baseSections))
	bodies := map[string]string{}
	for _, s := range baseSections {
		order = append(order, s.Name)
		bodies[s.Name] = s.Body
	}

	for _, layer := range layers[1:] {
		_, sections, err := ParseSections(string(layer))
		if err != nil {
			return "", err
		}
		for _, s := range sections {
			if _, ok := bodies[s.Name]; !ok {
				order = append(order, s.Name)
				bodies[s.Name] = s.Body
				continue
			}
			if s.Extend {
				bodies[s.Name] = bodies[s.Name] + s.Body
			} else {
				bodies[s.Name] = s.Body
			}
		}
	}

	var out strings.Builder
	out.WriteString(baseOutside)
	for _, name := range order {
		out.WriteString(fmt.Sprintf("<!-- SECTION: %s -->", name))
		out.WriteString(bodies[name])
		out.WriteString(fmt.Sprintf("<!-- /SECTION: %s -->", name))
	}
	return out.String(), nil
}
