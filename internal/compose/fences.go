package compose

import (
	"regexp"
	"strings"
)

type segment struct {
	text    string
	literal bool
}

var fenceMarkerRe = regexp.MustCompile("^(```+|~~~+)")
var inlineCodeRe = regexp.MustCompile("`[^`\n]*`")

// splitPreservingFences splits content into alternating literal/non-literal
// segments so include/section directives inside fenced code blocks or
// inline code spans are never rewritten — a documentation example that
// shows the `{{include:...}}` syntax must render literally.
func splitPreservingFences(content string) []segment {
	lines := strings.SplitAfter(content, "\n")
	var segs []segment
	var plain strings.Builder
	var fence strings.Builder
	inFence := false
	var fenceMarker string

	flushPlain := func() {
		if plain.Len() > 0 {
			segs = append(segs, splitInlineCode(plain.String())...)
			plain.Reset()
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\n")
		if m := fenceMarkerRe.FindString(strings.TrimSpace(trimmed)); m != "" {
			if !inFence {
				flushPlain()
				inFence = true
				fenceMarker = m[:1] // '`' or '~'
				fence.WriteString(line)
				continue
			}
			if strings.HasPrefix(strings.TrimSpace(trimmed), strings.Repeat(fenceMarker, len(m))) {
				fence.WriteString(line)
				segs = append(segs, segment{text: fence.String(), literal: true})
				fence.Reset()
				inFence = false
				continue
			}
		}
		if inFence {
			fence.WriteString(line)
		} else {
			plain.WriteString(line)
		}
	}
	if fence.Len() > 0 {
		// unterminated fence: treat the remainder as literal rather than
		// risk rewriting a directive the author meant to show verbatim.
		segs = append(segs, segment{text: fence.String(), literal: true})
	}
	flushPlain()
	return segs
}

func splitInlineCode(text string) []segment {
	matches := inlineCodeRe.FindAllStringIndex(text, -1)
	if matches == nil {
		return []segment{{text: text, literal: false}}
	}
	var segs []segment
	last := 0
	for _, m := range matches {
		if m[0] > last {
			segs = append(segs, segment{text: text[last:m[0]], literal: false})
		}
		segs = append(segs, segment{text: text[m[0]:m[1]], literal: true})
		last = m[1]
	}
	if last < len(text) {
		segs = append(segs, segment{text: text[last:], literal: false})
	}
	return segs
}
