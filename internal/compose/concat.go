package compose

import (
	"regexp"
	"strings"
)

var blankLineRe = regexp.MustCompile(`\n\s*\n`)

// SplitParagraphs splits text into paragraphs on blank lines, treating
// fenced code blocks as a single atomic paragraph so dedup/concatenation
// never cuts inside a fence (spec §4.9: "fences remain balanced after
// dedup").
func SplitParagraphs(text string) []string {
	var out []string
	var prose strings.Builder
	flushProse := func() {
		for _, p := range blankLineRe.Split(prose.String(), -1) {
			if strings.TrimSpace(p) != "" {
				out = append(out, p)
			}
		}
		prose.Reset()
	}
	for _, seg := range splitPreservingFences(text) {
		if seg.literal && fenceMarkerRe.MatchString(strings.TrimSpace(seg.text)) {
			flushProse()
			if strings.TrimSpace(seg.text) != "" {
				out = append(out, seg.text)
			}
			continue
		}
		prose.WriteString(seg.text) // plain text and inline code spans
	}
	flushProse()
	return out
}

var wordRe = regexp.MustCompile(`\S+`)

// shingles returns the set of rolling word k-shingles for a paragraph.
// Paragraphs shorter than k words produce no shingles and are therefore
// never treated as duplicates of anything — a deliberately conservative
// choice: a 2-word paragraph sharing those 2 words with something else is
// far more likely to be coincidence than a real copy-paste duplicate.
func shingles(paragraph string, k int) map[string]bool {
	words := wordRe.FindAllString(strings.ToLower(paragraph), -1)
	set := map[string]bool{}
	if k <= 0 || len(words) < k {
		return set
	}
	for i := 0; i+k <= len(words); i++ {
		set[strings.Join(words[i:i+k], " ")] = true
	}
	return set
}

// PackLayer is one named, ordered pack contribution to a CONCATENATE
// composition.
type PackLayer struct {
	Name string
	Text string
}

// ConcatenateCompose implements CONCATENATE mode: core, then packs in
// active order (low to high), then the project overlay, each split into
// paragraphs; a paragraph whose k-shingles overlap the combined shingles of
// all already-emitted paragraphs by at least min is dropped as a duplicate of the
// earlier (lower-priority, but first-seen) occurrence — matching the
// reference composer's documented behavior where core's copy survives and
// a later layer's repeat of it is the one removed.
func ConcatenateCompose(core string, packs []PackLayer, project string, shingleK, shingleMin int) string {
	if shingleK <= 0 {
		shingleK = 12
	}
	if shingleMin <= 0 {
		shingleMin = 3
	}

	seen := map[string]bool{}
	var kept []string

	emit := func(text string) {
		for _, p := range SplitParagraphs(text) {
			ps := shingles(p, shingleK)
			if len(ps) > 0 {
				overlap := 0
				for s := range ps {
					if seen[s] {
						overlap++
					}
				}
				if overlap >= shingleMin {
					continue
				}
			}
			for s := range ps {
				seen[s] = true
			}
			kept = append(kept, p)
		}
	}

	emit(core)
	for _, pack := range packs {
		emit(pack.Text)
	}
	emit(project)

	return strings.Join(kept, "\n\n")
}
