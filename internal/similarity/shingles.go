package similarity

import "strings"

// tokenSequence lowercases text and splits it into an ordered sequence of
// word tokens, preserving repeats and order (needed for shingling, unlike
// the set Tokenize returns).
func tokenSequence(text string) []string {
	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// shingleSet builds the set of contiguous k-word shingles in text, joined by
// a space. Texts shorter than k words produce a single shingle spanning the
// whole token sequence (mirrors the reference implementation: no shingle
// means no signal, not zero tokens).
func shingleSet(text string, k int) map[string]bool {
	tokens := tokenSequence(text)
	if len(tokens) == 0 {
		return map[string]bool{}
	}
	if k < 1 {
		k = 1
	}
	if len(tokens) < k {
		return map[string]bool{strings.Join(tokens, " "): true}
	}
	set := map[string]bool{}
	for i := 0; i+k <= len(tokens); i++ {
		set[strings.Join(tokens[i:i+k], " ")] = true
	}
	return set
}
