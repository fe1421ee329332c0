package similarity

import dmp "github.com/sergi/go-diff/diffmatchpatch"

// DiffRatio gives a finer-grained similarity signal than Jaccard for a
// single close pair: 1.0 for identical text, decreasing with the edit
// distance between a and b relative to the longer one's length. The session
// next planner does not call it; no follow-up dedup is built on it.
func DiffRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	differ := dmp.New()
	diffs := differ.DiffMain(a, b, false)
	dist := differ.DiffLevenshtein(diffs)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// IsNearDuplicate reports whether DiffRatio(a, b) is at least diffThreshold,
// i.e. whether two follow-up bodies are close enough to treat as the same
// suggested task rather than two distinct ones. It does not consult a
// Jaccard score itself.
func IsNearDuplicate(a, b string, diffThreshold float64) bool {
	return DiffRatio(a, b) >= diffThreshold
}
