package similarity

import "testing"

func TestTokenize_LowercasesAndSplitsPunctuation(t *testing.T) {
	tokens := Tokenize("Fix Login-Bug, please!")
	for _, want := range []string{"fix", "login", "bug", "please"} {
		if !tokens[want] {
			t.Fatalf("expected token %q in %v", want, tokens)
		}
	}
	if tokens["Fix"] {
		t.Fatal("expected tokens to be lowercased")
	}
}

func TestJaccard_EmptyBothIsZero(t *testing.T) {
	if got := jaccard(map[string]bool{}, map[string]bool{}); got != 0.0 {
		t.Fatalf("expected 0.0 for two empty sets, got %v", got)
	}
}

func TestJaccard_IdenticalSetsIsOne(t *testing.T) {
	a := Tokenize("same text here")
	b := Tokenize("same text here")
	if got := jaccard(a, b); got != 1.0 {
		t.Fatalf("expected 1.0 for identical sets, got %v", got)
	}
}

func TestShingleSet_ShortTextFallsBackToWholeSequence(t *testing.T) {
	set := shingleSet("one two", 3)
	if len(set) != 1 {
		t.Fatalf("expected a single fallback shingle, got %v", set)
	}
	if !set["one two"] {
		t.Fatalf("expected fallback shingle to be the whole sequence, got %v", set)
	}
}

func TestIndex_SearchFindsExactTitleMatch(t *testing.T) {
	idx := NewIndex([]Entry{
		{ID: "t1", Title: "Fix login bug", Body: "Users cannot log in with valid credentials."},
		{ID: "t2", Title: "Add dark mode toggle", Body: "Let users switch themes in settings."},
	}, Options{ShingleSize: 3, UseShingles: true, TitleWeight: 0.6, BodyWeight: 0.4})

	matches := idx.Search("Fix login bug", 0.5, 10, nil)
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if matches[0].TaskID != "t1" {
		t.Fatalf("expected t1 to rank first, got %q", matches[0].TaskID)
	}
}

func TestIndex_SearchRespectsThreshold(t *testing.T) {
	idx := NewIndex([]Entry{
		{ID: "t1", Title: "Completely unrelated task", Body: "Nothing in common at all."},
	}, Options{ShingleSize: 3, UseShingles: true, TitleWeight: 0.6, BodyWeight: 0.4})

	matches := idx.Search("Fix login bug", 0.9, 10, nil)
	if len(matches) != 0 {
		t.Fatalf("expected no matches above threshold, got %v", matches)
	}
}

func TestIndex_SearchExcludesGivenIDs(t *testing.T) {
	idx := NewIndex([]Entry{
		{ID: "t1", Title: "Fix login bug", Body: "Users cannot log in."},
	}, Options{ShingleSize: 3, UseShingles: true, TitleWeight: 0.6, BodyWeight: 0.4})

	matches := idx.Search("Fix login bug", 0.1, 10, map[string]bool{"t1": true})
	if len(matches) != 0 {
		t.Fatalf("expected excluded id to be filtered out, got %v", matches)
	}
}

func TestIndex_SearchSortsByScoreDescending(t *testing.T) {
	idx := NewIndex([]Entry{
		{ID: "weak", Title: "Fix bug", Body: "unrelated body text entirely"},
		{ID: "strong", Title: "Fix login bug", Body: "Users cannot log in with valid credentials."},
	}, Options{ShingleSize: 3, UseShingles: true, TitleWeight: 0.6, BodyWeight: 0.4})

	matches := idx.Search("Fix login bug", 0.1, 10, nil)
	if len(matches) < 2 {
		t.Fatalf("expected both entries to match, got %v", matches)
	}
	if matches[0].TaskID != "strong" {
		t.Fatalf("expected strong match first, got %q", matches[0].TaskID)
	}
	for i := 1; i < len(matches); i++ {
		if matches[i-1].Score < matches[i].Score {
			t.Fatalf("expected descending score order, got %v", matches)
		}
	}
}

func TestIndex_SearchTopKTruncates(t *testing.T) {
	idx := NewIndex([]Entry{
		{ID: "t1", Title: "Fix login bug", Body: "body one"},
		{ID: "t2", Title: "Fix login bug again", Body: "body two"},
		{ID: "t3", Title: "Fix login bug once more", Body: "body three"},
	}, Options{ShingleSize: 3, UseShingles: true, TitleWeight: 0.6, BodyWeight: 0.4})

	matches := idx.Search("Fix login bug", 0.1, 1, nil)
	if len(matches) != 1 {
		t.Fatalf("expected topK=1 to truncate to one match, got %d", len(matches))
	}
}

func TestMatch_ToSessionNextDictRoundsScore(t *testing.T) {
	m := Match{TaskID: "t1", Score: 0.8333333}
	d := m.ToSessionNextDict()
	if d["taskId"] != "t1" {
		t.Fatalf("unexpected taskId: %v", d["taskId"])
	}
	if d["score"] != 0.83 {
		t.Fatalf("expected rounded score 0.83, got %v", d["score"])
	}
}

func TestDiffRatio_IdenticalTextIsOne(t *testing.T) {
	if got := DiffRatio("same text", "same text"); got != 1.0 {
		t.Fatalf("expected 1.0 for identical text, got %v", got)
	}
}

func TestDiffRatio_CompletelyDifferentIsLow(t *testing.T) {
	got := DiffRatio("abcdefgh", "zzzzzzzz")
	if got > 0.2 {
		t.Fatalf("expected low ratio for unrelated text, got %v", got)
	}
}

func TestIsNearDuplicate_DetectsCloseVariant(t *testing.T) {
	a := "Implement retry backoff for git push failures"
	b := "Implement retry backoff for git push failure"
	if !IsNearDuplicate(a, b, 0.9) {
		t.Fatal("expected near-identical follow-up bodies to be treated as duplicates")
	}
}
