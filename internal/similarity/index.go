package similarity

import "sort"

// Entry is the minimal task projection the index needs: title+body text for
// scoring, plus enough identity to report a match without a second lookup.
type Entry struct {
	ID        string
	Title     string
	Body      string
	State     string
	SessionID string
	Path      string
}

// Match is one scored result from Search.
type Match struct {
	TaskID     string
	Score      float64
	Title      string
	State      string
	SessionID  string
	Path       string
	TitleScore float64
	BodyScore  float64
}

// ToSessionNextDict renders the compact shape `task similar` emits for each
// match: just the id and a rounded score.
func (m Match) ToSessionNextDict() map[string]any {
	return map[string]any{
		"taskId": m.TaskID,
		"score":  roundTo(m.Score, 2),
	}
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return float64(int(v*scale+0.5)) / scale
}

type prepped struct {
	entry         Entry
	titleTokens   map[string]bool
	bodyTokens    map[string]bool
	titleShingles map[string]bool
	bodyShingles  map[string]bool
}

// Index is a precomputed similarity index over a fixed set of entries:
// every entry's title/body token and shingle sets are built once so a
// caller can run many queries against it cheaply.
type Index struct {
	prepped     []prepped
	shingleSize int
	useShingles bool
	titleWeight float64
	bodyWeight  float64
}

// Options configures how Search scores a query against the index's entries.
type Options struct {
	ShingleSize int
	UseShingles bool
	TitleWeight float64
	BodyWeight  float64
}

// NewIndex precomputes token/shingle sets for every entry, once, for reuse
// across many Search calls.
func NewIndex(entries []Entry, opts Options) *Index {
	if opts.ShingleSize < 1 {
		opts.ShingleSize = 3
	}
	if opts.TitleWeight == 0 && opts.BodyWeight == 0 {
		opts.TitleWeight, opts.BodyWeight = 0.6, 0.4
	}
	idx := &Index{
		shingleSize: opts.ShingleSize,
		useShingles: opts.UseShingles,
		titleWeight: opts.TitleWeight,
		bodyWeight:  opts.BodyWeight,
	}
	for _, e := range entries {
		p := prepped{
			entry:       e,
			titleTokens: Tokenize(e.Title),
			bodyTokens:  Tokenize(e.Body),
		}
		if opts.UseShingles {
			p.titleShingles = shingleSet(e.Title, opts.ShingleSize)
			p.bodyShingles = shingleSet(e.Body, opts.ShingleSize)
		}
		idx.prepped = append(idx.prepped, p)
	}
	return idx
}

// Search scores query against every indexed entry and returns matches at or
// above threshold, sorted by (score, titleScore, bodyScore) descending and
// truncated to topK (0 means unlimited). excludeIDs skips entries by id,
// typically the querying task itself.
func (idx *Index) Search(query string, threshold float64, topK int, excludeIDs map[string]bool) []Match {
	queryTitleTokens := Tokenize(query)
	queryBodyTokens := queryTitleTokens
	var queryShingles map[string]bool
	if idx.useShingles {
		queryShingles = shingleSet(query, idx.shingleSize)
	}

	var matches []Match
	for _, p := range idx.prepped {
		if excludeIDs != nil && excludeIDs[p.entry.ID] {
			continue
		}
		titleScore := jaccard(queryTitleTokens, p.titleTokens)
		bodyScore := jaccard(queryBodyTokens, p.bodyTokens)
		if idx.useShingles {
			if s := jaccard(queryShingles, p.titleShingles); s > titleScore {
				titleScore = s
			}
			if s := jaccard(queryShingles, p.bodyShingles); s > bodyScore {
				bodyScore = s
			}
		}
		weighted := idx.titleWeight*titleScore + idx.bodyWeight*bodyScore
		// Prefer recall for duplicate detection: a strong title match OR a
		// strong body match alone is enough to surface a candidate.
		score := weighted
		if titleScore > score {
			score = titleScore
		}
		if bodyScore > score {
			score = bodyScore
		}
		if score < threshold {
			continue
		}
		matches = append(matches, Match{
			TaskID:     p.entry.ID,
			Score:      score,
			Title:      p.entry.Title,
			State:      p.entry.State,
			SessionID:  p.entry.SessionID,
			Path:       p.entry.Path,
			TitleScore: titleScore,
			BodyScore:  bodyScore,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].TitleScore != matches[j].TitleScore {
			return matches[i].TitleScore > matches[j].TitleScore
		}
		return matches[i].BodyScore > matches[j].BodyScore
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// SearchForEntry builds a query from one entry's own title+body and excludes
// it from its own results — the "find tasks similar to this task" case.
func (idx *Index) SearchForEntry(e Entry, threshold float64, topK int) []Match {
	query := e.Title + "\n" + e.Body
	return idx.Search(query, threshold, topK, map[string]bool{e.ID: true})
}
