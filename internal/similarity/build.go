package similarity

import (
	"github.com/edison-dev/edison/internal/config"
	"github.com/edison-dev/edison/internal/entity"
)

// BuildFromStore loads every task entity from store, optionally filtered to
// a set of states, and builds an Index configured from cfg. A nil/empty
// states set means no filtering.
func BuildFromStore(store *entity.Store, cfg *config.TaskConfig, states map[string]bool) (*Index, error) {
	entities, err := store.FindAll(entity.KindTask)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(entities))
	for _, e := range entities {
		if len(states) > 0 && !states[e.State] {
			continue
		}
		path, _ := store.GetPath(entity.KindTask, e.ID)
		entries = append(entries, Entry{
			ID:        e.ID,
			Title:     e.Title,
			Body:      e.Body,
			State:     e.State,
			SessionID: e.SessionID,
			Path:      path,
		})
	}
	opts := Options{
		ShingleSize: cfg.SimilarityShingleSize,
		UseShingles: cfg.SimilarityUseShingles,
		TitleWeight: cfg.SimilarityTitleWeight,
		BodyWeight:  cfg.SimilarityBodyWeight,
	}
	return NewIndex(entries, opts), nil
}
