package viewsync

import "crash-insights-go/internal/types"

// Index finds segment records by id. Ids are only unique within a city, so
// each id keeps every record that carries it.
type Index struct {
	byID map[string][]types.Record
}

func NewIndex(records []types.Record) *Index {
	idx := &Index{byID: make(map[string][]types.Record, len(records))}
	for _, r := range records {
		if r.ID == "" {
			continue
		}
		idx.byID[r.ID] = append(idx.byID[r.ID], r)
	}
	return idx
}

// Lookup prefers the record from city when one is selected.
func (i *Index) Lookup(city, id string) (types.Record, bool) {
	candidates := i.byID[id]
	if len(candidates) == 0 {
		return types.Record{}, false
	}
	if city == "" {
		return candidates[0], true
	}
	for _, r := range candidates {
		if r.City == city {
			return r, true
		}
	}
	return types.Record{}, false
}

func (i *Index) Len() int {
	return len(i.byID)
}
