package ranking

import (
	"fmt"
	"sort"

	"crash-insights-go/internal/types"
)

type RiskCard struct {
	Rank        int            `json:"rank"`
	ID          string         `json:"id"`
	City        string         `json:"city"`
	DisplayName string         `json:"display_name,omitempty"`
	Prediction  float64        `json:"prediction"`
	Location    types.Location `json:"location"`
	Insight     string         `json:"insight"`
}

// TopRisk returns the n highest-risk segments, optionally of one city.
// Ties are broken by segment id so the order is stable across reloads.
func TopRisk(records []types.Record, n int, city string) []RiskCard {
	var pool []types.Record
	for _, r := range records {
		if city != "" && r.City != city {
			continue
		}
		pool = append(pool, r)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Value != pool[j].Value {
			return pool[i].Value > pool[j].Value
		}
		return pool[i].ID < pool[j].ID
	})
	if n > 0 && len(pool) > n {
		pool = pool[:n]
	}
	out := make([]RiskCard, 0, len(pool))
	for i, r := range pool {
		out = append(out, RiskCard{
			Rank:        i + 1,
			ID:          r.ID,
			City:        r.City,
			DisplayName: r.DisplayName,
			Prediction:  r.Value,
			Location:    r.Location,
			Insight:     insight(r),
		})
	}
	return out
}

func insight(r types.Record) string {
	name := r.DisplayName
	if name == "" {
		name = "Segment " + r.ID
	}
	switch {
	case r.Value >= 0.5:
		return fmt.Sprintf("%s: high crash risk (%.0f%%)", name, r.Value*100)
	case r.Value >= 0.2:
		return fmt.Sprintf("%s: elevated crash risk (%.0f%%)", name, r.Value*100)
	}
	return fmt.Sprintf("%s: low crash risk (%.0f%%)", name, r.Value*100)
}
