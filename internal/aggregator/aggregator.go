package aggregator

import (
	"strconv"
	"strings"
	"time"

	"crash-insights-go/internal/types"
)

// KeyFunc derives the grouping key of a record.
type KeyFunc func(types.Record) string

// EmptyInputError is returned when a caller requires a non-empty rollup.
type EmptyInputError struct {
	What string
}

func (e *EmptyInputError) Error() string {
	if e.What == "" {
		return "aggregate: empty input"
	}
	return "aggregate: empty input: " + e.What
}

// Aggregate groups records by key and counts them. Entries come out in
// first-seen key order; each entry lists its distinct crash dates.
func Aggregate(records []types.Record, key KeyFunc) []types.RollupEntry {
	out := []types.RollupEntry{}
	idx := map[string]int{}
	seen := map[string]bool{}
	for _, r := range records {
		k := key(r)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, types.RollupEntry{Key: k, Location: r.Location, City: r.City, Week: r.Week})
		}
		e := &out[i]
		e.Count++
		if !r.OccurredAt.IsZero() {
			d := r.OccurredAt.Format(time.RFC3339)
			if !seen[k+"\x00"+d] {
				seen[k+"\x00"+d] = true
				e.Dates = append(e.Dates, d)
			}
		}
	}
	return out
}

// AggregateNonEmpty is Aggregate for callers that cannot render an empty layer.
func AggregateNonEmpty(records []types.Record, key KeyFunc, what string) ([]types.RollupEntry, error) {
	if len(records) == 0 {
		return nil, &EmptyInputError{What: what}
	}
	return Aggregate(records, key), nil
}

// LocationKey keys a record by its coordinates. Raw source text is used when
// present so that re-serialized floats never split a location in two.
func LocationKey(r types.Record) string {
	return coord(r.RawX, r.Location.X) + "|" + coord(r.RawY, r.Location.Y)
}

// LocationModeKey keys a record by coordinates and travel mode.
func LocationModeKey(r types.Record) string {
	return LocationKey(r) + "|" + r.Mode
}

// LocationWeekKey keys a record by coordinates and week, for the weekly
// crash layer.
func LocationWeekKey(r types.Record) string {
	return LocationKey(r) + "|" + strconv.Itoa(r.Week)
}

// SegmentKey keys a record by its segment id.
func SegmentKey(r types.Record) string {
	return r.ID
}

func coord(raw string, v float64) string {
	if raw != "" {
		return raw
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// AllModes is the rollup name holding every record regardless of mode.
const AllModes = "all"

// RollupByMode builds the location rollup for all records plus one rollup per
// requested mode.
func RollupByMode(records []types.Record, modes []string) map[string][]types.RollupEntry {
	out := map[string][]types.RollupEntry{
		AllModes: Aggregate(records, LocationKey),
	}
	for _, m := range modes {
		var subset []types.Record
		for _, r := range records {
			if r.Mode == m {
				subset = append(subset, r)
			}
		}
		entries := Aggregate(subset, LocationKey)
		for i := range entries {
			entries[i].Mode = m
		}
		out[m] = entries
	}
	return out
}

// Records turns rollup entries back into map records whose value is the
// count, so the crash layer can be filtered like any other record set.
func Records(entries []types.RollupEntry) []types.Record {
	out := make([]types.Record, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.Record{
			City:     e.City,
			Location: e.Location,
			Week:     e.Week,
			Value:    float64(e.Count),
			Mode:     e.Mode,
			Properties: map[string]any{
				"total_crashes": e.Count,
				"crash_dates":   strings.Join(e.Dates, ","),
			},
		})
	}
	return out
}
