package types

import (
	"strconv"
	"time"
)

// Location is a point in map coordinates; X is longitude, Y latitude.
type Location struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Record is one observation: a crash event or a road-segment prediction.
// Records are immutable once loaded.
type Record struct {
	ID          string         `json:"id,omitempty"`
	City        string         `json:"city,omitempty"`
	Location    Location       `json:"location"`
	RawX        string         `json:"-"`
	RawY        string         `json:"-"`
	Week        int            `json:"week,omitempty"`
	Value       float64        `json:"value"`
	Mode        string         `json:"mode,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Float reads a numeric source attribute. Numbers encoded as strings are accepted.
func (r Record) Float(name string) (float64, bool) {
	v, ok := r.Properties[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// RollupEntry is the aggregate of all records sharing one key. Location,
// City and Week come from the first contributing record; Week is only
// meaningful when the key includes it.
type RollupEntry struct {
	Key      string   `json:"key"`
	Count    int      `json:"count"`
	Location Location `json:"location"`
	City     string   `json:"city,omitempty"`
	Week     int      `json:"week,omitempty"`
	Mode     string   `json:"mode,omitempty"`
	Dates    []string `json:"dates,omitempty"`
}

// BarEntry is one bar of a histogram (a week, a weekday or an hour).
type BarEntry struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	City  string  `json:"city,omitempty"`
	Group string  `json:"group,omitempty"`
	Value float64 `json:"value"`
}
