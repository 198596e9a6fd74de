package dataset

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"crash-insights-go/internal/aggregator"
	"crash-insights-go/internal/types"
)

// ParsePredictions reads a predictions FeatureCollection. Each feature is a
// road segment carrying a prediction and, usually, a nested segment object
// with its id, display name and center.
func ParsePredictions(raw []byte, city string) ([]types.Record, error) {
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode predictions: %w", err)
	}
	out := make([]types.Record, 0, len(fc.Features))
	for i, f := range fc.Features {
		props := copyProps(f.Properties)
		seg, _ := props["segment"].(map[string]any)

		id := firstString(props["segment_id"], seg["id"], f.ID, props["id"])
		if id == "" {
			return nil, fmt.Errorf("decode predictions: feature %d has no segment id", i)
		}
		pred, ok := number(props["prediction"])
		if !ok {
			return nil, fmt.Errorf("decode predictions: segment %s has no prediction", id)
		}
		loc, ok := centerOf(seg, f.Geometry)
		if !ok {
			return nil, fmt.Errorf("decode predictions: segment %s has no location", id)
		}
		week, _ := number(props["week"])
		rec := types.Record{
			ID:          id,
			City:        firstString(props["city"], city),
			Location:    loc,
			Week:        int(week),
			Value:       pred,
			DisplayName: firstString(seg["display_name"], props["display_name"]),
			Properties:  props,
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseCrashes accepts either a standardized crashes JSON array or a crash
// rollup FeatureCollection. Rollups are expanded back into one record per
// crash so the map can filter them by week.
func ParseCrashes(raw []byte, city string) ([]types.Record, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return ParseStandardCrashes(trimmed, city)
	}
	fc, err := geojson.UnmarshalFeatureCollection(trimmed)
	if err != nil {
		return nil, fmt.Errorf("decode crashes: %w", err)
	}
	var out []types.Record
	for i, f := range fc.Features {
		if f.Geometry == nil {
			return nil, fmt.Errorf("decode crashes: feature %d has no geometry", i)
		}
		c := f.Geometry.Bound().Center()
		base := types.Record{
			ID:       firstString(f.ID),
			City:     city,
			Location: types.Location{X: c.X(), Y: c.Y()},
			Mode:     firstString(f.Properties["mode"]),
		}
		out = append(out, expandRollup(base, f.Properties)...)
	}
	return out, nil
}

func expandRollup(base types.Record, props geojson.Properties) []types.Record {
	var dates []time.Time
	if s, ok := props["crash_dates"].(string); ok {
		for _, part := range strings.Split(s, ",") {
			if t, ok := parseDate(part); ok {
				dates = append(dates, t)
			}
		}
	}
	total := len(dates)
	if n, ok := number(props["total_crashes"]); ok && int(n) > total {
		total = int(n)
	}
	if total == 0 {
		total = 1
	}
	week, _ := number(props["week"])

	out := make([]types.Record, 0, total)
	for i := 0; i < total; i++ {
		r := base
		r.Value = 1
		r.Week = int(week)
		if len(dates) > 0 {
			// rollups list distinct dates, so extra crashes reuse the last one
			d := dates[min(i, len(dates)-1)]
			r.OccurredAt = d
			r.Week = aggregator.WeekOf(d)
		}
		out = append(out, r)
	}
	return out
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func centerOf(seg map[string]any, g orb.Geometry) (types.Location, bool) {
	x, okx := number(seg["center_x"])
	y, oky := number(seg["center_y"])
	if okx && oky {
		return types.Location{X: x, Y: y}, true
	}
	if g == nil {
		return types.Location{}, false
	}
	c := g.Bound().Center()
	return types.Location{X: c.X(), Y: c.Y()}, true
}

func copyProps(p geojson.Properties) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// firstString returns the first value that renders to a non-empty id.
// Numeric ids are printed without a fractional part.
func firstString(vs ...any) string {
	for _, v := range vs {
		switch s := v.(type) {
		case string:
			if s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case int:
			return strconv.Itoa(s)
		}
	}
	return ""
}
