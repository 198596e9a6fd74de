package aggregator

import (
	"sort"
	"strconv"
	"time"

	"crash-insights-go/internal/types"
)

// WeekOf returns the ISO week of t, folding the year-boundary weeks the way the
// weekly charts expect: a December date in ISO week 1 counts as week 52 and a
// January date in week 52/53 counts as week 1.
func WeekOf(t time.Time) int {
	_, week := t.ISOWeek()
	switch {
	case week == 1 && t.Month() == time.December:
		return 52
	case week >= 52 && t.Month() == time.January:
		return 1
	}
	return week
}

// WeeklySeries counts crash records per week for the weekly bar chart.
func WeeklySeries(records []types.Record, city string) []types.BarEntry {
	var weeks []types.Record
	for _, r := range records {
		if r.Week > 0 {
			weeks = append(weeks, r)
		}
	}
	return series(weeks, city, "", func(r types.Record) string {
		return strconv.Itoa(r.Week)
	}, func(id string) string { return id })
}

var weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// DayOfWeekSeries counts crash records per weekday, Monday first.
func DayOfWeekSeries(records []types.Record, city string) []types.BarEntry {
	dated := withDates(records)
	return series(dated, city, "", func(r types.Record) string {
		// Monday = 0
		return strconv.Itoa((int(r.OccurredAt.Weekday()) + 6) % 7)
	}, func(id string) string {
		n, _ := strconv.Atoi(id)
		return weekdays[n]
	})
}

// HourlySeries gives each hour's share of the crashes in its group, split
// into weekday and weekend groups. Each group sums to 1.
func HourlySeries(records []types.Record, city string) []types.BarEntry {
	var weekday, weekend []types.Record
	for _, r := range withDates(records) {
		switch r.OccurredAt.Weekday() {
		case time.Saturday, time.Sunday:
			weekend = append(weekend, r)
		default:
			weekday = append(weekday, r)
		}
	}
	hour := func(r types.Record) string { return strconv.Itoa(r.OccurredAt.Hour()) }
	label := func(id string) string { return id + ":00" }
	out := shares(series(weekday, city, "Weekday", hour, label))
	return append(out, shares(series(weekend, city, "Weekend", hour, label))...)
}

func shares(entries []types.BarEntry) []types.BarEntry {
	total := 0.0
	for _, e := range entries {
		total += e.Value
	}
	if total == 0 {
		return entries
	}
	for i := range entries {
		entries[i].Value /= total
	}
	return entries
}

func withDates(records []types.Record) []types.Record {
	out := make([]types.Record, 0, len(records))
	for _, r := range records {
		if !r.OccurredAt.IsZero() {
			out = append(out, r)
		}
	}
	return out
}

// series counts records by key. Records of other cities are skipped; records
// without a city count for every city.
func series(records []types.Record, city, group string, key KeyFunc, label func(string) string) []types.BarEntry {
	var kept []types.Record
	for _, r := range records {
		if city == "" || r.City == "" || r.City == city {
			kept = append(kept, r)
		}
	}
	entries := Aggregate(kept, key)
	out := make([]types.BarEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, types.BarEntry{
			ID:    e.Key,
			Label: label(e.Key),
			City:  city,
			Group: group,
			Value: float64(e.Count),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}

// YDomain is the value domain of a bar chart: zero to the tallest bar, or
// [0, 1] when there is nothing to scale.
func YDomain(entries []types.BarEntry) (float64, float64) {
	max := 0.0
	for _, e := range entries {
		if e.Value > max {
			max = e.Value
		}
	}
	if max == 0 {
		max = 1
	}
	return 0, max
}
