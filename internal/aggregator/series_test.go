package aggregator

import (
	"testing"
	"time"

	"crash-insights-go/internal/types"
)

func TestWeekOfFoldsYearBoundary(t *testing.T) {
	cases := []struct {
		date string
		want int
	}{
		{"2017-03-15", 11},
		{"2018-12-31", 52}, // ISO week 1 of 2019
		{"2016-01-01", 1},  // ISO week 53 of 2015
		{"2017-01-02", 1},
	}
	for _, c := range cases {
		d, err := time.Parse("2006-01-02", c.date)
		if err != nil {
			t.Fatalf("bad date %s: %v", c.date, err)
		}
		if got := WeekOf(d); got != c.want {
			t.Fatalf("WeekOf(%s) = %d, want %d", c.date, got, c.want)
		}
	}
}

func TestWeeklySeriesSortedByWeek(t *testing.T) {
	records := []types.Record{{Week: 10}, {Week: 2}, {Week: 10}, {Week: 1}, {Week: 0}, {Week: 4, City: "dc"}}

	got := WeeklySeries(records, "boston")
	if len(got) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "2" || got[2].ID != "10" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if got[2].Value != 2 || got[2].City != "boston" {
		t.Fatalf("unexpected bar: %+v", got[2])
	}
}

func TestDayOfWeekAndHourlySeries(t *testing.T) {
	mon := time.Date(2017, 3, 13, 8, 0, 0, 0, time.UTC)
	sat := time.Date(2017, 3, 18, 8, 30, 0, 0, time.UTC)
	records := []types.Record{{OccurredAt: mon}, {OccurredAt: mon}, {OccurredAt: sat}, {}}

	dow := DayOfWeekSeries(records, "")
	if len(dow) != 2 || dow[0].Label != "Monday" || dow[0].Value != 2 || dow[1].Label != "Saturday" {
		t.Fatalf("unexpected dow series: %+v", dow)
	}

	hourly := HourlySeries(records, "")
	if len(hourly) != 2 {
		t.Fatalf("expected weekday and weekend bars, got %+v", hourly)
	}
	if hourly[0].Group != "Weekday" || hourly[0].Value != 1 || hourly[1].Group != "Weekend" {
		t.Fatalf("unexpected hourly series: %+v", hourly)
	}
}

func TestHourlySeriesSharesWithinGroup(t *testing.T) {
	tue := time.Date(2017, 3, 14, 0, 0, 0, 0, time.UTC)
	sun := time.Date(2017, 3, 19, 0, 0, 0, 0, time.UTC)
	records := []types.Record{
		{OccurredAt: tue.Add(8 * time.Hour)},
		{OccurredAt: tue.Add(8 * time.Hour)},
		{OccurredAt: tue.Add(8 * time.Hour)},
		{OccurredAt: tue.Add(17 * time.Hour)},
		{OccurredAt: sun.Add(2 * time.Hour)},
		{OccurredAt: sun.Add(23 * time.Hour)},
	}

	got := map[string]float64{}
	for _, b := range HourlySeries(records, "") {
		got[b.Group+"/"+b.ID] = b.Value
	}
	want := map[string]float64{
		"Weekday/8": 0.75, "Weekday/17": 0.25,
		"Weekend/2": 0.5, "Weekend/23": 0.5,
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected bars %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("%s: expected share %v, got %v", k, v, got[k])
		}
	}
}

func TestYDomain(t *testing.T) {
	if _, max := YDomain(nil); max != 1 {
		t.Fatalf("empty domain should be [0,1], got max %v", max)
	}
	_, max := YDomain([]types.BarEntry{{Value: 3}, {Value: 12}, {Value: 7}})
	if max != 12 {
		t.Fatalf("expected max 12, got %v", max)
	}
}
