package filter

import (
	"encoding/json"
	"testing"

	"crash-insights-go/internal/selection"
	"crash-insights-go/internal/types"
)

func segment(city string, value float64, props map[string]any) types.Record {
	return types.Record{ID: "s", City: city, Value: value, Properties: props}
}

func testBuilder() *Builder {
	return NewBuilder(FieldMap{
		Default: "osm_speed",
		ByCity:  map[string]string{"boston": "SPEEDLIMIT"},
	})
}

func TestPredictionThresholdScenario(t *testing.T) {
	p := testBuilder().Build(selection.Snapshot{RiskThreshold: 0.5, SpeedLimitThreshold: 25}).Prediction

	if p.Match(segment("dc", 0.4, map[string]any{"osm_speed": 30.0})) {
		t.Fatalf("record below risk threshold should be excluded")
	}
	if !p.Match(segment("dc", 0.5, map[string]any{"osm_speed": 25.0})) {
		t.Fatalf("record on both boundaries should be included")
	}
}

func TestPredictionUsesCitySpeedField(t *testing.T) {
	p := testBuilder().Build(selection.Snapshot{SpeedLimitThreshold: 30}).Prediction

	if !p.Match(segment("boston", 0.1, map[string]any{"SPEEDLIMIT": 30.0, "osm_speed": 0.0})) {
		t.Fatalf("boston should read SPEEDLIMIT")
	}
	if p.Match(segment("cambridge", 0.1, map[string]any{"SPEEDLIMIT": 30.0})) {
		t.Fatalf("cambridge should read osm_speed, which is missing")
	}
	if !p.Match(segment("cambridge", 0.1, map[string]any{"osm_speed": "35"})) {
		t.Fatalf("string speeds should parse")
	}
}

func TestMissingSpeedPassesZeroThreshold(t *testing.T) {
	p := testBuilder().Build(selection.Defaults()).Prediction
	if !p.Match(segment("dc", 0, nil)) {
		t.Fatalf("default selection should show every segment")
	}
}

func TestPredictionCityFilter(t *testing.T) {
	p := testBuilder().Build(selection.Snapshot{City: "dc"}).Prediction
	if p.Match(segment("boston", 1, nil)) {
		t.Fatalf("other city should be excluded")
	}
	if !p.Match(segment("dc", 0, nil)) {
		t.Fatalf("selected city should be included")
	}
}

func TestCrashPredicate(t *testing.T) {
	b := testBuilder()

	p := b.Build(selection.Snapshot{Week: 3, City: "boston"}).Crash
	if !p.Match(types.Record{Week: 3, City: "boston"}) {
		t.Fatalf("matching crash excluded")
	}
	if p.Match(types.Record{Week: 4, City: "boston"}) || p.Match(types.Record{Week: 3, City: "dc"}) {
		t.Fatalf("non-matching crash included")
	}

	open := b.Build(selection.Snapshot{}).Crash
	if !open.Match(types.Record{Week: 40, City: "dc"}) {
		t.Fatalf("null week and city should match everything")
	}
}

func TestExpressions(t *testing.T) {
	b := testBuilder()

	crash, err := json.Marshal(b.Build(selection.Snapshot{Week: 3}).Crash.Expression())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(crash) != `["all",["==","week",3]]` {
		t.Fatalf("unexpected crash expression %s", crash)
	}

	pred, err := json.Marshal(b.Build(selection.Snapshot{RiskThreshold: 0.5, SpeedLimitThreshold: 25, City: "boston"}).Prediction.Expression())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `["all",[">=","prediction",0.5],[">=","SPEEDLIMIT",25],["==","city","boston"]]`
	if string(pred) != want {
		t.Fatalf("unexpected prediction expression\n got %s\nwant %s", pred, want)
	}

	all, err := json.Marshal(b.Build(selection.Snapshot{}).Prediction.Expression())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want = `["all",[">=","prediction",0],["any",["all",["==","city","boston"],[">=","SPEEDLIMIT",0]],["all",["!in","city","boston"],[">=","osm_speed",0]]]]`
	if string(all) != want {
		t.Fatalf("unexpected multi-city expression\n got %s\nwant %s", all, want)
	}
}
