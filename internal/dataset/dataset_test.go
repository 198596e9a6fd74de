package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"crash-insights-go/internal/filter"
	"crash-insights-go/internal/logger"
	"crash-insights-go/internal/types"
)

const predsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[-71.10, 42.36], [-71.08, 42.38]]},
     "properties": {"prediction": 0.82, "target": 1, "segment_id": "0012", "SPEEDLIMIT": 30,
                    "segment": {"id": "0012", "display_name": "Green St", "center_x": -71.09, "center_y": 42.37}}},
    {"type": "Feature",
     "geometry": {"type": "LineString", "coordinates": [[-71.0, 42.0], [-71.5, 42.5]]},
     "properties": {"prediction": 0.1, "segment_id": "0013", "SPEEDLIMIT": 0}}
  ]
}`

const rollupGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [-71.106, 42.365]},
     "properties": {"total_crashes": 3,
                    "crash_dates": "2015-01-01T00:45:00-05:00,2015-04-15T00:45:00-05:00"}},
    {"type": "Feature",
     "geometry": {"type": "Point", "coordinates": [-71.097, 42.361]},
     "properties": {"total_crashes": 2, "week": 7}}
  ]
}`

func testSource(dir string) *Source {
	return NewSource(Options{
		DataDir:         dir,
		Timeout:         time.Second,
		MaxElapsed:      2 * time.Second,
		InitialInterval: time.Millisecond,
		Log:             logger.Discard(),
	})
}

func TestParsePredictions(t *testing.T) {
	recs, err := ParsePredictions([]byte(predsGeoJSON), "boston")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	r := recs[0]
	if r.ID != "0012" || r.Value != 0.82 || r.DisplayName != "Green St" || r.City != "boston" {
		t.Fatalf("unexpected record %+v", r)
	}
	if r.Location != (types.Location{X: -71.09, Y: 42.37}) {
		t.Fatalf("segment center should win, got %+v", r.Location)
	}
	if v, ok := r.Float("SPEEDLIMIT"); !ok || v != 30 {
		t.Fatalf("speed attribute lost: %v %v", v, ok)
	}
	if got := recs[1].Location; got.X != -71.25 || got.Y != 42.25 {
		t.Fatalf("geometry center expected for segment without center, got %+v", got)
	}
}

func TestParsePredictionsRequiresID(t *testing.T) {
	raw := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{"prediction":0.5}}]}`
	if _, err := ParsePredictions([]byte(raw), "x"); err == nil {
		t.Fatalf("expected error for feature without id")
	}
}

func TestParseCrashesExpandsRollup(t *testing.T) {
	recs, err := ParseCrashes([]byte(rollupGeoJSON), "cambridge")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("expected 3+2 crash records, got %d", len(recs))
	}
	weeks := []int{}
	for _, r := range recs {
		weeks = append(weeks, r.Week)
		if r.City != "cambridge" {
			t.Fatalf("city not set: %+v", r)
		}
	}
	// Jan 1 2015 is ISO week 1, Apr 15 is week 16 and the third crash reuses it.
	want := []int{1, 16, 16, 7, 7}
	for i := range want {
		if weeks[i] != want[i] {
			t.Fatalf("weeks = %v, want %v", weeks, want)
		}
	}
}

func TestParseStandardCrashes(t *testing.T) {
	raw := `[
	  {"id": 1, "dateOccurred": "2015-01-01T00:45:00-05:00",
	   "location": {"latitude": 42.3650, "longitude": -71.106}, "vehicle": 1},
	  {"id": "A1B2", "dateOccurred": "2016-12-31T10:00:00-05:00",
	   "location": {"latitude": 42.361, "longitude": -71.097}, "bike": 1, "address": "MASS AVE"}
	]`
	recs, err := ParseCrashes([]byte(raw), "boston")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if recs[0].ID != "1" || recs[0].RawY != "42.3650" || recs[0].Mode != "vehicle" || recs[0].Week != 1 {
		t.Fatalf("unexpected first crash %+v", recs[0])
	}
	if recs[1].ID != "A1B2" || recs[1].Mode != "bike" || recs[1].DisplayName != "MASS AVE" || recs[1].Week != 52 {
		t.Fatalf("unexpected second crash %+v", recs[1])
	}
}

func TestParseSeriesCSV(t *testing.T) {
	raw := "city,year,week,counts\nboston,2017,2,5\ncambridge,2017,1,9\nboston,2017,1,3\nboston,2017,x,bad\n"
	bars, err := ParseSeriesCSV([]byte(raw), "boston")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(bars) != 2 || bars[0].ID != "1" || bars[0].Value != 3 || bars[1].ID != "2" {
		t.Fatalf("unexpected bars %+v", bars)
	}
}

func TestParseSeriesCSVHourly(t *testing.T) {
	raw := "city,year,weekend,hour,counts,pct_crash,weekend_lbl\n" +
		"boston,2017,1,0,4,0.5,Weekend\n" +
		"boston,2017,0,1,2,0.2,Weekday\n" +
		"boston,2017,0,0,8,0.8,Weekday\n"
	bars, err := ParseSeriesCSV([]byte(raw), "boston")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(bars) != 3 || bars[0].Group != "Weekday" || bars[0].ID != "0" || bars[0].Value != 0.8 || bars[2].Group != "Weekend" {
		t.Fatalf("unexpected bars %+v", bars)
	}
}

func TestParseSeriesRejectsUnknownHeader(t *testing.T) {
	if _, err := ParseSeriesCSV([]byte("a,b\n1,2\n"), ""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseSeriesXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"dow", "dow_name", "counts"},
		{1, "Tuesday", 4},
		{0, "Monday", 7},
	}
	for i, r := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	bars, err := ParseSeriesXLSX(buf.Bytes(), "boston")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(bars) != 2 || bars[0].Label != "Monday" || bars[0].Value != 7 || bars[1].City != "boston" {
		t.Fatalf("unexpected bars %+v", bars)
	}
}

func TestFetchRecordsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(predsGeoJSON))
	}))
	defer srv.Close()

	recs, err := testSource("").FetchRecords(context.Background(), Request{Kind: KindPredictions, City: "boston", URL: srv.URL + "/preds.geojson"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(recs) != 2 || atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 2 records after 3 calls, got %d after %d", len(recs), calls)
	}
}

func TestFetchRecordsNotFoundIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := testSource("").FetchRecords(context.Background(), Request{Kind: KindCrashes, URL: srv.URL})
	var fe *FetchError
	if !errors.As(err, &fe) || fe.URL != srv.URL {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("404 should not be retried, got %d calls", n)
	}
}

func TestFetchSeriesFromDataDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "weekly.csv"), []byte("week,crashes\n3,1\n1,2\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	bars, err := testSource(dir).FetchSeries(context.Background(), Request{Kind: KindWeekly, URL: "weekly.csv"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(bars) != 2 || bars[0].ID != "1" {
		t.Fatalf("unexpected bars %+v", bars)
	}
}

func TestFetchMissingFile(t *testing.T) {
	_, err := testSource(t.TempDir()).FetchRecords(context.Background(), Request{Kind: KindPredictions, URL: "nope.geojson"})
	var fe *FetchError
	if !errors.As(err, &fe) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected FetchError wrapping not-exist, got %v", err)
	}
}

func TestSplitDSN(t *testing.T) {
	dsn, table, err := splitDSN("postgres://u:secret@db:5432/crashes?sslmode=disable&table=public.preds")
	if err != nil {
		t.Fatalf("split failed: %v", err)
	}
	if table != "public.preds" || strings.Contains(dsn, "table=") || !strings.Contains(dsn, "sslmode=disable") {
		t.Fatalf("unexpected split %q %q", dsn, table)
	}
	if _, _, err := splitDSN("postgres://db/x?table=preds;drop"); err == nil {
		t.Fatalf("expected invalid table to be rejected")
	}
	if got := redact("postgres://u:secret@db/x"); strings.Contains(got, "secret") {
		t.Fatalf("password not redacted: %s", got)
	}
}

func TestTableURL(t *testing.T) {
	name, ok := TableSource("table:boston_preds")
	if !ok || name != "boston_preds" {
		t.Fatalf("unexpected table source %q %v", name, ok)
	}
	if _, ok := TableSource("boston/preds.geojson"); ok {
		t.Fatalf("file path taken for a table")
	}
	full, err := TableURL("postgres://u@db/crashes?sslmode=disable", name)
	if err != nil {
		t.Fatalf("table url: %v", err)
	}
	_, table, err := splitDSN(full)
	if err != nil || table != "boston_preds" {
		t.Fatalf("round trip failed: %q %v", table, err)
	}
}

func TestPredictionRecordsUseCitySpeedField(t *testing.T) {
	rows := []predictionRow{{SegmentID: "7", Prediction: 0.4, CenterX: 1, CenterY: 2}}
	rows[0].Speed.Float64, rows[0].Speed.Valid = 25, true
	recs := predictionRecords(rows, "boston", "SPEEDLIMIT")
	if v, ok := recs[0].Float("SPEEDLIMIT"); !ok || v != 25 || recs[0].City != "boston" {
		t.Fatalf("unexpected record %+v", recs[0])
	}
}

func TestSummarize(t *testing.T) {
	preds := []types.Record{
		{ID: "a", City: "boston", Value: 0.3, Properties: map[string]any{"SPEEDLIMIT": 25.0}},
		{ID: "b", City: "boston", Value: 0.9, Properties: map[string]any{"SPEEDLIMIT": 40.0}},
	}
	crashes := []types.Record{{Week: 3, Mode: "bike"}, {Week: 3}, {Week: 1, Mode: "bike"}}
	fields := filter.FieldMap{ByCity: map[string]string{"boston": "SPEEDLIMIT"}}
	s := Summarize("boston", preds, crashes, fields, nil)
	if s.MaxRisk != 0.9 || s.MaxSpeed != 40 || s.Segments != 2 || s.Crashes != 3 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.ByMode["bike"] != 2 || s.ByMode["unknown"] != 1 || s.BusiestWeek != 3 || len(s.Weeks) != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
}
