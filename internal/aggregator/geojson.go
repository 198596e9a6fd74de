package aggregator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"crash-insights-go/internal/types"
)

// FeatureCollection turns rollup entries into point features for the
// circle-marker layer.
func FeatureCollection(entries []types.RollupEntry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, e := range entries {
		f := geojson.NewFeature(orb.Point{e.Location.X, e.Location.Y})
		f.Properties["key"] = e.Key
		f.Properties["total_crashes"] = e.Count
		f.Properties["crash_dates"] = strings.Join(e.Dates, ",")
		if e.Week != 0 {
			f.Properties["week"] = e.Week
		}
		if e.City != "" {
			f.Properties["city"] = e.City
		}
		if e.Mode != "" {
			f.Properties["mode"] = e.Mode
		}
		fc.Append(f)
	}
	return fc
}

// RollupFileName is the file a rollup is written to: crashes_rollup.geojson
// for all modes, crashes_rollup_<mode>.geojson otherwise.
func RollupFileName(mode string) string {
	if mode == AllModes || mode == "" {
		return "crashes_rollup.geojson"
	}
	return "crashes_rollup_" + mode + ".geojson"
}

// WriteRollups writes one GeoJSON file per rollup into dir and returns the
// written paths, all-modes first.
func WriteRollups(dir string, rollups map[string][]types.RollupEntry) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	modes := make([]string, 0, len(rollups))
	for m := range rollups {
		if m != AllModes {
			modes = append(modes, m)
		}
	}
	sort.Strings(modes)
	if _, ok := rollups[AllModes]; ok {
		modes = append([]string{AllModes}, modes...)
	}

	var written []string
	for _, m := range modes {
		raw, err := FeatureCollection(rollups[m]).MarshalJSON()
		if err != nil {
			return written, fmt.Errorf("encode %s rollup: %w", m, err)
		}
		path := filepath.Join(dir, RollupFileName(m))
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
