package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"crash-insights-go/internal/aggregator"
	"crash-insights-go/internal/types"
)

// Modes are the travel-mode flags of a standardized crash, in the order
// used to pick a record's single mode.
var Modes = []string{"pedestrian", "bike", "vehicle"}

type standardCrash struct {
	ID           json.RawMessage `json:"id"`
	DateOccurred string          `json:"dateOccurred"`
	Location     struct {
		Latitude  json.Number `json:"latitude"`
		Longitude json.Number `json:"longitude"`
	} `json:"location"`
	Address    string      `json:"address"`
	Pedestrian json.Number `json:"pedestrian"`
	Bike       json.Number `json:"bike"`
	Vehicle    json.Number `json:"vehicle"`
}

// ParseStandardCrashes reads the standardized crashes array. Coordinates keep
// their source text so rollups group on exactly what the file says.
func ParseStandardCrashes(raw []byte, city string) ([]types.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var in []standardCrash
	if err := dec.Decode(&in); err != nil {
		return nil, fmt.Errorf("decode standardized crashes: %w", err)
	}
	out := make([]types.Record, 0, len(in))
	for i, c := range in {
		x, errX := c.Location.Longitude.Float64()
		y, errY := c.Location.Latitude.Float64()
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("decode standardized crashes: crash %d has no location", i)
		}
		occurred, ok := parseDate(c.DateOccurred)
		if !ok {
			return nil, fmt.Errorf("decode standardized crashes: crash %d has bad date %q", i, c.DateOccurred)
		}
		rec := types.Record{
			ID:          rawID(c.ID),
			City:        city,
			Location:    types.Location{X: x, Y: y},
			RawX:        c.Location.Longitude.String(),
			RawY:        c.Location.Latitude.String(),
			Week:        aggregator.WeekOf(occurred),
			Value:       1,
			Mode:        c.mode(),
			DisplayName: c.Address,
			OccurredAt:  occurred,
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c standardCrash) mode() string {
	flags := []json.Number{c.Pedestrian, c.Bike, c.Vehicle}
	for i, f := range flags {
		if n, err := f.Int64(); err == nil && n > 0 {
			return Modes[i]
		}
	}
	return ""
}

func rawID(m json.RawMessage) string {
	if len(m) == 0 || string(m) == "null" {
		return ""
	}
	if s, err := strconv.Unquote(string(m)); err == nil {
		return s
	}
	return string(m)
}
