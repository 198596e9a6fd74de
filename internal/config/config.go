package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"crash-insights-go/internal/filter"
	"crash-insights-go/internal/types"
)

// Settings are the process-level knobs, read from the environment.
type Settings struct {
	Port            string
	ConfigFile      string
	DataDir         string
	MapboxToken     string
	DefaultZoom     float64
	FetchTimeout    time.Duration
	FetchMaxElapsed time.Duration
	DatabaseURL     string
}

func FromEnv() Settings {
	return Settings{
		Port:            envOr("PORT", "8080"),
		ConfigFile:      envOr("CONFIG_FILE", "config/cities.yaml"),
		DataDir:         envOr("DATA_DIR", "data"),
		MapboxToken:     os.Getenv("MAPBOX_TOKEN"),
		DefaultZoom:     envFloat("DEFAULT_ZOOM", 12),
		FetchTimeout:    envDuration("FETCH_TIMEOUT", 12*time.Second),
		FetchMaxElapsed: envDuration("FETCH_MAX_ELAPSED", 12*time.Second),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
	}
}

// DefaultSpeedUnit applies to cities that do not name one.
const DefaultSpeedUnit = "mph"

// City is one deployment city. SpeedUnit is the unit of its speed field
// and of the speed values reported for it.
type City struct {
	ID         string  `yaml:"id" json:"id"`
	Name       string  `yaml:"name" json:"name"`
	Latitude   float64 `yaml:"latitude" json:"latitude"`
	Longitude  float64 `yaml:"longitude" json:"longitude"`
	SpeedUnit  string  `yaml:"speed_unit" json:"speed_unit"`
	SpeedField string  `yaml:"speed_field" json:"speed_field"`
	Data       Files   `yaml:"data" json:"data"`
}

// Files are the dataset locations of a city: URLs, paths relative to the
// data dir, or postgres:// sources.
type Files struct {
	Predictions string `yaml:"predictions" json:"predictions"`
	Crashes     string `yaml:"crashes" json:"crashes"`
	Weekly      string `yaml:"weekly,omitempty" json:"weekly,omitempty"`
}

func (c City) Center() types.Location {
	return types.Location{X: c.Longitude, Y: c.Latitude}
}

// File is the on-disk shape of the cities config.
type File struct {
	DefaultSpeedField string `yaml:"default_speed_field"`
	Cities            []City `yaml:"cities"`
}

// FieldMap is the per-city speed attribute mapping for the filter builder.
func (f File) FieldMap() filter.FieldMap {
	m := filter.FieldMap{Default: f.DefaultSpeedField, ByCity: map[string]string{}}
	for _, c := range f.Cities {
		if c.SpeedField != "" {
			m.ByCity[c.ID] = c.SpeedField
		}
	}
	return m
}

func (f File) IDs() []string {
	ids := make([]string, 0, len(f.Cities))
	for _, c := range f.Cities {
		ids = append(ids, c.ID)
	}
	return ids
}

func (f File) City(id string) (City, bool) {
	for _, c := range f.Cities {
		if c.ID == id {
			return c, true
		}
	}
	return City{}, false
}

func LoadCities(path string) (File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read cities config: %w", err)
	}
	return ParseCities(raw)
}

func ParseCities(raw []byte) (File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return File{}, fmt.Errorf("parse cities config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	if f.DefaultSpeedField == "" {
		f.DefaultSpeedField = filter.DefaultSpeedField
	}
	for i := range f.Cities {
		if f.Cities[i].SpeedUnit == "" {
			f.Cities[i].SpeedUnit = DefaultSpeedUnit
		}
	}
	return f, nil
}

func (f File) Validate() error {
	if len(f.Cities) == 0 {
		return fmt.Errorf("cities config: no cities")
	}
	seen := map[string]bool{}
	for i, c := range f.Cities {
		switch {
		case c.ID == "":
			return fmt.Errorf("cities config: city %d has no id", i)
		case seen[c.ID]:
			return fmt.Errorf("cities config: duplicate city %q", c.ID)
		case c.Data.Predictions == "" || c.Data.Crashes == "":
			return fmt.Errorf("cities config: city %q needs predictions and crashes data", c.ID)
		case c.SpeedUnit != "" && c.SpeedUnit != "mph" && c.SpeedUnit != "kph":
			return fmt.Errorf("cities config: city %q has speed unit %q, want mph or kph", c.ID, c.SpeedUnit)
		}
		seen[c.ID] = true
	}
	return nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
