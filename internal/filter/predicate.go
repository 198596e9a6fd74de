// Package filter turns a selection snapshot into the inclusion predicates
// applied to the crash and prediction map layers.
package filter

import (
	"sort"

	"crash-insights-go/internal/selection"
	"crash-insights-go/internal/types"
)

// Layer names understood by the map.
const (
	LayerCrashes     = "crashes"
	LayerPredictions = "predictions"
)

// DefaultSpeedField is read when a city has no configured speed attribute.
const DefaultSpeedField = "osm_speed"

// Predicate decides whether a record is shown. Expression renders the same
// test as a map-style filter expression for browser-side layers.
type Predicate interface {
	Match(types.Record) bool
	Expression() []any
}

// Predicates is the pair dispatched to the map on every change.
type Predicates struct {
	Crash      Predicate
	Prediction Predicate
}

// FieldMap names the property holding the speed limit, per city.
type FieldMap struct {
	Default string
	ByCity  map[string]string
}

// For returns the speed attribute of a city.
func (m FieldMap) For(city string) string {
	if f, ok := m.ByCity[city]; ok && f != "" {
		return f
	}
	if m.Default != "" {
		return m.Default
	}
	return DefaultSpeedField
}

type Builder struct {
	fields FieldMap
}

func NewBuilder(fields FieldMap) *Builder {
	byCity := make(map[string]string, len(fields.ByCity))
	for k, v := range fields.ByCity {
		byCity[k] = v
	}
	return &Builder{fields: FieldMap{Default: fields.Default, ByCity: byCity}}
}

// Build is a pure function of the snapshot.
func (b *Builder) Build(s selection.Snapshot) Predicates {
	return Predicates{
		Crash: CrashPredicate{Week: s.Week, City: s.City},
		Prediction: PredictionPredicate{
			MinRisk:  s.RiskThreshold,
			MinSpeed: s.SpeedLimitThreshold,
			City:     s.City,
			fields:   b.fields,
		},
	}
}

// CrashPredicate matches crashes of one week (0 = any) and city ("" = any).
type CrashPredicate struct {
	Week int
	City string
}

func (p CrashPredicate) Match(r types.Record) bool {
	return (p.Week == 0 || r.Week == p.Week) && (p.City == "" || r.City == p.City)
}

func (p CrashPredicate) Expression() []any {
	expr := []any{"all"}
	if p.Week != 0 {
		expr = append(expr, []any{"==", "week", p.Week})
	}
	if p.City != "" {
		expr = append(expr, []any{"==", "city", p.City})
	}
	return expr
}

// PredictionPredicate matches segments at or above both thresholds. The speed
// attribute is looked up under the record's city field name; a missing value
// reads as 0.
type PredictionPredicate struct {
	MinRisk  float64
	MinSpeed float64
	City     string
	fields   FieldMap
}

func (p PredictionPredicate) Match(r types.Record) bool {
	if p.City != "" && r.City != p.City {
		return false
	}
	if r.Value < p.MinRisk {
		return false
	}
	speed, _ := r.Float(p.fields.For(r.City))
	return speed >= p.MinSpeed
}

func (p PredictionPredicate) Expression() []any {
	expr := []any{"all", []any{">=", "prediction", p.MinRisk}}
	if p.City != "" {
		expr = append(expr,
			[]any{">=", p.fields.For(p.City), p.MinSpeed},
			[]any{"==", "city", p.City})
		return expr
	}
	if len(p.fields.ByCity) == 0 {
		return append(expr, []any{">=", p.fields.For(""), p.MinSpeed})
	}
	cities := make([]string, 0, len(p.fields.ByCity))
	for c := range p.fields.ByCity {
		cities = append(cities, c)
	}
	sort.Strings(cities)
	speed := []any{"any"}
	for _, c := range cities {
		speed = append(speed, []any{"all",
			[]any{"==", "city", c},
			[]any{">=", p.fields.For(c), p.MinSpeed}})
	}
	speed = append(speed, []any{"all",
		append([]any{"!in", "city"}, toAny(cities)...),
		[]any{">=", p.fields.For(""), p.MinSpeed}})
	return append(expr, speed)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
