package dataset

import (
	"math"
	"sort"

	"crash-insights-go/internal/filter"
	"crash-insights-go/internal/logger"
	"crash-insights-go/internal/types"
)

type Summary struct {
	City        string         `json:"city"`
	Segments    int            `json:"segments"`
	Crashes     int            `json:"crashes"`
	MaxRisk     float64        `json:"max_risk"`
	MaxSpeed    float64        `json:"max_speed"`
	SpeedUnit   string         `json:"speed_unit,omitempty"`
	ByMode      map[string]int `json:"by_mode"`
	BusiestWeek int            `json:"busiest_week,omitempty"`
	Weeks       []int          `json:"weeks"`
}

// Summarize computes the ranges the selection controls are bounded by,
// plus a few counts for logs and the summary endpoint.
func Summarize(city string, preds, crashes []types.Record, fields filter.FieldMap, log *logger.Logger) Summary {
	s := Summary{City: city, Segments: len(preds), Crashes: len(crashes), ByMode: map[string]int{}}
	speedField := fields.For(city)
	for _, p := range preds {
		s.MaxRisk = math.Max(s.MaxRisk, p.Value)
		if v, ok := p.Float(speedField); ok {
			s.MaxSpeed = math.Max(s.MaxSpeed, v)
		}
	}

	byWeek := map[int]int{}
	for _, c := range crashes {
		mode := c.Mode
		if mode == "" {
			mode = "unknown"
		}
		s.ByMode[mode]++
		if c.Week > 0 {
			byWeek[c.Week]++
		}
	}
	for w, n := range byWeek {
		s.Weeks = append(s.Weeks, w)
		if n > byWeek[s.BusiestWeek] || (n == byWeek[s.BusiestWeek] && w < s.BusiestWeek) {
			s.BusiestWeek = w
		}
	}
	sort.Ints(s.Weeks)

	if log != nil {
		log.WithFields(map[string]interface{}{
			"city":         city,
			"segments":     s.Segments,
			"crashes":      s.Crashes,
			"max_risk":     s.MaxRisk,
			"max_speed":    s.MaxSpeed,
			"busiest_week": s.BusiestWeek,
		}).Info("dataset summarization complete")
	}
	return s
}
