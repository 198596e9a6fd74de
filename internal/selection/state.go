// Package selection holds the user's current filter choices and notifies a
// single subscriber on every committed change.
package selection

import (
	"fmt"
	"math"

	"crash-insights-go/internal/logger"
)

// Field names one selection dimension.
type Field string

const (
	FieldWeek            Field = "week"
	FieldRiskThreshold   Field = "riskThreshold"
	FieldSpeedThreshold  Field = "speedLimitThreshold"
	FieldCity            Field = "city"
	FieldSelectedSegment Field = "selectedSegmentId"
)

// MaxWeek is the last week a selection may name; week 0 means every week.
const MaxWeek = 53

// Snapshot is an immutable copy of the selection. Zero Week, empty City and
// empty SelectedSegmentID mean "no selection" for that dimension.
type Snapshot struct {
	Week                int     `json:"week"`
	RiskThreshold       float64 `json:"risk_threshold"`
	SpeedLimitThreshold float64 `json:"speed_limit_threshold"`
	City                string  `json:"city,omitempty"`
	SelectedSegmentID   string  `json:"selected_segment_id,omitempty"`
}

// Defaults is the selection a session starts with.
func Defaults() Snapshot {
	return Snapshot{Week: 1}
}

// Bounds are the observed limits used to validate slider values.
// A zero MaxRisk means 1; a zero MaxSpeed means no upper bound yet.
type Bounds struct {
	MaxRisk  float64
	MaxSpeed float64
	Cities   []string
}

// Subscriber receives every committed change.
type Subscriber func(Field, Snapshot) error

// InvalidSelectionError reports a rejected setter call; the state is unchanged.
type InvalidSelectionError struct {
	Field  Field
	Value  interface{}
	Reason string
}

func (e *InvalidSelectionError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// State is single-owner and not safe for concurrent use.
type State struct {
	cur    Snapshot
	bounds Bounds
	sub    Subscriber
	log    *logger.Logger
}

func New(log *logger.Logger) *State {
	if log == nil {
		log = logger.New()
	}
	return &State{cur: Defaults(), log: log.Component("selection")}
}

// Subscribe installs the one subscriber, replacing any previous one.
func (s *State) Subscribe(fn Subscriber) {
	s.sub = fn
}

// SetBounds installs the limits observed in the loaded data. Values set
// before the limits were known are pulled back into range without
// notifying; the returned fields are the ones that changed.
func (s *State) SetBounds(b Bounds) []Field {
	s.bounds = b
	var changed []Field
	if hi := s.maxRisk(); s.cur.RiskThreshold > hi {
		s.cur.RiskThreshold = hi
		changed = append(changed, FieldRiskThreshold)
	}
	if hi := s.maxSpeed(); s.cur.SpeedLimitThreshold > hi {
		s.cur.SpeedLimitThreshold = hi
		changed = append(changed, FieldSpeedThreshold)
	}
	if s.cur.City != "" && len(b.Cities) > 0 && !contains(b.Cities, s.cur.City) {
		s.cur.City = ""
		changed = append(changed, FieldCity)
	}
	for _, f := range changed {
		s.log.WithField("field", f).Warn("selection clamped to loaded bounds")
	}
	return changed
}

// RestoreSelectedSegment puts back a segment id after the new one could not
// be shown. The subscriber is not notified.
func (s *State) RestoreSelectedSegment(id string) {
	s.cur.SelectedSegmentID = id
}

func (s *State) maxRisk() float64 {
	if s.bounds.MaxRisk <= 0 {
		return 1
	}
	return s.bounds.MaxRisk
}

func (s *State) maxSpeed() float64 {
	if s.bounds.MaxSpeed <= 0 {
		return math.Inf(1)
	}
	return s.bounds.MaxSpeed
}

// Snapshot returns the last committed selection.
func (s *State) Snapshot() Snapshot {
	return s.cur
}

func (s *State) SetWeek(week int) error {
	if week < 0 || week > MaxWeek {
		return s.reject(FieldWeek, week, fmt.Sprintf("must be within [0, %d]", MaxWeek))
	}
	next := s.cur
	next.Week = week
	return s.commit(FieldWeek, next)
}

func (s *State) SetRiskThreshold(v float64) error {
	if err := checkRange(v, s.maxRisk()); err != "" {
		return s.reject(FieldRiskThreshold, v, err)
	}
	next := s.cur
	next.RiskThreshold = v
	return s.commit(FieldRiskThreshold, next)
}

func (s *State) SetSpeedLimitThreshold(v float64) error {
	if err := checkRange(v, s.maxSpeed()); err != "" {
		return s.reject(FieldSpeedThreshold, v, err)
	}
	next := s.cur
	next.SpeedLimitThreshold = v
	return s.commit(FieldSpeedThreshold, next)
}

// SetCity selects a city; an empty id clears the selection.
func (s *State) SetCity(city string) error {
	if city != "" && len(s.bounds.Cities) > 0 && !contains(s.bounds.Cities, city) {
		return s.reject(FieldCity, city, "unknown city")
	}
	next := s.cur
	next.City = city
	return s.commit(FieldCity, next)
}

// SetSelectedSegment selects a segment; an empty id clears the selection.
func (s *State) SetSelectedSegment(id string) error {
	next := s.cur
	next.SelectedSegmentID = id
	return s.commit(FieldSelectedSegment, next)
}

func (s *State) commit(f Field, next Snapshot) error {
	s.cur = next
	s.log.WithField("field", f).Debug("selection changed")
	if s.sub == nil {
		return nil
	}
	return s.sub(f, next)
}

func (s *State) reject(f Field, v interface{}, reason string) error {
	err := &InvalidSelectionError{Field: f, Value: v, Reason: reason}
	s.log.WithError(err).Warn("selection rejected")
	return err
}

func checkRange(v, max float64) string {
	switch {
	case math.IsNaN(v):
		return "not a number"
	case v < 0:
		return "must not be negative"
	case v > max:
		return fmt.Sprintf("must not exceed %g", max)
	}
	return ""
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
