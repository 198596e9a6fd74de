// Package viewsync keeps the map, the bar chart and the detail panel in step
// with the selection state.
package viewsync

import (
	"fmt"
	"strconv"

	"crash-insights-go/internal/filter"
	"crash-insights-go/internal/logger"
	"crash-insights-go/internal/metrics"
	"crash-insights-go/internal/selection"
	"crash-insights-go/internal/types"
)

// DefaultZoom is the map zoom used when flying to a city.
const DefaultZoom = 12

// UnknownSegmentError is returned when a selected segment id is not indexed.
type UnknownSegmentError struct {
	ID string
}

func (e *UnknownSegmentError) Error() string {
	return fmt.Sprintf("unknown segment %q", e.ID)
}

// City is what the synchronizer needs to switch the views to a city.
type City struct {
	ID     string
	Center types.Location
	Weekly []types.BarEntry
}

// Dataset is the in-memory data handed over once every load has finished.
type Dataset struct {
	Segments []types.Record
	Weekly   []types.BarEntry
	Cities   map[string]City
	Bounds   selection.Bounds
}

type Options struct {
	Map     MapView
	Chart   ChartView
	Panel   DetailPanel
	Builder *filter.Builder
	Zoom    float64
	Log     *logger.Logger
}

// Synchronizer owns the selection state. It is not safe for concurrent use.
type Synchronizer struct {
	state   *selection.State
	maps    MapView
	chart   ChartView
	panel   DetailPanel
	builder *filter.Builder
	zoom    float64
	log     *logger.Logger

	ready       bool
	data        Dataset
	index       *Index
	bars        map[string]bool
	highlighted string
	detail      DetailState
	// shown is the segment id behind the detail panel, "" on the list.
	shown string
}

func New(opts Options) *Synchronizer {
	if opts.Log == nil {
		opts.Log = logger.New()
	}
	if opts.Builder == nil {
		opts.Builder = filter.NewBuilder(filter.FieldMap{})
	}
	if opts.Zoom == 0 {
		opts.Zoom = DefaultZoom
	}
	s := &Synchronizer{
		state:   selection.New(opts.Log),
		maps:    opts.Map,
		chart:   opts.Chart,
		panel:   opts.Panel,
		builder: opts.Builder,
		zoom:    opts.Zoom,
		log:     opts.Log.Component("viewsync"),
		index:   NewIndex(nil),
		detail:  Hidden,
	}
	s.state.Subscribe(s.OnSelectionChanged)
	return s
}

func (s *Synchronizer) State() *selection.State { return s.state }
func (s *Synchronizer) Ready() bool             { return s.ready }
func (s *Synchronizer) Detail() DetailState     { return s.detail }
func (s *Synchronizer) Highlighted() string     { return s.highlighted }

// MarkReady installs the loaded data and replays the buffered selection.
// Only the first call has any effect.
func (s *Synchronizer) MarkReady(d Dataset) error {
	if s.ready {
		return nil
	}
	s.data = d
	s.index = NewIndex(d.Segments)
	if clamped := s.state.SetBounds(d.Bounds); len(clamped) > 0 {
		s.log.WithField("fields", clamped).Info("buffered selection adjusted to data bounds")
	}
	s.ready = true
	s.detail = ShowingList
	s.log.WithField("segments", s.index.Len()).Info("data ready")

	for _, l := range []Layer{{Name: filter.LayerCrashes, Kind: "circle"}, {Name: filter.LayerPredictions, Kind: "line"}} {
		s.maps.AddLayer(l)
		s.maps.SetLayoutProperty(l.Name, "visibility", "visible")
		metrics.Dispatched("map", "add_layer")
	}

	snap := s.state.Snapshot()
	series := s.seriesFor(snap.City)
	s.chart.Render(series)
	s.setBars(series)
	metrics.Dispatched("chart", "render")

	s.applyFilters(snap)
	if c, ok := s.data.Cities[snap.City]; ok {
		s.maps.FlyTo(c.Center, s.zoom)
		metrics.Dispatched("map", "fly_to")
	}
	s.highlight(snap.Week)
	if snap.SelectedSegmentID != "" {
		return s.showSegment(snap)
	}
	return nil
}

// OnSelectionChanged is the selection subscriber. Total updates run before
// the segment lookup so a failed lookup leaves filters and chart current.
func (s *Synchronizer) OnSelectionChanged(field selection.Field, snap selection.Snapshot) error {
	metrics.SelectionChanged(string(field))
	if !s.ready {
		s.log.WithField("field", field).Debug("data not ready, selection buffered")
		return nil
	}

	s.applyFilters(snap)

	switch field {
	case selection.FieldWeek:
		s.highlight(snap.Week)
	case selection.FieldCity:
		s.switchCity(snap)
	case selection.FieldSelectedSegment:
		return s.showSegment(snap)
	}
	return nil
}

// Back returns the panel from a segment detail to the list.
func (s *Synchronizer) Back() error {
	if s.detail != ShowingDetail {
		return nil
	}
	return s.state.SetSelectedSegment("")
}

func (s *Synchronizer) applyFilters(snap selection.Snapshot) {
	p := s.builder.Build(snap)
	s.maps.SetFilter(filter.LayerCrashes, p.Crash)
	s.maps.SetFilter(filter.LayerPredictions, p.Prediction)
	metrics.Dispatched("map", "set_filter")
}

// highlight keeps at most one bar highlighted.
func (s *Synchronizer) highlight(week int) {
	if s.highlighted != "" {
		s.chart.ClearHighlight(s.highlighted)
		s.highlighted = ""
	}
	if week == 0 {
		return
	}
	id := strconv.Itoa(week)
	if !s.bars[id] {
		return
	}
	s.chart.HighlightEntry(id)
	s.highlighted = id
	metrics.Dispatched("chart", "highlight")
}

func (s *Synchronizer) switchCity(snap selection.Snapshot) {
	if c, ok := s.data.Cities[snap.City]; ok {
		s.maps.FlyTo(c.Center, s.zoom)
		metrics.Dispatched("map", "fly_to")
	}
	s.highlight(0)
	series := s.seriesFor(snap.City)
	s.chart.TransitionTo(series)
	s.setBars(series)
	metrics.Dispatched("chart", "transition")
	s.highlight(snap.Week)
}

func (s *Synchronizer) showSegment(snap selection.Snapshot) error {
	if snap.SelectedSegmentID == "" {
		if s.detail == ShowingDetail {
			s.panel.Hide()
			s.detail = ShowingList
			s.shown = ""
			metrics.Dispatched("panel", "hide")
		}
		return nil
	}
	rec, ok := s.index.Lookup(snap.City, snap.SelectedSegmentID)
	if !ok {
		err := &UnknownSegmentError{ID: snap.SelectedSegmentID}
		metrics.UnknownSegment()
		s.state.RestoreSelectedSegment(s.shown)
		s.log.WithError(err).Warn("detail panel left unchanged")
		return err
	}
	s.panel.Show(rec)
	s.detail = ShowingDetail
	s.shown = snap.SelectedSegmentID
	metrics.Dispatched("panel", "show")
	return nil
}

func (s *Synchronizer) seriesFor(city string) []types.BarEntry {
	if c, ok := s.data.Cities[city]; ok && len(c.Weekly) > 0 {
		return c.Weekly
	}
	return s.data.Weekly
}

func (s *Synchronizer) setBars(series []types.BarEntry) {
	s.bars = make(map[string]bool, len(series))
	for _, e := range series {
		s.bars[e.ID] = true
	}
}
