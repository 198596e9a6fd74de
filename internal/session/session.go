// Package session is the one explicit context object of a running
// visualization: it loads every city's data, owns the synchronizer and
// serializes all selection changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"crash-insights-go/internal/aggregator"
	"crash-insights-go/internal/barchart"
	"crash-insights-go/internal/config"
	"crash-insights-go/internal/dataset"
	"crash-insights-go/internal/filter"
	"crash-insights-go/internal/logger"
	"crash-insights-go/internal/metrics"
	"crash-insights-go/internal/ranking"
	"crash-insights-go/internal/selection"
	"crash-insights-go/internal/types"
	"crash-insights-go/internal/view"
	"crash-insights-go/internal/viewsync"
)

// Loader is the data source the session loads from.
type Loader interface {
	FetchRecords(ctx context.Context, req dataset.Request) ([]types.Record, error)
	FetchSeries(ctx context.Context, req dataset.Request) ([]types.BarEntry, error)
}

type Status int

const (
	Loading Status = iota
	Ready
	Unavailable
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Unavailable:
		return "unavailable"
	default:
		return "loading"
	}
}

// UnavailableError is returned by every selection call once a load failed.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return "data unavailable: " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error { return e.Err }

type Options struct {
	Cities      config.File
	Loader      Loader
	Zoom        float64
	DatabaseURL string
	Log         *logger.Logger
}

type Session struct {
	ID string

	mu       sync.Mutex
	cities   config.File
	loader   Loader
	dbURL    string
	syncer   *viewsync.Synchronizer
	recorder *view.Recorder
	chart    *barchart.View
	log      *logger.Logger

	status     Status
	loadErr    error
	segments   []types.Record
	crashes    []types.Record
	crashLayer []types.RollupEntry
	summaries  map[string]dataset.Summary
}

func New(opts Options) *Session {
	if opts.Log == nil {
		opts.Log = logger.New()
	}
	id := uuid.New().String()
	log := opts.Log.Component("session").With("session_id", id)
	rec := view.NewRecorder()
	chart := barchart.New("Crashes per week", 0, 0)
	return &Session{
		ID:       id,
		cities:   opts.Cities,
		loader:   opts.Loader,
		dbURL:    opts.DatabaseURL,
		recorder: rec,
		chart:    chart,
		log:      log,
		syncer: viewsync.New(viewsync.Options{
			Map:     rec,
			Chart:   chart,
			Panel:   rec,
			Builder: filter.NewBuilder(opts.Cities.FieldMap()),
			Zoom:    opts.Zoom,
			Log:     log,
		}),
	}
}

type cityLoad struct {
	city    config.City
	preds   []types.Record
	crashes []types.Record
	weekly  []types.BarEntry
	errs    [3]error
}

// Load fetches predictions, crashes and the weekly series of every city
// concurrently. The views are synchronized only after every load succeeded;
// any failure leaves the session unavailable for good.
func (s *Session) Load(ctx context.Context) error {
	loads := make([]*cityLoad, len(s.cities.Cities))
	var wg sync.WaitGroup
	for i, c := range s.cities.Cities {
		c := c
		l := &cityLoad{city: c}
		loads[i] = l
		speedField := s.cities.FieldMap().For(c.ID)

		wg.Add(2)
		go func() {
			defer wg.Done()
			l.preds, l.errs[0] = s.loader.FetchRecords(ctx, dataset.Request{
				Kind: dataset.KindPredictions, City: c.ID, URL: s.resolve(c.Data.Predictions), SpeedField: speedField,
			})
		}()
		go func() {
			defer wg.Done()
			l.crashes, l.errs[1] = s.loader.FetchRecords(ctx, dataset.Request{
				Kind: dataset.KindCrashes, City: c.ID, URL: s.resolve(c.Data.Crashes),
			})
		}()
		if c.Data.Weekly != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				l.weekly, l.errs[2] = s.loader.FetchSeries(ctx, dataset.Request{
					Kind: dataset.KindWeekly, City: c.ID, URL: s.resolve(c.Data.Weekly),
				})
			}()
		}
	}
	wg.Wait()

	kinds := [3]dataset.Kind{dataset.KindPredictions, dataset.KindCrashes, dataset.KindWeekly}
	for _, l := range loads {
		for k, err := range l.errs {
			if err == nil {
				continue
			}
			metrics.FetchFailed(string(kinds[k]))
			s.mu.Lock()
			s.status = Unavailable
			s.loadErr = err
			s.mu.Unlock()
			s.log.WithError(err).WithField("city", l.city.ID).Error("data unavailable")
			return &UnavailableError{Err: err}
		}
	}

	d := s.assemble(loads)
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.syncer.MarkReady(d)
	s.status = Ready
	s.log.WithField("cities", len(loads)).WithField("segments", len(s.segments)).Info("session ready")
	return err
}

// resolve turns a bare "table:<name>" source into a postgres URL on the
// configured database.
func (s *Session) resolve(u string) string {
	if name, ok := dataset.TableSource(u); ok && s.dbURL != "" {
		if full, err := dataset.TableURL(s.dbURL, name); err == nil {
			return full
		}
	}
	return u
}

func (s *Session) assemble(loads []*cityLoad) viewsync.Dataset {
	d := viewsync.Dataset{Cities: map[string]viewsync.City{}}
	summaries := map[string]dataset.Summary{}
	fields := s.cities.FieldMap()
	var segments, crashes []types.Record
	var layer []types.RollupEntry
	for _, l := range loads {
		id := l.city.ID
		weekly := l.weekly
		if len(weekly) == 0 {
			weekly = aggregator.WeeklySeries(l.crashes, id)
		}
		d.Cities[id] = viewsync.City{ID: id, Center: l.city.Center(), Weekly: weekly}
		d.Bounds.Cities = append(d.Bounds.Cities, id)

		sum := dataset.Summarize(id, l.preds, l.crashes, fields, s.log)
		sum.SpeedUnit = l.city.SpeedUnit
		summaries[id] = sum
		if sum.MaxRisk > d.Bounds.MaxRisk {
			d.Bounds.MaxRisk = sum.MaxRisk
		}
		if sum.MaxSpeed > d.Bounds.MaxSpeed {
			d.Bounds.MaxSpeed = sum.MaxSpeed
		}

		segments = append(segments, l.preds...)
		crashes = append(crashes, l.crashes...)
		layer = append(layer, aggregator.Aggregate(l.crashes, aggregator.LocationWeekKey)...)
		metrics.RecordsLoaded(id, string(dataset.KindPredictions), len(l.preds))
		metrics.RecordsLoaded(id, string(dataset.KindCrashes), len(l.crashes))
	}
	if d.Bounds.MaxRisk < 1 {
		// risk is a probability
		d.Bounds.MaxRisk = 1
	}
	d.Segments = segments
	d.Weekly = aggregator.WeeklySeries(crashes, "")

	s.mu.Lock()
	s.segments = segments
	s.crashes = crashes
	s.crashLayer = layer
	s.summaries = summaries
	s.mu.Unlock()
	return d
}

// guard must be called with mu held.
func (s *Session) guard() error {
	if s.status == Unavailable {
		return &UnavailableError{Err: s.loadErr}
	}
	return nil
}

func (s *Session) SetWeek(week int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	return s.syncer.State().SetWeek(week)
}

func (s *Session) SetRiskThreshold(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	return s.syncer.State().SetRiskThreshold(v)
}

func (s *Session) SetSpeedLimitThreshold(v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	return s.syncer.State().SetSpeedLimitThreshold(v)
}

func (s *Session) SetCity(city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	if city != "" {
		if _, ok := s.cities.City(city); !ok {
			return &selection.InvalidSelectionError{Field: selection.FieldCity, Value: city, Reason: "unknown city"}
		}
	}
	return s.syncer.State().SetCity(city)
}

func (s *Session) SelectSegment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	return s.syncer.State().SetSelectedSegment(id)
}

// Back leaves the segment detail for the list.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.guard(); err != nil {
		return err
	}
	return s.syncer.Back()
}

// Snapshot is everything a client needs to redraw.
type Snapshot struct {
	SessionID string             `json:"session_id"`
	Status    string             `json:"status"`
	Error     string             `json:"error,omitempty"`
	Selection selection.Snapshot `json:"selection"`
	Map       view.MapState      `json:"map"`
	Panel     view.PanelState    `json:"panel"`
	Chart     barchart.State     `json:"chart"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID: s.ID,
		Status:    s.status.String(),
		Selection: s.syncer.State().Snapshot(),
		Map:       s.recorder.Map(),
		Panel:     s.recorder.Panel(s.syncer.Detail()),
		Chart:     s.chart.State(),
	}
	if s.loadErr != nil {
		snap.Error = s.loadErr.Error()
	}
	return snap
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Summaries() map[string]dataset.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]dataset.Summary, len(s.summaries))
	for k, v := range s.summaries {
		out[k] = v
	}
	return out
}

// TopRisk lists the n riskiest segments passing the current prediction filter.
func (s *Session) TopRisk(n int) []ranking.RiskCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	visible := s.visibleSegments()
	return ranking.TopRisk(visible, n, s.syncer.State().Snapshot().City)
}

func (s *Session) visibleSegments() []types.Record {
	p, ok := s.recorder.Filter(filter.LayerPredictions)
	if !ok {
		return s.segments
	}
	var out []types.Record
	for _, r := range s.segments {
		if p.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// CrashLayer is the crash rollup layer under the current crash filter.
func (s *Session) CrashLayer() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.recorder.Filter(filter.LayerCrashes)
	if !ok {
		return aggregator.FeatureCollection(s.crashLayer)
	}
	records := aggregator.Records(s.crashLayer)
	var kept []types.RollupEntry
	for i, r := range records {
		if p.Match(r) {
			kept = append(kept, s.crashLayer[i])
		}
	}
	return aggregator.FeatureCollection(kept)
}

// PredictionLayer is the segment layer under the current prediction filter,
// one point per segment center.
func (s *Session) PredictionLayer() *geojson.FeatureCollection {
	s.mu.Lock()
	defer s.mu.Unlock()
	fc := geojson.NewFeatureCollection()
	for _, r := range s.visibleSegments() {
		f := geojson.NewFeature(orb.Point{r.Location.X, r.Location.Y})
		f.ID = r.ID
		for k, v := range r.Properties {
			f.Properties[k] = v
		}
		f.Properties["prediction"] = r.Value
		f.Properties["city"] = r.City
		if r.DisplayName != "" {
			f.Properties["display_name"] = r.DisplayName
		}
		fc.Append(f)
	}
	return fc
}

// ErrUnknownSeries is returned for chart names other than weekly, dow and hourly.
var ErrUnknownSeries = errors.New("unknown series")

// Series returns a named histogram for the selected city. The weekly series
// is the live chart, including its highlight.
func (s *Session) Series(name string) (barchart.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	city := s.syncer.State().Snapshot().City
	var entries []types.BarEntry
	switch name {
	case "weekly":
		return s.chart.State(), nil
	case "dow":
		entries = aggregator.DayOfWeekSeries(s.crashes, city)
	case "hourly":
		entries = aggregator.HourlySeries(s.crashes, city)
	default:
		return barchart.State{}, fmt.Errorf("%w: %q", ErrUnknownSeries, name)
	}
	lo, hi := aggregator.YDomain(entries)
	return barchart.State{Entries: entries, YMin: lo, YMax: hi}, nil
}

// WriteChart renders the weekly chart as PNG.
func (s *Session) WriteChart(w io.Writer) error {
	return s.chart.WritePNG(w)
}
