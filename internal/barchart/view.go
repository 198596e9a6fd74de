// Package barchart renders crash histograms with go-chart and tracks which
// bar is highlighted.
package barchart

import (
	"errors"
	"io"
	"sync"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"crash-insights-go/internal/aggregator"
	"crash-insights-go/internal/types"
)

// Colors used by the weekly chart.
var (
	DefaultFill   = drawing.ColorFromHex("b2b2b2")
	HighlightFill = drawing.ColorFromHex("d500f9")
)

// ErrNoBars is returned when there is nothing to draw.
var ErrNoBars = errors.New("barchart: no bars to render")

// View is a ChartView that keeps the current bars in memory and renders
// them to PNG on request. It is safe for concurrent readers.
type View struct {
	mu          sync.RWMutex
	title       string
	width       int
	height      int
	entries     []types.BarEntry
	highlighted string
	version     int
}

func New(title string, width, height int) *View {
	if width <= 0 {
		width = 800
	}
	if height <= 0 {
		height = 150
	}
	return &View{title: title, width: width, height: height}
}

func (v *View) Render(entries []types.BarEntry) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = append([]types.BarEntry(nil), entries...)
	v.highlighted = ""
	v.version++
}

// TransitionTo swaps the data under the existing bars. Bar styles reset.
func (v *View) TransitionTo(entries []types.BarEntry) {
	v.Render(entries)
}

func (v *View) HighlightEntry(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.highlighted = id
	v.version++
}

func (v *View) ClearHighlight(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.highlighted == id {
		v.highlighted = ""
		v.version++
	}
}

// State is what a browser needs to draw the same chart itself.
type State struct {
	Entries     []types.BarEntry `json:"entries"`
	Highlighted string           `json:"highlighted,omitempty"`
	YMin        float64          `json:"y_min"`
	YMax        float64          `json:"y_max"`
	Version     int              `json:"version"`
}

func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	min, max := aggregator.YDomain(v.entries)
	return State{
		Entries:     append([]types.BarEntry(nil), v.entries...),
		Highlighted: v.highlighted,
		YMin:        min,
		YMax:        max,
		Version:     v.version,
	}
}

// WritePNG draws the bars, the highlighted one in HighlightFill.
func (v *View) WritePNG(w io.Writer) error {
	st := v.State()
	return WritePNG(w, v.title, v.width, v.height, st.Entries, st.Highlighted)
}

// WritePNG renders entries as a bar chart.
func WritePNG(w io.Writer, title string, width, height int, entries []types.BarEntry, highlighted string) error {
	if len(entries) == 0 {
		return ErrNoBars
	}
	_, max := aggregator.YDomain(entries)
	bars := make([]chart.Value, 0, len(entries))
	for _, e := range entries {
		fill := DefaultFill
		if e.ID == highlighted {
			fill = HighlightFill
		}
		bars = append(bars, chart.Value{
			Label: e.Label,
			Value: e.Value,
			Style: chart.Style{FillColor: fill, StrokeColor: fill, StrokeWidth: 0},
		})
	}
	barWidth := width/len(entries) - 2
	if barWidth < 1 {
		barWidth = 1
	}
	bc := chart.BarChart{
		Title:      title,
		Width:      width,
		Height:     height,
		BarWidth:   barWidth,
		BarSpacing: 1,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 10, Right: 10, Bottom: 10}},
		YAxis:      chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: max}},
		Bars:       bars,
	}
	return bc.Render(chart.PNG, w)
}
