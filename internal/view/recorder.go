// Package view records map and panel instructions so that a browser client
// can poll and replay them.
package view

import (
	"sync"

	"crash-insights-go/internal/filter"
	"crash-insights-go/internal/types"
	"crash-insights-go/internal/viewsync"
)

// MapState is the last instruction per map concern.
type MapState struct {
	Layers  []viewsync.Layer          `json:"layers"`
	Filters map[string][]any          `json:"filters"`
	Layout  map[string]map[string]any `json:"layout"`
	Center  *types.Location           `json:"center,omitempty"`
	Zoom    float64                   `json:"zoom,omitempty"`
}

// PanelState is what the side panel shows.
type PanelState struct {
	Mode    string        `json:"mode"`
	Segment *types.Record `json:"segment,omitempty"`
}

// Recorder implements viewsync.MapView and viewsync.DetailPanel. Each method
// replaces the previous instruction of its kind.
type Recorder struct {
	mu      sync.RWMutex
	layers  []viewsync.Layer
	filters map[string]filter.Predicate
	layout  map[string]map[string]any
	center  *types.Location
	zoom    float64
	segment *types.Record
}

func NewRecorder() *Recorder {
	return &Recorder{
		filters: map[string]filter.Predicate{},
		layout:  map[string]map[string]any{},
	}
}

func (r *Recorder) SetFilter(layer string, p filter.Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters[layer] = p
}

func (r *Recorder) FlyTo(center types.Location, zoom float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.center = &center
	r.zoom = zoom
}

func (r *Recorder) AddLayer(l viewsync.Layer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.layers {
		if existing.Name == l.Name {
			return
		}
	}
	r.layers = append(r.layers, l)
}

func (r *Recorder) SetLayoutProperty(layer, prop string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.layout[layer] == nil {
		r.layout[layer] = map[string]any{}
	}
	r.layout[layer][prop] = value
}

func (r *Recorder) Show(rec types.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segment = &rec
}

func (r *Recorder) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segment = nil
}

// Filter returns the active predicate for a layer.
func (r *Recorder) Filter(layer string) (filter.Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.filters[layer]
	return p, ok
}

func (r *Recorder) Map() MapState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := MapState{
		Layers:  append([]viewsync.Layer(nil), r.layers...),
		Filters: make(map[string][]any, len(r.filters)),
		Layout:  make(map[string]map[string]any, len(r.layout)),
		Center:  r.center,
		Zoom:    r.zoom,
	}
	for name, p := range r.filters {
		st.Filters[name] = p.Expression()
	}
	for name, props := range r.layout {
		cp := make(map[string]any, len(props))
		for k, v := range props {
			cp[k] = v
		}
		st.Layout[name] = cp
	}
	return st
}

// Panel reports the panel content; mode comes from the synchronizer.
func (r *Recorder) Panel(mode viewsync.DetailState) PanelState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return PanelState{Mode: mode.String(), Segment: r.segment}
}
