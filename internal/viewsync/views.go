package viewsync

import (
	"crash-insights-go/internal/filter"
	"crash-insights-go/internal/types"
)

// Layer describes a map layer added once data is ready.
type Layer struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// MapView is the map collaborator.
type MapView interface {
	SetFilter(layer string, p filter.Predicate)
	FlyTo(center types.Location, zoom float64)
	AddLayer(l Layer)
	SetLayoutProperty(layer, prop string, value any)
}

// ChartView is the bar chart collaborator. Bars are addressed by entry id.
type ChartView interface {
	Render(entries []types.BarEntry)
	TransitionTo(entries []types.BarEntry)
	HighlightEntry(id string)
	ClearHighlight(id string)
}

// DetailPanel shows one record in place of the segment list.
type DetailPanel interface {
	Show(r types.Record)
	Hide()
}

// DetailState is the state of the side panel.
type DetailState int

const (
	Hidden DetailState = iota
	ShowingList
	ShowingDetail
)

func (d DetailState) String() string {
	switch d {
	case ShowingList:
		return "list"
	case ShowingDetail:
		return "detail"
	default:
		return "hidden"
	}
}
