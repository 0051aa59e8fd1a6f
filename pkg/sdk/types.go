package surveysearch

import (
	"context"
	"time"
)

// Dataset names a Feature Source layer.
type Dataset string

// Dataset constants.
const (
	Survey  Dataset = "survey"
	Address Dataset = "address"
	Taxlot  Dataset = "taxlot"
)

// Mode selects the query chain of a search.
type Mode string

// Search mode constants.
const (
	ModeSurveys    Mode = "surveys"
	ModeAddresses  Mode = "addresses"
	ModeMaptaxlots Mode = "maptaxlots"
)

// Outcome is the terminal result kind of a search.
type Outcome string

// Outcome constants.
const (
	OutcomeRendered   Outcome = "rendered"
	OutcomeNoResults  Outcome = "no_results"
	OutcomeFailed     Outcome = "failed"
	OutcomeSuperseded Outcome = "superseded"
)

// SearchRequest is one search submission. An empty SessionID starts a new
// session; an empty Mode searches surveys.
type SearchRequest struct {
	SessionID string
	Query     string
	Mode      Mode
	Field     string // restrict fuzzy matching to one field
}

// Viewport is the padded extent of the last drawn features.
type Viewport struct {
	MinX, MinY, MaxX, MaxY float64
	DiagonalMeters         float64
}

// Layer holds the graphics of one display layer as a GeoJSON FeatureCollection.
type Layer struct {
	Count    int
	Features []byte
}

// Result is the outcome of a search with the session's graphics.
type Result struct {
	SessionID string
	Seq       uint64
	Outcome   Outcome
	Count     int
	Reason    string
	Results   Layer
	Highlight Layer
	Viewport  *Viewport
}

// SessionInfo describes a session.
type SessionInfo struct {
	ID          string
	Seq         uint64
	Mode        Mode
	Query       string
	State       string
	LastOutcome Outcome
	LastUsed    time.Time
}

// RenderEvent is emitted on every clear and draw of a session.
type RenderEvent struct {
	Kind     string // "clear" or "render"
	Session  string
	Layer    string
	Count    int
	Features []byte
	At       time.Time
}

// RenderSink receives render events, e.g. to push them to a browser.
type RenderSink interface {
	Publish(ctx context.Context, ev RenderEvent) error
}
