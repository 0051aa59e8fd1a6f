// Package render is the display boundary: it turns feature sets into styled
// graphics on named layers and requests a viewport covering them.
package render

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/geo"
)

// ViewportPadding scales the union extent so features are not drawn on the
// viewport edge.
const ViewportPadding = 1.1

// Viewport is the requested map extent.
type Viewport struct {
	MinX           float64 `json:"xmin"`
	MinY           float64 `json:"ymin"`
	MaxX           float64 `json:"xmax"`
	MaxY           float64 `json:"ymax"`
	DiagonalMeters float64 `json:"diagonal_m"`
}

// newViewport measures the diagonal only for geographic extents; projected
// coordinates leave DiagonalMeters zero.
func newViewport(b *geom.Bounds) Viewport {
	v := Viewport{MinX: b.Min(0), MinY: b.Min(1), MaxX: b.Max(0), MaxY: b.Max(1)}
	if geo.ValidateBounds(b) {
		v.DiagonalMeters = geo.DiagonalMeters(b)
	}
	return v
}

// EventKind is the type of a render event.
type EventKind string

// Render event kinds.
const (
	EventClear  EventKind = "clear"
	EventRender EventKind = "render"
)

// Event is published to the sink on every clear and render.
type Event struct {
	Kind     EventKind       `json:"kind"`
	Session  string          `json:"session"`
	Layer    LayerID         `json:"layer,omitempty"`
	Count    int             `json:"count,omitempty"`
	Viewport *Viewport       `json:"viewport,omitempty"`
	Features json.RawMessage `json:"features,omitempty"`
	At       time.Time       `json:"at"`
}

// Sink receives render events, e.g. for live map viewers.
type Sink interface {
	Publish(ctx context.Context, session string, ev Event) error
}

// Handoff owns the graphics layers of one session. Render only queues its
// sink event; Flush publishes queued events in order.
type Handoff struct {
	mu       sync.Mutex
	session  string
	layers   map[LayerID]*Layer
	viewport *Viewport
	queued   []Event
	sink     Sink
	logger   *zap.Logger

	// pubMu serializes Flush so events leave in queue order.
	pubMu sync.Mutex
}

// NewHandoff creates a handoff with empty layers. sink may be nil.
func NewHandoff(session string, sink Sink, logger *zap.Logger) *Handoff {
	layers := make(map[LayerID]*Layer, len(Layers()))
	for _, id := range Layers() {
		layers[id] = NewLayer(id)
	}
	return &Handoff{session: session, layers: layers, sink: sink, logger: logger}
}

// Clear removes all search-result graphics and flushes the clear event.
// Calling it with nothing drawn is a no-op apart from the event.
func (h *Handoff) Clear(ctx context.Context) {
	h.mu.Lock()
	for _, l := range h.layers {
		l.Clear()
	}
	h.enqueue(Event{Kind: EventClear, Session: h.session, At: time.Now()})
	h.mu.Unlock()

	h.Flush(ctx)
}

// Render draws set with style and moves the viewport to the padded union
// extent of its geometries. An empty set is a no-op. The render event is
// queued for the next Flush.
func (h *Handoff) Render(_ context.Context, set feature.Set, style Style) {
	if len(set) == 0 {
		return
	}
	graphics := make([]Graphic, len(set))
	geoms := make([]geom.T, len(set))
	for i, f := range set {
		graphics[i] = NewGraphic(f, style)
		geoms[i] = f.Geometry
	}

	var vp *Viewport
	if b, ok := geo.Extent(geoms...); ok {
		v := newViewport(geo.Expand(b, ViewportPadding))
		vp = &v
	}

	ev := Event{Kind: EventRender, Session: h.session, Layer: style.Layer, Count: len(graphics), Viewport: vp, At: time.Now()}
	if h.sink != nil {
		data, err := FeatureCollection(graphics)
		if err != nil {
			h.logger.Warn("Failed to encode render event", zap.String("session", h.session), zap.Error(err))
		} else {
			ev.Features = data
		}
	}

	h.mu.Lock()
	layer, ok := h.layers[style.Layer]
	if !ok {
		layer = NewLayer(style.Layer)
		h.layers[style.Layer] = layer
	}
	layer.Add(graphics...)
	if vp != nil {
		h.viewport = vp
	}
	h.enqueue(ev)
	h.mu.Unlock()
}

// Flush publishes queued events to the sink. The layer lock is not held
// while the sink runs, so a slow sink never blocks Render or layer reads.
func (h *Handoff) Flush(ctx context.Context) {
	if h.sink == nil {
		return
	}
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.Lock()
	events := h.queued
	h.queued = nil
	h.mu.Unlock()

	for _, ev := range events {
		h.publish(ctx, ev)
	}
}

// enqueue must be called with h.mu held.
func (h *Handoff) enqueue(ev Event) {
	if h.sink != nil {
		h.queued = append(h.queued, ev)
	}
}

// Graphics returns the graphics currently on layer id.
func (h *Handoff) Graphics(id LayerID) []Graphic {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.layers[id]; ok {
		return l.Graphics()
	}
	return nil
}

// Count returns the number of graphics across all layers.
func (h *Handoff) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, l := range h.layers {
		n += l.Len()
	}
	return n
}

// Viewport returns the last requested viewport.
func (h *Handoff) Viewport() (Viewport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.viewport == nil {
		return Viewport{}, false
	}
	return *h.viewport, true
}

func (h *Handoff) publish(ctx context.Context, ev Event) {
	if h.sink == nil {
		return
	}
	if err := h.sink.Publish(ctx, h.session, ev); err != nil {
		h.logger.Warn("Failed to publish render event",
			zap.String("session", h.session),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
	}
}
