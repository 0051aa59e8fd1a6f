package render

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/record"
)

type mockSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockSink) Publish(_ context.Context, _ string, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func square(x, y, size float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}},
	})
}

func survey(cs string, g geom.T) feature.Feature {
	return feature.Feature{
		Geometry: g,
		Attributes: record.Reconstruct(dataset.Survey, map[string]string{
			"cs": cs, "image": "https://example.org/" + cs + ".pdf", "prepared_for": "SMITH",
		}),
	}
}

func TestPopupTemplate_Render(t *testing.T) {
	r := record.Reconstruct(dataset.Survey, map[string]string{"cs": "1234", "image": "u.pdf", "rec_y": "1999"})
	title, content := SurveyStyle().Popup.Render(r)
	if title != "Survey 1234" {
		t.Errorf("title = %q", title)
	}
	if !strings.Contains(content, "<a href=u.pdf>View</a>") || !strings.Contains(content, "<strong>Year:</strong> 1999") {
		t.Errorf("content = %q", content)
	}
	if strings.Contains(content, "{prepared_for}") {
		t.Error("missing field placeholder should render empty")
	}
}

func TestHandoff_RenderAndViewport(t *testing.T) {
	sink := &mockSink{}
	h := NewHandoff("s1", sink, zap.NewNop())

	h.Render(context.Background(), feature.Set{
		survey("1", square(0, 0, 1)),
		survey("2", square(9, 19, 1)),
	}, SurveyStyle())
	if len(sink.events) != 0 {
		t.Fatal("render must not publish before flush")
	}
	h.Flush(context.Background())

	if got := len(h.Graphics(Results)); got != 2 {
		t.Fatalf("results graphics = %d, want 2", got)
	}
	if len(h.Graphics(Highlight)) != 0 {
		t.Error("highlight layer should be empty")
	}
	vp, ok := h.Viewport()
	if !ok {
		t.Fatal("expected a viewport")
	}
	// Union extent (0,0)-(10,20) padded by 10%.
	if !almost(vp.MinX, -0.5) || !almost(vp.MaxX, 10.5) || !almost(vp.MinY, -1) || !almost(vp.MaxY, 21) {
		t.Errorf("viewport = %+v", vp)
	}
	if vp.DiagonalMeters <= 0 {
		t.Error("diagonal should be positive")
	}

	if len(sink.events) != 1 || sink.events[0].Kind != EventRender || sink.events[0].Count != 2 {
		t.Fatalf("events = %+v", sink.events)
	}
	var fc map[string]any
	if err := json.Unmarshal(sink.events[0].Features, &fc); err != nil {
		t.Fatalf("features are not JSON: %v", err)
	}
	if fc["type"] != "FeatureCollection" {
		t.Errorf("type = %v", fc["type"])
	}
}

func TestHandoff_ProjectedViewportHasNoDiagonal(t *testing.T) {
	h := NewHandoff("s1", nil, zap.NewNop())
	h.Render(context.Background(), feature.Set{survey("1", square(4800000, 900000, 500))}, SurveyStyle())

	vp, ok := h.Viewport()
	if !ok {
		t.Fatal("expected a viewport")
	}
	if vp.DiagonalMeters != 0 {
		t.Errorf("diagonal = %v, want 0 for projected extent", vp.DiagonalMeters)
	}
}

func TestHandoff_RenderEmptyIsNoop(t *testing.T) {
	sink := &mockSink{}
	h := NewHandoff("s1", sink, zap.NewNop())
	h.Render(context.Background(), nil, SurveyStyle())

	if h.Count() != 0 || len(sink.events) != 0 {
		t.Error("empty render should have no effect")
	}
	if _, ok := h.Viewport(); ok {
		t.Error("no viewport expected")
	}
}

func TestHandoff_ClearIdempotent(t *testing.T) {
	h := NewHandoff("s1", nil, zap.NewNop())
	ctx := context.Background()
	h.Render(ctx, feature.Set{survey("1", square(0, 0, 1))}, SurveyStyle())
	h.Render(ctx, feature.Set{survey("2", square(0, 0, 1))}, TaxlotStyle())

	h.Clear(ctx)
	first := h.Count()
	h.Clear(ctx)
	if first != 0 || h.Count() != 0 {
		t.Errorf("count after clears = %d, %d", first, h.Count())
	}
}

func TestHandoff_SinkErrorIgnored(t *testing.T) {
	sink := &mockSink{err: errors.New("nats down")}
	h := NewHandoff("s1", sink, zap.NewNop())
	h.Clear(context.Background())
	h.Render(context.Background(), feature.Set{survey("1", square(0, 0, 1))}, SurveyStyle())
	if h.Count() != 1 {
		t.Error("sink failures must not affect local graphics")
	}
}

// blockingSink holds every publish until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	kinds   []EventKind
}

func (b *blockingSink) Publish(_ context.Context, _ string, ev Event) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	b.mu.Lock()
	b.kinds = append(b.kinds, ev.Kind)
	b.mu.Unlock()
	return nil
}

func TestHandoff_FlushDoesNotBlockLayers(t *testing.T) {
	sink := &blockingSink{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h := NewHandoff("s1", sink, zap.NewNop())
	ctx := context.Background()

	h.Render(ctx, feature.Set{survey("1", square(0, 0, 1))}, SurveyStyle())
	h.Render(ctx, feature.Set{survey("2", square(0, 0, 1))}, TaxlotStyle())

	flushed := make(chan struct{})
	go func() {
		h.Flush(ctx)
		close(flushed)
	}()
	<-sink.entered

	// The sink is stuck; layer reads and new renders must still go through.
	done := make(chan struct{})
	go func() {
		h.Render(ctx, feature.Set{survey("3", square(0, 0, 1))}, SurveyStyle())
		_ = h.Graphics(Results)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("render blocked behind a slow sink")
	}

	close(sink.release)
	<-flushed
	h.Flush(ctx)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.kinds) != 3 {
		t.Fatalf("published %d events, want 3", len(sink.kinds))
	}
	if got := h.Count(); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
}

func TestHandoff_ClearFlushesInOrder(t *testing.T) {
	sink := &mockSink{}
	h := NewHandoff("s1", sink, zap.NewNop())
	ctx := context.Background()

	h.Render(ctx, feature.Set{survey("1", square(0, 0, 1))}, SurveyStyle())
	h.Clear(ctx)

	if len(sink.events) != 2 || sink.events[0].Kind != EventRender || sink.events[1].Kind != EventClear {
		t.Fatalf("events = %+v", sink.events)
	}
}

func TestFeatureCollection_CarriesPopup(t *testing.T) {
	g := NewGraphic(survey("77", square(0, 0, 1)), SurveyStyle())
	data, err := FeatureCollection([]Graphic{g})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(data), `"popup_title":"Survey 77"`) {
		t.Errorf("popup title missing: %s", data)
	}
}
