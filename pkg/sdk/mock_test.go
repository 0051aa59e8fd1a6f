package surveysearch

import (
	"context"
	"sync"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/domain/search/outcome"
	"github.com/crookcounty/surveysearch/internal/domain/search/request"
	"github.com/crookcounty/surveysearch/internal/render"
	searchuc "github.com/crookcounty/surveysearch/internal/usecase/search"
)

// --- searchUseCase mock ---

type mockSearchUC struct {
	submitFn func(ctx context.Context, s *searchuc.Session, req request.Request) outcome.Outcome
}

func (m *mockSearchUC) Submit(ctx context.Context, s *searchuc.Session, req request.Request) outcome.Outcome {
	return m.submitFn(ctx, s, req)
}

// thenSearch runs after once, between a submission finishing and the
// client reading the session's layers.
type thenSearch struct {
	inner searchUseCase
	after func()
}

func (m *thenSearch) Submit(ctx context.Context, s *searchuc.Session, req request.Request) outcome.Outcome {
	out := m.inner.Submit(ctx, s, req)
	if fn := m.after; fn != nil {
		m.after = nil
		fn()
	}
	return out
}

// sequenceSource returns its sets in order, repeating the last one.
type sequenceSource struct {
	mu   sync.Mutex
	sets []feature.Set
}

func (m *sequenceSource) Query(context.Context, feature.Query) (feature.Set, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.sets[0]
	if len(m.sets) > 1 {
		m.sets = m.sets[1:]
	}
	return set, nil
}

type noRecords struct{}

func (noRecords) Records(...dataset.ID) []record.Record { return nil }

// --- cacheUseCase mock ---

type mockCacheUC struct {
	mu          sync.Mutex
	prefetched  []dataset.ID
	prefetchFn  func(id dataset.ID) error
	prefetchAll int
}

func (m *mockCacheUC) Prefetch(_ context.Context, id dataset.ID) ([]record.Record, error) {
	m.mu.Lock()
	m.prefetched = append(m.prefetched, id)
	m.mu.Unlock()
	if m.prefetchFn != nil {
		if err := m.prefetchFn(id); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (m *mockCacheUC) PrefetchAll(context.Context) error {
	m.prefetchAll++
	return nil
}

func (m *mockCacheUC) Restore(context.Context) (int, error) { return 0, nil }

// --- RenderSink mock ---

type mockSink struct {
	events []RenderEvent
	err    error
}

func (m *mockSink) Publish(_ context.Context, ev RenderEvent) error {
	m.events = append(m.events, ev)
	return m.err
}

// --- helpers ---

func testClient(searchSvc searchUseCase, cache cacheUseCase) *Client {
	return &Client{
		searchSvc: searchSvc,
		sessions: searchuc.NewRegistry(time.Hour, func(id string) searchuc.Renderer {
			return render.NewHandoff(id, nil, zap.NewNop())
		}, zap.NewNop()),
		cache: cache,
	}
}

func surveyFeature(cs string) feature.Feature {
	return feature.Feature{
		Geometry: geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
			{{-121, 44}, {-120.9, 44}, {-120.9, 44.1}, {-121, 44.1}, {-121, 44}},
		}),
		Attributes: record.Reconstruct(dataset.Survey, map[string]string{"cs": cs}),
	}
}
