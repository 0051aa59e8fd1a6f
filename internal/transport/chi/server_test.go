package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/domain"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	"github.com/crookcounty/surveysearch/internal/domain/search/outcome"
	"github.com/crookcounty/surveysearch/internal/domain/search/request"
	"github.com/crookcounty/surveysearch/internal/render"
	healthuc "github.com/crookcounty/surveysearch/internal/usecase/health"
	ucpred "github.com/crookcounty/surveysearch/internal/usecase/predicate"
	searchuc "github.com/crookcounty/surveysearch/internal/usecase/search"
)

// --- Mocks ---

type mockSubmitter struct {
	mu      sync.Mutex
	calls   []request.Request
	outcome outcome.Outcome
	draw    feature.Set
}

func (m *mockSubmitter) Submit(ctx context.Context, s *searchuc.Session, req request.Request) outcome.Outcome {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if len(m.draw) > 0 {
		s.Renderer().Render(ctx, m.draw, render.SurveyStyle())
	}
	return atSeq(m.outcome, s.View().Seq)
}

// atSeq reissues o under seq, the way the orchestrator numbers outcomes.
func atSeq(o outcome.Outcome, seq uint64) outcome.Outcome {
	switch o.Kind() {
	case outcome.Rendered:
		return outcome.NewRendered(seq, o.Count())
	case outcome.NoResults:
		return outcome.NewNoResults(seq)
	case outcome.Superseded:
		return outcome.NewSuperseded(seq)
	default:
		return outcome.NewFailed(seq, o.Reason())
	}
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

// thenSubmitter runs after once, between a submission finishing and the
// handler building its response.
type thenSubmitter struct {
	inner submitter
	after func()
}

func (m *thenSubmitter) Submit(ctx context.Context, s *searchuc.Session, req request.Request) outcome.Outcome {
	out := m.inner.Submit(ctx, s, req)
	if fn := m.after; fn != nil {
		m.after = nil
		fn()
	}
	return out
}

type mockCache struct {
	mu       sync.Mutex
	snaps    map[dataset.ID]record.Snapshot
	failing  map[dataset.ID]error
	prefetch []dataset.ID
}

func (m *mockCache) Prefetch(_ context.Context, id dataset.ID) ([]record.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefetch = append(m.prefetch, id)
	if err := m.failing[id]; err != nil {
		return nil, err
	}
	return m.snaps[id].Records(), nil
}

func (m *mockCache) Snapshot(id dataset.ID) record.Snapshot {
	if s, ok := m.snaps[id]; ok {
		return s
	}
	return record.Empty(id)
}

func (m *mockCache) IsReady(id dataset.ID) bool {
	_, ok := m.snaps[id]
	return ok
}

func (m *mockCache) Datasets() []dataset.ID { return dataset.All() }

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(context.Context) healthuc.Report { return m.report }

// --- Helpers ---

type fixture struct {
	router   chi.Router
	search   *mockSubmitter
	cache    *mockCache
	health   *mockHealth
	sessions *searchuc.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		search: &mockSubmitter{outcome: outcome.NewNoResults(1)},
		cache: &mockCache{snaps: map[dataset.ID]record.Snapshot{
			dataset.Survey: record.NewSnapshot(dataset.Survey, []record.Record{
				record.Reconstruct(dataset.Survey, map[string]string{"cs": "1"}),
			}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		}},
		health: &mockHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
	f.sessions = searchuc.NewRegistry(time.Hour, func(id string) searchuc.Renderer {
		return render.NewHandoff(id, nil, zap.NewNop())
	}, zap.NewNop())

	srv := NewServer(f.search, f.sessions, f.cache, f.health, 16, zap.NewNop())
	r := chi.NewRouter()
	srv.Mount(r)
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func square(x, y float64) *geom.Polygon {
	return geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{
		{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}},
	})
}

// --- Tests ---

func TestSearch_CreatesSession(t *testing.T) {
	f := newFixture(t)

	rr := f.do("POST", "/api/v1/search", `{"query":"  river rim ","mode":"addresses"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	resp := decode[searchResponse](t, rr)
	if _, err := uuid.Parse(resp.SessionID); err != nil {
		t.Errorf("session id %q is not a UUID", resp.SessionID)
	}
	if rr.Header().Get(SessionHeader) != resp.SessionID {
		t.Errorf("header %q != body %q", rr.Header().Get(SessionHeader), resp.SessionID)
	}
	if resp.Outcome != "no_results" {
		t.Errorf("outcome = %q", resp.Outcome)
	}
	if len(f.search.calls) != 1 {
		t.Fatalf("expected 1 submit, got %d", len(f.search.calls))
	}
	if got := f.search.calls[0]; got.Query() != "river rim" || got.Mode() != mode.Addresses {
		t.Errorf("unexpected request: %q %q", got.Query(), got.Mode())
	}
}

func TestSearch_ReusesSession(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	f.do("POST", "/api/v1/search", `{"query":"a"}`, SessionHeader, id)
	rr := f.do("POST", "/api/v1/search", `{"query":"b"}`, SessionHeader, id)

	if decode[searchResponse](t, rr).SessionID != id {
		t.Error("session id should be reused")
	}
	if f.sessions.Len() != 1 {
		t.Errorf("expected 1 session, got %d", f.sessions.Len())
	}
}

func TestSearch_RenderedIncludesViewport(t *testing.T) {
	f := newFixture(t)
	f.search.outcome = outcome.NewRendered(1, 1)
	f.search.draw = feature.Set{{
		Geometry:   square(-121, 44),
		Attributes: record.Reconstruct(dataset.Survey, map[string]string{"cs": "1"}),
	}}

	rr := f.do("POST", "/api/v1/search", `{"query":"1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[searchResponse](t, rr)
	if resp.Count != 1 {
		t.Errorf("count = %d", resp.Count)
	}
	if resp.Viewport == nil || resp.Viewport.MinX >= -121 || resp.Viewport.MaxX <= -120 {
		t.Errorf("expected padded viewport, got %+v", resp.Viewport)
	}
}

func TestSearch_FailedIsBadGateway(t *testing.T) {
	f := newFixture(t)
	f.search.outcome = outcome.NewFailed(1, "taxlot query failed: feature source unavailable")

	rr := f.do("POST", "/api/v1/search", `{"query":"x","mode":"maptaxlots"}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[searchResponse](t, rr)
	if resp.Outcome != "failed" || !strings.Contains(resp.Reason, "taxlot") {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header []string
		status int
	}{
		{"bad json", `{"query":`, nil, http.StatusBadRequest},
		{"unknown field", `{"q":"x"}`, nil, http.StatusBadRequest},
		{"too long", `{"query":"0123456789abcdefg"}`, nil, http.StatusBadRequest},
		{"bad mode", `{"query":"x","mode":"roads"}`, nil, http.StatusBadRequest},
		{"bad field", `{"query":"x","field":"cs; DROP"}`, nil, http.StatusBadRequest},
		{"bad session", `{"query":"x"}`, []string{SessionHeader, "not-a-uuid"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rr := f.do("POST", "/api/v1/search", tc.body, tc.header...)
			if rr.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tc.status, rr.Body)
			}
			if len(f.search.calls) != 0 {
				t.Error("invalid requests must not be submitted")
			}
		})
	}
}

func TestPrefetch_All(t *testing.T) {
	f := newFixture(t)

	rr := f.do("POST", "/api/v1/prefetch", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	resp := decode[prefetchResponse](t, rr)
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Dataset != "survey" || resp.Results[0].Records != 1 {
		t.Errorf("unexpected survey result: %+v", resp.Results[0])
	}
}

func TestPrefetch_PartialFailure(t *testing.T) {
	f := newFixture(t)
	f.cache.failing = map[dataset.ID]error{
		dataset.Taxlot: domain.SourceUnavailable("prefetch taxlot", fmt.Errorf("dial tcp: refused")),
	}

	rr := f.do("POST", "/api/v1/prefetch", `{"datasets":["survey","taxlot"]}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[prefetchResponse](t, rr)
	if resp.Results[0].Error != "" {
		t.Errorf("survey should succeed: %+v", resp.Results[0])
	}
	if resp.Results[1].Error != domain.ErrSourceUnavailable.Error() {
		t.Errorf("taxlot error = %q", resp.Results[1].Error)
	}
	if len(f.cache.prefetch) != 2 {
		t.Errorf("expected 2 prefetches, got %d", len(f.cache.prefetch))
	}
}

func TestPrefetch_UnknownDataset(t *testing.T) {
	f := newFixture(t)
	rr := f.do("POST", "/api/v1/prefetch", `{"datasets":["roads"]}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestListSnapshots(t *testing.T) {
	f := newFixture(t)

	rr := f.do("GET", "/api/v1/snapshots", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[snapshotListResponse](t, rr)
	if len(resp.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(resp.Items))
	}
	for _, item := range resp.Items {
		switch item.Dataset {
		case "survey":
			if !item.Ready || item.Records != 1 || item.FetchedAt == nil {
				t.Errorf("unexpected survey item: %+v", item)
			}
		default:
			if item.Ready || item.Records != 0 || item.FetchedAt != nil {
				t.Errorf("unexpected pending item: %+v", item)
			}
		}
	}
}

func TestGetSession(t *testing.T) {
	f := newFixture(t)
	f.search.outcome = outcome.NewRendered(1, 1)
	f.search.draw = feature.Set{{
		Geometry:   square(0, 0),
		Attributes: record.Reconstruct(dataset.Survey, map[string]string{"cs": "77"}),
	}}
	id := decode[searchResponse](t, f.do("POST", "/api/v1/search", `{"query":"77"}`)).SessionID

	rr := f.do("GET", "/api/v1/sessions/"+id+"?features=true", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[sessionResponse](t, rr)
	if resp.ID != id {
		t.Errorf("id = %q", resp.ID)
	}
	if resp.Layers["results"].Count != 1 || resp.Layers["highlight"].Count != 0 {
		t.Errorf("unexpected layers: %+v", resp.Layers)
	}
	if !strings.Contains(string(resp.Layers["results"].Features), "FeatureCollection") {
		t.Errorf("expected GeoJSON features, got %s", resp.Layers["results"].Features)
	}
	if resp.Viewport == nil {
		t.Error("expected viewport")
	}
}

func TestGetSession_NotFound(t *testing.T) {
	f := newFixture(t)
	rr := f.do("GET", "/api/v1/sessions/"+uuid.NewString(), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
	if decode[errorResponse](t, rr).Code != CodeNotFound {
		t.Error("expected not_found code")
	}
}

func TestClearGraphics(t *testing.T) {
	f := newFixture(t)
	f.search.outcome = outcome.NewRendered(1, 1)
	f.search.draw = feature.Set{{
		Geometry:   square(0, 0),
		Attributes: record.Reconstruct(dataset.Survey, map[string]string{"cs": "77"}),
	}}
	id := decode[searchResponse](t, f.do("POST", "/api/v1/search", `{"query":"77"}`)).SessionID

	rr := f.do("DELETE", "/api/v1/sessions/"+id+"/graphics", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	resp := decode[sessionResponse](t, f.do("GET", "/api/v1/sessions/"+id, ""))
	if resp.Layers["results"].Count != 0 {
		t.Errorf("graphics should be cleared, got %+v", resp.Layers)
	}
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		status healthuc.Status
		code   int
	}{
		{healthuc.Healthy, http.StatusOK},
		{healthuc.Degraded, http.StatusOK},
		{healthuc.Unhealthy, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(string(tc.status), func(t *testing.T) {
			f := newFixture(t)
			f.health.report = healthuc.Report{
				Status: tc.status,
				Checks: map[string]healthuc.CheckResult{"source:survey": healthuc.CheckOK},
			}
			rr := f.do("GET", "/health", "")
			if rr.Code != tc.code {
				t.Fatalf("status = %d, want %d", rr.Code, tc.code)
			}
			resp := decode[healthResponse](t, rr)
			if resp.Status != string(tc.status) || resp.Checks["source:survey"] != "ok" {
				t.Errorf("unexpected body: %+v", resp)
			}
		})
	}
}

func TestNotFoundRoute(t *testing.T) {
	f := newFixture(t)
	rr := f.do("GET", "/api/v1/collections", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSafeDomainMessage(t *testing.T) {
	if got := safeDomainMessage(fmt.Errorf("x: %w", domain.ErrNotReady)); got != domain.ErrNotReady.Error() {
		t.Errorf("got %q", got)
	}
	if got := safeDomainMessage(fmt.Errorf("secret dsn: boom")); got != "internal error" {
		t.Errorf("got %q", got)
	}
}

func TestSearch_ViewportOnlyForLatestSubmission(t *testing.T) {
	f := newFixture(t)
	src := &sequenceSource{sets: []feature.Set{
		{{Geometry: square(-121, 44), Attributes: record.Reconstruct(dataset.Survey, map[string]string{"cs": "1"})}},
		{{Geometry: square(-100, 30), Attributes: record.Reconstruct(dataset.Survey, map[string]string{"cs": "2"})}},
	}}
	orch := searchuc.New(searchuc.DefaultConfig(), map[dataset.ID]searchuc.Source{dataset.Survey: src}, noRecords{},
		ucpred.NewSynthesizer(dataset.DefaultClassification(), nil, zap.NewNop()), searchuc.Collectors{}, zap.NewNop())
	sub := &thenSubmitter{inner: orch}
	r := chi.NewRouter()
	NewServer(sub, f.sessions, f.cache, f.health, 16, zap.NewNop()).Mount(r)
	f.router = r

	sess, err := f.sessions.Acquire("")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	body := `{"query":"","mode":"surveys"}`
	var second searchResponse
	sub.after = func() {
		second = decode[searchResponse](t, f.do("POST", "/api/v1/search", body, SessionHeader, sess.ID()))
	}

	first := decode[searchResponse](t, f.do("POST", "/api/v1/search", body, SessionHeader, sess.ID()))
	if first.Outcome != string(outcome.Rendered) || first.Seq != 1 {
		t.Fatalf("first = %+v", first)
	}
	if first.Viewport != nil {
		t.Errorf("first response carries the newer viewport %+v", first.Viewport)
	}
	if second.Seq != 2 || second.Viewport == nil || second.Viewport.MinX >= -100 || second.Viewport.MinX < -101 {
		t.Errorf("second = %+v", second)
	}
}
