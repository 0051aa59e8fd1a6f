package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	"github.com/crookcounty/surveysearch/internal/domain/search/outcome"
	"github.com/crookcounty/surveysearch/internal/domain/search/request"
	"github.com/crookcounty/surveysearch/internal/render"
	healthuc "github.com/crookcounty/surveysearch/internal/usecase/health"
	searchuc "github.com/crookcounty/surveysearch/internal/usecase/search"
)

const maxBodyBytes = 64 << 10

// graphicsView is implemented by renderers that keep their graphics.
type graphicsView interface {
	Graphics(id render.LayerID) []render.Graphic
	Viewport() (render.Viewport, bool)
}

// Search handles POST /api/v1/search. The session is taken from
// X-Session-ID or created; its id is echoed in the response header.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if !decodeBody(w, r, &body) {
		return
	}

	req, err := request.New(body.Query, mode.Mode(body.Mode), body.Field, s.maxQueryLength)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	sess, err := s.sessions.Acquire(r.Header.Get(SessionHeader))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.Header().Set(SessionHeader, sess.ID())

	out := s.search.Submit(r.Context(), sess, req)

	resp := searchResponse{
		SessionID: sess.ID(),
		Seq:       out.Seq(),
		Outcome:   string(out.Kind()),
		Count:     out.Count(),
		Reason:    out.Reason(),
	}
	if gv, ok := sess.Renderer().(graphicsView); ok && out.Kind() == outcome.Rendered {
		// A newer submission may have drawn since; its viewport is not ours.
		sess.WithCurrent(out.Seq(), func() {
			if vp, ok := gv.Viewport(); ok {
				resp.Viewport = &vp
			}
		})
	}

	status := http.StatusOK
	if out.Kind() == outcome.Failed {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, resp)
}

// Prefetch handles POST /api/v1/prefetch. An empty body or dataset list
// prefetches every dataset. Datasets are fetched concurrently; one failure
// does not stop the others.
func (s *Server) Prefetch(w http.ResponseWriter, r *http.Request) {
	var body prefetchRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &body) {
			return
		}
	}

	ids := s.cache.Datasets()
	if len(body.Datasets) > 0 {
		ids = ids[:0:0]
		for _, name := range body.Datasets {
			id := dataset.ID(name)
			if !id.IsValid() {
				writeError(w, http.StatusBadRequest, CodeValidationFailed, "unknown dataset "+strconv.Quote(name))
				return
			}
			ids = append(ids, id)
		}
	}

	results := make([]prefetchResult, len(ids))
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			recs, err := s.cache.Prefetch(r.Context(), id)
			results[i] = prefetchResult{Dataset: id.String(), Records: len(recs)}
			if err != nil {
				s.logger.Warn("Prefetch failed", zap.String("dataset", id.String()), zap.Error(err))
				results[i].Error = safeDomainMessage(err)
				return fmt.Errorf("prefetch %s: %w", id, err)
			}
			return nil
		})
	}

	status := http.StatusOK
	if err := g.Wait(); err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, prefetchResponse{Results: results})
}

// ListSnapshots handles GET /api/v1/snapshots.
func (s *Server) ListSnapshots(w http.ResponseWriter, _ *http.Request) {
	ids := s.cache.Datasets()
	items := make([]snapshotItem, 0, len(ids))
	for _, id := range ids {
		snap := s.cache.Snapshot(id)
		item := snapshotItem{
			Dataset:  id.String(),
			Ready:    s.cache.IsReady(id),
			Restored: snap.IsRestored(),
			Records:  snap.Len(),
		}
		if t := snap.FetchedAt(); !t.IsZero() {
			item.FetchedAt = &t
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, snapshotListResponse{Items: items})
}

// GetSession handles GET /api/v1/sessions/{id}. With ?features=true each
// layer carries its graphics as a GeoJSON FeatureCollection.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	withFeatures, _ := strconv.ParseBool(r.URL.Query().Get("features"))

	resp := sessionView(sess.View())
	if gv, ok := sess.Renderer().(graphicsView); ok {
		resp.Layers = make(map[string]layerResponse, len(render.Layers()))
		for _, id := range render.Layers() {
			graphics := gv.Graphics(id)
			layer := layerResponse{Count: len(graphics)}
			if withFeatures {
				fc, err := render.FeatureCollection(graphics)
				if err != nil {
					s.handleDomainError(w, err)
					return
				}
				layer.Features = fc
			}
			resp.Layers[string(id)] = layer
		}
		if vp, ok := gv.Viewport(); ok {
			resp.Viewport = &vp
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearGraphics handles DELETE /api/v1/sessions/{id}/graphics.
func (s *Server) ClearGraphics(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	sess.Renderer().Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func sessionView(v searchuc.View) sessionResponse {
	resp := sessionResponse{
		ID:       v.ID,
		Seq:      v.Seq,
		Mode:     string(v.Mode),
		Query:    v.Query,
		State:    string(v.State),
		Stage:    v.Stage,
		LastUsed: v.LastUsed,
	}
	if v.Seq > 0 && v.LastOutcome.Kind() != "" {
		resp.LastOutcome = string(v.LastOutcome.Kind())
		resp.LastReason = v.LastOutcome.Reason()
	}
	return resp
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "Invalid request body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "Invalid request body: empty"
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, msg)
		return false
	}
	return true
}
