package surveysearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/crookcounty/surveysearch/internal/db"
	dbRedis "github.com/crookcounty/surveysearch/internal/db/redis"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	"github.com/crookcounty/surveysearch/internal/domain/search/outcome"
	"github.com/crookcounty/surveysearch/internal/domain/search/request"
	"github.com/crookcounty/surveysearch/internal/render"
	"github.com/crookcounty/surveysearch/internal/repository/snapshot"
	"github.com/crookcounty/surveysearch/internal/resilience"
	"github.com/crookcounty/surveysearch/internal/transport/arcgis"
	cacheuc "github.com/crookcounty/surveysearch/internal/usecase/cache"
	healthuc "github.com/crookcounty/surveysearch/internal/usecase/health"
	predicateuc "github.com/crookcounty/surveysearch/internal/usecase/predicate"
	searchuc "github.com/crookcounty/surveysearch/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Internal interfaces for substitution in tests.
type searchUseCase interface {
	Submit(ctx context.Context, s *searchuc.Session, req request.Request) outcome.Outcome
}

type sessionRegistry interface {
	Acquire(id string) (*searchuc.Session, error)
	Get(id string) (*searchuc.Session, error)
}

type cacheUseCase interface {
	Prefetch(ctx context.Context, id dataset.ID) ([]record.Record, error)
	PrefetchAll(ctx context.Context) error
	Restore(ctx context.Context) (int, error)
}

// graphicsView is implemented by renderers that keep their graphics.
type graphicsView interface {
	Graphics(id render.LayerID) []render.Graphic
	Viewport() (render.Viewport, bool)
}

// Client is the surveysearch SDK entry point.
type Client struct {
	store     db.Store
	searchSvc searchUseCase
	sessions  sessionRegistry
	cache     cacheUseCase
	healthSvc healthUseCase
	obs       *observer
}

// New creates a Client. With WithRedis the store is connected and the
// provided context is used for the readiness check; persisted snapshots
// are restored before New returns.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	defs, err := definitions(cfg)
	if err != nil {
		return nil, err
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	var store db.Store
	if len(cfg.addrs) > 0 {
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("surveysearch: create redis store: %w", err)
		}
		if err := s.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
			s.Close()
			return nil, fmt.Errorf("surveysearch: database not ready: %w", err)
		}
		store = s
	}

	c, err := wireClient(store, defs, cfg, obs)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, err
	}
	if store != nil {
		if _, err := c.cache.Restore(ctx); err != nil {
			obs.observe("restore", time.Now(), err)
		}
	}
	return c, nil
}

// definitions overlays the configured sources on the built-in layers.
func definitions(cfg *clientConfig) (map[dataset.ID]dataset.Definition, error) {
	defs := dataset.DefaultDefinitions()
	for _, id := range dataset.All() {
		src, ok := cfg.sources[Dataset(id)]
		if !ok || src.url == "" {
			return nil, fmt.Errorf("surveysearch: source URL required for %s (use WithSource)", id)
		}
		def := defs[id]
		if len(src.searchable) > 0 {
			def.Searchable = src.searchable
		}
		if src.baseline != "" {
			def.Baseline = src.baseline
		}
		if err := def.Validate(); err != nil {
			return nil, fmt.Errorf("surveysearch: %w", err)
		}
		defs[id] = def
	}
	for ds := range cfg.sources {
		if !dataset.ID(ds).IsValid() {
			return nil, fmt.Errorf("surveysearch: unknown dataset %q", ds)
		}
	}
	return defs, nil
}

func wireClient(
	store db.Store,
	defs map[dataset.ID]dataset.Definition,
	cfg *clientConfig,
	obs *observer,
) (*Client, error) {
	logger := zap.NewNop()

	classes, err := dataset.NewClassification(dataset.DefaultFields())
	if err != nil {
		return nil, fmt.Errorf("surveysearch: %w", err)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	exec := resilience.NewExecutor(resilience.DefaultConfig(), logger)

	cacheSources := make(map[dataset.ID]cacheuc.Source, len(defs))
	searchSources := make(map[dataset.ID]searchuc.Source, len(defs))
	pingers := make(map[dataset.ID]healthuc.SourcePinger, len(defs))
	for id, def := range defs {
		var limiter *rate.Limiter
		if cfg.ratePerSec > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.ratePerSec), max(cfg.burst, 1))
		}
		client := arcgis.NewClient(arcgis.Config{
			URL:     cfg.sources[Dataset(id)].url,
			Dataset: id,
			Fields:  def.Fields,
		}, hc, limiter, exec, nil, logger)
		cacheSources[id] = client
		searchSources[id] = client
		pingers[id] = client
	}

	// Pass nil interfaces (not typed nil pointers) when persistence is off.
	var (
		snapshots cacheuc.SnapshotStore
		dbPinger  healthuc.DBPinger
	)
	if store != nil {
		snapshots = snapshot.New(store, "", cfg.snapshotTTL, nil, logger)
		dbPinger = store
	}

	attrCache := cacheuc.New(defs, cacheSources, snapshots, cacheuc.Collectors{}, logger)
	synth := predicateuc.NewSynthesizer(classes, nil, logger)

	searchCfg := searchuc.DefaultConfig()
	searchCfg.Datasets = defs
	if cfg.searchAll {
		searchCfg.Scope = searchuc.ScopeAll
	}
	for m, th := range cfg.thresholds {
		if !mode.Mode(m).IsValid() {
			return nil, fmt.Errorf("surveysearch: threshold for unknown mode %q", m)
		}
		searchCfg.Thresholds[mode.Mode(m)] = th
	}
	orchestrator := searchuc.New(searchCfg, searchSources, attrCache, synth, searchuc.Collectors{}, logger)

	var sink render.Sink
	if cfg.sink != nil {
		sink = &sinkAdapter{inner: cfg.sink}
	}
	// Idle sessions are evicted only by the long-running server.
	sessions := searchuc.NewRegistry(0, func(id string) searchuc.Renderer {
		return render.NewHandoff(id, sink, logger)
	}, logger)

	return &Client{
		store:     store,
		searchSvc: orchestrator,
		sessions:  sessions,
		cache:     attrCache,
		healthSvc: healthuc.New(dbPinger, pingers, attrCache),
		obs:       obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Prefetch loads the attribute snapshots of the given datasets, or of all
// datasets when none are given. Datasets that fail keep their previous
// snapshot; the errors are joined.
func (c *Client) Prefetch(ctx context.Context, datasets ...Dataset) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("prefetch", start, err) }()

	if len(datasets) == 0 {
		return c.cache.PrefetchAll(ctx)
	}
	var errs []error
	for _, ds := range datasets {
		if _, err := c.cache.Prefetch(ctx, dataset.ID(ds)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Search runs one submission. Failed and superseded searches are reported
// through Result.Outcome; the error is set only for invalid requests.
func (c *Client) Search(ctx context.Context, req SearchRequest) (res Result, err error) {
	start := time.Now()
	defer func() {
		c.obs.observe("search", start, err)
		if err == nil {
			c.obs.outcome(req.Mode, res.Outcome)
		}
	}()

	r, err := request.New(req.Query, mode.Mode(req.Mode), req.Field, 0)
	if err != nil {
		return Result{}, err
	}
	sess, err := c.sessions.Acquire(req.SessionID)
	if err != nil {
		return Result{}, err
	}

	out := c.searchSvc.Submit(ctx, sess, r)
	res = Result{
		SessionID: sess.ID(),
		Seq:       out.Seq(),
		Outcome:   Outcome(out.Kind()),
		Count:     out.Count(),
		Reason:    out.Reason(),
	}
	gv, ok := sess.Renderer().(graphicsView)
	if !ok {
		return res, nil
	}
	// Layers are reported only while this submission is the session's
	// latest; a newer one may already have replaced them.
	var layerErr error
	sess.WithCurrent(out.Seq(), func() {
		if res.Results, layerErr = layer(gv, render.Results); layerErr != nil {
			return
		}
		if res.Highlight, layerErr = layer(gv, render.Highlight); layerErr != nil {
			return
		}
		if vp, ok := gv.Viewport(); ok && out.Kind() == outcome.Rendered {
			res.Viewport = &Viewport{
				MinX: vp.MinX, MinY: vp.MinY, MaxX: vp.MaxX, MaxY: vp.MaxY,
				DiagonalMeters: vp.DiagonalMeters,
			}
		}
	})
	if layerErr != nil {
		return Result{}, layerErr
	}
	return res, nil
}

// Session returns the state of a session.
func (c *Client) Session(id string) (SessionInfo, error) {
	sess, err := c.sessions.Get(id)
	if err != nil {
		return SessionInfo{}, err
	}
	v := sess.View()
	info := SessionInfo{
		ID:       v.ID,
		Seq:      v.Seq,
		Mode:     Mode(v.Mode),
		Query:    v.Query,
		State:    string(v.State),
		LastUsed: v.LastUsed,
	}
	if v.Seq > 0 {
		info.LastOutcome = Outcome(v.LastOutcome.Kind())
	}
	return info, nil
}

// ClearGraphics removes every graphic of a session.
func (c *Client) ClearGraphics(ctx context.Context, id string) error {
	sess, err := c.sessions.Get(id)
	if err != nil {
		return err
	}
	sess.Renderer().Clear(ctx)
	return nil
}

func layer(gv graphicsView, id render.LayerID) (Layer, error) {
	graphics := gv.Graphics(id)
	if len(graphics) == 0 {
		return Layer{}, nil
	}
	fc, err := render.FeatureCollection(graphics)
	if err != nil {
		return Layer{}, fmt.Errorf("encode %s layer: %w", id, err)
	}
	return Layer{Count: len(graphics), Features: fc}, nil
}

// sinkAdapter wraps a public RenderSink to satisfy render.Sink.
type sinkAdapter struct {
	inner RenderSink
}

func (a *sinkAdapter) Publish(ctx context.Context, session string, ev render.Event) error {
	if err := a.inner.Publish(ctx, RenderEvent{
		Kind:     string(ev.Kind),
		Session:  session,
		Layer:    string(ev.Layer),
		Count:    ev.Count,
		Features: ev.Features,
		At:       ev.At,
	}); err != nil {
		return fmt.Errorf("render sink: %w", err)
	}
	return nil
}
