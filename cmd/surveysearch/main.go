package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/config"
	dbRedis "github.com/crookcounty/surveysearch/internal/db/redis"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	logpkg "github.com/crookcounty/surveysearch/internal/logger"
	"github.com/crookcounty/surveysearch/internal/metrics"
	"github.com/crookcounty/surveysearch/internal/render"
	"github.com/crookcounty/surveysearch/internal/repository/snapshot"
	"github.com/crookcounty/surveysearch/internal/resilience"
	"github.com/crookcounty/surveysearch/internal/transport/arcgis"
	chiTransport "github.com/crookcounty/surveysearch/internal/transport/chi"
	natsTransport "github.com/crookcounty/surveysearch/internal/transport/nats"
	cacheuc "github.com/crookcounty/surveysearch/internal/usecase/cache"
	healthuc "github.com/crookcounty/surveysearch/internal/usecase/health"
	predicateuc "github.com/crookcounty/surveysearch/internal/usecase/predicate"
	searchuc "github.com/crookcounty/surveysearch/internal/usecase/search"
	"github.com/crookcounty/surveysearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting surveysearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("db_enabled", cfg.Database.Enabled),
		zap.Bool("nats_enabled", cfg.NATS.URL != ""),
	)

	// Register metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Optional snapshot store. Interfaces stay nil (not typed nil) when disabled.
	var (
		snapshots cacheuc.SnapshotStore
		dbPinger  healthuc.DBPinger
	)
	if cfg.Database.Enabled {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Database.Addrs,
			Password:   cfg.Database.Password,
			Standalone: cfg.Database.Standalone,
		})
		if err != nil {
			logger.Fatal("Failed to create database store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Database not ready", zap.Error(err))
		}
		logger.Info("Connected to database", zap.Strings("db_addrs", cfg.Database.Addrs))

		ttl := time.Duration(cfg.Snapshot.TTLHours) * time.Hour
		repo := snapshot.New(store, cfg.Database.KeyPrefix, ttl, metrics.SnapshotStoreTotal, logger)
		if stored, err := repo.Stored(ctx); err != nil {
			logger.Warn("Failed to list stored snapshots", zap.Error(err))
		} else {
			logger.Info("Found stored snapshots", zap.Int("count", len(stored)))
		}
		snapshots = repo
		dbPinger = store
	}

	defs, err := buildDefinitions(cfg.Sources)
	if err != nil {
		logger.Fatal("Invalid dataset definitions", zap.Error(err))
	}
	classes, err := classify(defs)
	if err != nil {
		logger.Fatal("Invalid field classification", zap.Error(err))
	}

	// Feature Sources: one client per layer sharing the executor
	executor := resilience.NewExecutor(resilienceConfig(cfg.Resilience), logger)
	httpClient := &http.Client{Timeout: time.Duration(cfg.Transport.TimeoutSec) * time.Second}

	clients := make(map[dataset.ID]*arcgis.Client, len(defs))
	cacheSources := make(map[dataset.ID]cacheuc.Source, len(defs))
	searchSources := make(map[dataset.ID]searchuc.Source, len(defs))
	pingers := make(map[dataset.ID]healthuc.SourcePinger, len(defs))
	for id, def := range defs {
		c := arcgis.NewClient(arcgis.Config{
			URL:     cfg.Sources[id.String()].URL,
			Dataset: id,
			Fields:  def.Fields,
			WKID:    cfg.Transport.OutWKID,
		}, httpClient, newLimiter(cfg.Transport), executor, metrics.SourceRequestsTotal, logger)
		clients[id] = c
		cacheSources[id] = c
		searchSources[id] = c
		pingers[id] = c
	}

	attrCache := cacheuc.New(defs, cacheSources, snapshots, cacheuc.Collectors{
		PrefetchTotal:   metrics.PrefetchTotal,
		SnapshotRecords: metrics.SnapshotRecords,
	}, logger)

	synth := predicateuc.NewSynthesizer(classes, metrics.ClassificationGapsTotal, logger)

	searchCfg, err := buildSearchConfig(cfg.Search, defs)
	if err != nil {
		logger.Fatal("Invalid search configuration", zap.Error(err))
	}
	orchestrator := searchuc.New(searchCfg, searchSources, attrCache, synth, searchuc.Collectors{
		SubmissionsTotal: metrics.SubmissionsTotal,
		StageDuration:    metrics.StageDuration,
	}, logger)

	// Render events go to NATS when configured
	var sink render.Sink
	if cfg.NATS.URL != "" {
		pub, err := natsTransport.Connect(cfg.NATS.URL, natsTransport.Options{
			Subject:  cfg.NATS.Subject,
			Executor: executor,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer pub.Close()
		sink = pub
		logger.Info("Publishing render events", zap.String("subject", pub.Subject("*")))
	}

	sessions := searchuc.NewRegistry(searchCfg.SessionIdleTTL, func(id string) searchuc.Renderer {
		return render.NewHandoff(id, sink, logger)
	}, logger)

	healthSvc := healthuc.New(dbPinger, pingers, attrCache)

	// Create chi server
	server := chiTransport.NewServer(orchestrator, sessions, attrCache, healthSvc, cfg.Search.MaxQueryLength, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Mount(r)

	// Background work: restore, prefetch, session eviction
	if cfg.Snapshot.RestoreOnStart {
		n, err := attrCache.Restore(ctx)
		if err != nil {
			logger.Warn("Snapshot restore incomplete", zap.Error(err))
		}
		logger.Info("Restored snapshots", zap.Int("datasets", n))
	}
	go func() {
		if err := attrCache.PrefetchAll(ctx); err != nil {
			logger.Warn("Initial prefetch incomplete", zap.Error(err))
		}
	}()
	go func() {
		if err := attrCache.WaitReady(ctx); err == nil {
			logger.Info("Attribute snapshots loaded")
		}
	}()
	go sessions.Run(ctx, time.Minute)
	go reportSessions(ctx, sessions, 15*time.Second)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// reportSessions keeps the active-sessions gauge in step with the registry.
func reportSessions(ctx context.Context, sessions *searchuc.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		metrics.ActiveSessions.Set(float64(sessions.Len()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    chiTransport.CodeInternalError,
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			if sid := r.Header.Get(chiTransport.SessionHeader); sid != "" {
				reqLogger = reqLogger.With(zap.String("session", sid))
			}
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line: one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
