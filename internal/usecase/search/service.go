// Package search runs search submissions: fuzzy matching, predicate
// synthesis and the mode's chain of Feature Source queries, ending in a
// render handoff.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/domain"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	"github.com/crookcounty/surveysearch/internal/domain/search/outcome"
	"github.com/crookcounty/surveysearch/internal/domain/search/request"
	"github.com/crookcounty/surveysearch/internal/logger"
	"github.com/crookcounty/surveysearch/internal/usecase/fuzzy"
)

// Collectors are the optional metrics the orchestrator updates.
type Collectors struct {
	// SubmissionsTotal has labels "mode", "outcome".
	SubmissionsTotal *prometheus.CounterVec
	// StageDuration has labels "mode", "stage".
	StageDuration *prometheus.HistogramVec
}

// Orchestrator executes search submissions against the Feature Sources.
type Orchestrator struct {
	cfg       Config
	sources   map[dataset.ID]Source
	snapshots Snapshots
	synth     Synthesizer
	metrics   Collectors
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an orchestrator.
func New(
	cfg Config,
	sources map[dataset.ID]Source,
	snapshots Snapshots,
	synth Synthesizer,
	metrics Collectors,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		sources:   sources,
		snapshots: snapshots,
		synth:     synth,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// rendering is a feature set waiting for the commit point.
type rendering struct {
	set   feature.Set
	style dataset.ID
}

// Submit runs one submission in s and converts every failure, including a
// panic, into an outcome. Graphics are drawn only when the whole chain
// succeeded and no newer submission started in s meanwhile.
func (o *Orchestrator) Submit(ctx context.Context, s *Session, req request.Request) (out outcome.Outcome) {
	start := o.now()
	seq := s.begin(req.Mode(), req.Query(), start)
	log := logger.FromContextOr(ctx, o.logger).With(zap.String("session", s.ID()), zap.Uint64("seq", seq), zap.String("mode", req.Mode().String()))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Search submission panicked", zap.Any("panic", r), zap.Stack("stack"))
			out = outcome.NewFailed(seq, "internal error")
		}
		s.finish(out, o.now())
		o.observe(req.Mode(), out)
		log.Info("search_submission",
			zap.String("outcome", string(out.Kind())),
			zap.Int("count", out.Count()),
			zap.String("reason", out.Reason()),
			zap.Bool("field_filter", req.HasFieldFilter()),
			zap.Duration("duration", o.now().Sub(start)),
		)
	}()

	s.Renderer().Clear(ctx)

	matches := fuzzy.Search(
		o.searchRecords(req.Mode()),
		fuzzy.Fields(o.searchFields(req.Mode()), req.FieldFilter()),
		req.Query(),
		o.cfg.Thresholds[req.Mode()],
	)
	if len(matches) == 0 {
		log.Debug("No fuzzy matches", zap.Error(domain.ErrNoMatch))
	}
	preds := o.synth.Synthesize(matches, req.Mode())

	stages := o.chain(req.Mode(), preds)
	if len(stages) == 0 {
		return outcome.NewFailed(seq, fmt.Sprintf("unsupported search mode %q", req.Mode()))
	}

	var (
		prev    feature.Set
		pending []rendering
	)
	for _, st := range stages {
		if !s.enter(seq, st.name) {
			log.Info("Discarding stale submission", zap.String("stage", st.name))
			return outcome.NewSuperseded(seq)
		}
		q, ok := st.plan(prev)
		if !ok {
			log.Info("Chain ended before query", zap.String("stage", st.name), zap.Error(domain.ErrEmptyChainStage))
			return outcome.NewNoResults(seq)
		}
		set, err := o.runStage(ctx, req.Mode(), st, q)
		if err != nil {
			log.Error("Chain stage failed", zap.Error(err))
			return outcome.NewFailed(seq, failureReason(err))
		}
		if len(set) == 0 {
			log.Info("Chain stage returned no features", zap.String("stage", st.name), zap.Error(domain.ErrEmptyChainStage))
			return outcome.NewNoResults(seq)
		}
		if st.forward {
			pending = append(pending, rendering{set: set, style: st.dataset})
		}
		prev = set
	}
	pending = append(pending, rendering{set: prev, style: dataset.Survey})

	committed := s.WithCurrent(seq, func() {
		for _, p := range pending {
			s.Renderer().Render(ctx, p.set, o.cfg.Styles[p.style])
		}
	})
	s.Renderer().Flush(ctx)
	if !committed {
		log.Info("Discarding stale submission before render")
		return outcome.NewSuperseded(seq)
	}
	return outcome.NewRendered(seq, len(prev))
}

func (o *Orchestrator) runStage(ctx context.Context, m mode.Mode, st stage, q feature.Query) (feature.Set, error) {
	src, ok := o.sources[st.dataset]
	if !ok {
		return nil, &domain.StageError{Stage: st.name, Err: fmt.Errorf("no feature source for dataset %q", st.dataset)}
	}
	start := o.now()
	set, err := src.Query(ctx, q)
	if o.metrics.StageDuration != nil {
		o.metrics.StageDuration.WithLabelValues(m.String(), st.name).Observe(o.now().Sub(start).Seconds())
	}
	if err != nil {
		return nil, &domain.StageError{Stage: st.name, Err: domain.SourceUnavailable("query "+st.dataset.String(), err)}
	}
	return set, nil
}

func (o *Orchestrator) searchRecords(m mode.Mode) []record.Record {
	if o.cfg.Scope == ScopeAll {
		return o.snapshots.Records(dataset.All()...)
	}
	return o.snapshots.Records(m.Primary())
}

func (o *Orchestrator) searchFields(m mode.Mode) []string {
	if o.cfg.Scope == ScopeAll {
		var out []string
		for _, id := range dataset.All() {
			out = append(out, o.cfg.Datasets[id].SearchFields()...)
		}
		return out
	}
	return o.cfg.Datasets[m.Primary()].SearchFields()
}

func (o *Orchestrator) observe(m mode.Mode, out outcome.Outcome) {
	if o.metrics.SubmissionsTotal != nil {
		o.metrics.SubmissionsTotal.WithLabelValues(m.String(), string(out.Kind())).Inc()
	}
}

func failureReason(err error) string {
	var se *domain.StageError
	if errors.As(err, &se) && errors.Is(err, domain.ErrSourceUnavailable) {
		return fmt.Sprintf("%s query failed: %s", se.Stage, domain.ErrSourceUnavailable)
	}
	return "query failed"
}
