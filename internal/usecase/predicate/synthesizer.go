// Package predicate turns fuzzy matches into per-dataset filter predicates.
package predicate

import (
	"slices"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/domain"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	dompred "github.com/crookcounty/surveysearch/internal/domain/search/predicate"
	"github.com/crookcounty/surveysearch/internal/domain/search/match"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
)

// Synthesizer classifies matched fields and builds LIKE predicates.
type Synthesizer struct {
	classes   dataset.Classification
	gapsTotal *prometheus.CounterVec
	logger    *zap.Logger
}

// NewSynthesizer creates a synthesizer over the classification table.
// gapsTotal is a counter vec with label "field", passed explicitly (may be nil).
func NewSynthesizer(
	classes dataset.Classification,
	gapsTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Synthesizer {
	return &Synthesizer{classes: classes, gapsTotal: gapsTotal, logger: logger}
}

// Synthesize builds one deduplicated predicate per dataset of m's chain.
// A matched field missing from the table is logged and dropped.
func (s *Synthesizer) Synthesize(matches []match.Match, m mode.Mode) dompred.ByDataset {
	out := dompred.NewByDataset()
	relevant := m.Datasets()
	for _, mt := range matches {
		owner, ok := s.classes.Owner(mt.Field())
		if !ok {
			s.gap(mt.Field())
			continue
		}
		if !slices.Contains(relevant, owner) {
			continue
		}
		out.Add(owner, dompred.Like(mt.Field(), mt.Value()))
	}
	return out
}

func (s *Synthesizer) gap(field string) {
	s.logger.Warn("Matched field has no dataset classification",
		zap.String("field", field), zap.Error(domain.ErrClassificationGap))
	if s.gapsTotal != nil {
		s.gapsTotal.WithLabelValues(field).Inc()
	}
}

// DeriveParcel builds the equality predicate selecting the parcels referenced
// by features: one `<targetField> = '<id>'` fragment per distinct non-empty
// value of sourceField.
func DeriveParcel(features feature.Set, sourceField, targetField string) dompred.Predicate {
	set := dompred.NewSet()
	for _, id := range features.Values(sourceField) {
		set.Add(dompred.Equals(targetField, id))
	}
	return set.Predicate()
}
