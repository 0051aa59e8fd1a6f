package search

import (
	"github.com/twpayne/go-geom"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	dompred "github.com/crookcounty/surveysearch/internal/domain/search/predicate"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	ucpred "github.com/crookcounty/surveysearch/internal/usecase/predicate"
)

// Chain stage names.
const (
	StageAddress = "address"
	StageTaxlot  = "taxlot"
	StageSurvey  = "survey"
)

// stage is one query of a chain. plan builds the query from the previous
// stage's features; ok=false ends the chain with no results before querying.
type stage struct {
	name    string
	dataset dataset.ID
	plan    func(prev feature.Set) (q feature.Query, ok bool)
	// forward hands the stage's features to the renderer along with the
	// final set.
	forward bool
}

// chain returns the stages of m. The last stage's features are final.
func (o *Orchestrator) chain(m mode.Mode, preds dompred.ByDataset) []stage {
	switch m {
	case mode.Surveys:
		return []stage{{
			name:    StageSurvey,
			dataset: dataset.Survey,
			plan: func(feature.Set) (feature.Query, bool) {
				return o.query(dataset.Survey, preds.For(dataset.Survey), nil), true
			},
		}}
	case mode.Addresses:
		return []stage{
			{
				name:    StageAddress,
				dataset: dataset.Address,
				plan: func(feature.Set) (feature.Query, bool) {
					p := preds.For(dataset.Address)
					if p.IsEmpty() {
						return feature.Query{}, false
					}
					return o.query(dataset.Address, p, nil), true
				},
			},
			{
				name:    StageTaxlot,
				dataset: dataset.Taxlot,
				plan: func(prev feature.Set) (feature.Query, bool) {
					p := ucpred.DeriveParcel(prev, o.cfg.AddressParcelField, o.cfg.TaxlotParcelField)
					g, ok := prev.FirstGeometry()
					if p.IsEmpty() || !ok {
						return feature.Query{}, false
					}
					q := o.query(dataset.Taxlot, p, nil)
					q.Intersects = g
					return q, true
				},
			},
			o.surveyIntersectStage(preds),
		}
	case mode.Maptaxlots:
		return []stage{
			{
				name:    StageTaxlot,
				dataset: dataset.Taxlot,
				forward: true,
				plan: func(feature.Set) (feature.Query, bool) {
					p := preds.For(dataset.Taxlot)
					if p.IsEmpty() {
						return feature.Query{}, false
					}
					return o.query(dataset.Taxlot, p, nil), true
				},
			},
			o.surveyIntersectStage(preds),
		}
	default:
		return nil
	}
}

// surveyIntersectStage finds the surveys overlapping the previous stage's
// first geometry.
func (o *Orchestrator) surveyIntersectStage(preds dompred.ByDataset) stage {
	return stage{
		name:    StageSurvey,
		dataset: dataset.Survey,
		plan: func(prev feature.Set) (feature.Query, bool) {
			g, ok := prev.FirstGeometry()
			if !ok {
				return feature.Query{}, false
			}
			var derived dompred.Predicate
			if o.cfg.SurveyIntersect == IntersectMatched {
				derived = preds.For(dataset.Survey)
			}
			return o.query(dataset.Survey, derived, g), true
		},
	}
}

// query builds a geometry-returning query whose filter is the dataset
// baseline ANDed with derived.
func (o *Orchestrator) query(id dataset.ID, derived dompred.Predicate, intersects geom.T) feature.Query {
	def := o.cfg.Datasets[id]
	return feature.Query{
		Where:          dompred.And(dompred.Predicate(def.Baseline), derived),
		OutFields:      def.Fields,
		ReturnGeometry: true,
		Intersects:     intersects,
	}
}
