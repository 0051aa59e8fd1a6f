package search

import (
	"time"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	"github.com/crookcounty/surveysearch/internal/render"
)

// Scope selects the records the fuzzy search runs over.
type Scope string

// Fuzzy search scopes.
const (
	// ScopeMode searches only the mode's primary dataset.
	ScopeMode Scope = "mode"
	// ScopeAll searches every dataset.
	ScopeAll Scope = "all"
)

// IntersectPredicate selects the filter of the survey stage that follows a
// spatial chain.
type IntersectPredicate string

// Survey intersect predicates.
const (
	// IntersectBaseline uses the survey baseline only.
	IntersectBaseline IntersectPredicate = "baseline"
	// IntersectMatched also applies the fuzzy-derived survey predicate.
	IntersectMatched IntersectPredicate = "matched"
)

// Config holds orchestrator settings.
type Config struct {
	Scope              Scope
	Thresholds         map[mode.Mode]float64
	SurveyIntersect    IntersectPredicate
	AddressParcelField string
	TaxlotParcelField  string
	Datasets           map[dataset.ID]dataset.Definition
	Styles             map[dataset.ID]render.Style
	SessionIdleTTL     time.Duration
}

// DefaultConfig returns settings matching the county deployment.
func DefaultConfig() Config {
	return Config{
		Scope:              ScopeMode,
		Thresholds:         map[mode.Mode]float64{mode.Surveys: 0.2, mode.Addresses: 0.1, mode.Maptaxlots: 0},
		SurveyIntersect:    IntersectBaseline,
		AddressParcelField: "maptaxlot",
		TaxlotParcelField:  "MAPTAXLOT",
		Datasets:           dataset.DefaultDefinitions(),
		Styles: map[dataset.ID]render.Style{
			dataset.Survey: render.SurveyStyle(),
			dataset.Taxlot: render.TaxlotStyle(),
		},
		SessionIdleTTL: 30 * time.Minute,
	}
}
