package main

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/crookcounty/surveysearch/internal/config"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	"github.com/crookcounty/surveysearch/internal/resilience"
	searchuc "github.com/crookcounty/surveysearch/internal/usecase/search"
)

// buildDefinitions overlays the configured sources on the built-in layer
// definitions. An empty field list keeps the built-in partition.
func buildDefinitions(sources map[string]config.SourceConfig) (map[dataset.ID]dataset.Definition, error) {
	defs := dataset.DefaultDefinitions()
	for _, id := range dataset.All() {
		src, ok := sources[id.String()]
		if !ok {
			continue
		}
		def := defs[id]
		if len(src.Fields) > 0 {
			def.Fields = src.Fields
			def.Searchable = nil
		}
		if len(src.SearchableFields) > 0 {
			def.Searchable = src.SearchableFields
		}
		if src.Baseline != "" {
			def.Baseline = src.Baseline
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs[id] = def
	}
	return defs, nil
}

func classify(defs map[dataset.ID]dataset.Definition) (dataset.Classification, error) {
	partitions := make(map[dataset.ID][]string, len(defs))
	for id, def := range defs {
		partitions[id] = def.Fields
	}
	return dataset.NewClassification(partitions)
}

func buildSearchConfig(c config.SearchConfig, defs map[dataset.ID]dataset.Definition) (searchuc.Config, error) {
	out := searchuc.DefaultConfig()
	out.Scope = searchuc.Scope(c.Scope)
	out.SurveyIntersect = searchuc.IntersectPredicate(c.SurveyIntersectPredicate)
	out.AddressParcelField = c.AddressParcelField
	out.TaxlotParcelField = c.TaxlotParcelField
	out.Datasets = defs
	out.SessionIdleTTL = time.Duration(c.SessionIdleTTLSec) * time.Second
	for name, th := range c.Thresholds {
		m := mode.Mode(name)
		if !m.IsValid() {
			return searchuc.Config{}, fmt.Errorf("threshold for unknown mode %q", name)
		}
		out.Thresholds[m] = th
	}
	if !dataset.IsValidField(out.AddressParcelField) || !dataset.IsValidField(out.TaxlotParcelField) {
		return searchuc.Config{}, fmt.Errorf("invalid parcel field %q / %q", out.AddressParcelField, out.TaxlotParcelField)
	}
	return out, nil
}

func resilienceConfig(c config.ResilienceConfig) resilience.Config {
	out := resilience.DefaultConfig()
	if c.RetryMaxAttempts > 0 {
		out.RetryMaxAttempts = c.RetryMaxAttempts
	}
	if c.RetryInitialBackoffMs > 0 {
		out.RetryInitialBackoff = time.Duration(c.RetryInitialBackoffMs) * time.Millisecond
	}
	if c.RetryMaxBackoffMs > 0 {
		out.RetryMaxBackoff = time.Duration(c.RetryMaxBackoffMs) * time.Millisecond
	}
	out.BreakerEnabled = !c.BreakerDisabled
	if c.BreakerMinRequests > 0 {
		out.BreakerMinRequests = c.BreakerMinRequests
	}
	if c.BreakerFailureRatio > 0 {
		out.BreakerFailureRatio = c.BreakerFailureRatio
	}
	if c.BreakerOpenTimeoutSec > 0 {
		out.BreakerOpenTimeout = time.Duration(c.BreakerOpenTimeoutSec) * time.Second
	}
	return out
}

// newLimiter returns nil (unlimited) when no rate is configured.
func newLimiter(c config.TransportConfig) *rate.Limiter {
	if c.RatePerSec <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(c.RatePerSec), c.Burst)
}
