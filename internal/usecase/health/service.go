package health

import (
	"context"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates every Feature Source is down.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckPending indicates a snapshot that has not been loaded yet.
	CheckPending CheckResult = "pending"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	sources map[dataset.ID]SourcePinger
	cache   Readiness
}

// New creates a Service. db can be nil when snapshot persistence is off.
func New(db DBPinger, sources map[dataset.ID]SourcePinger, cache Readiness) *Service {
	return &Service{db: db, sources: sources, cache: cache}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.db != nil {
		checks["database"] = result(s.db.Ping(ctx))
	}

	down := 0
	for _, id := range dataset.All() {
		src, ok := s.sources[id]
		if !ok {
			continue
		}
		r := result(src.Ping(ctx))
		if r == CheckError {
			down++
		}
		checks["source:"+id.String()] = r

		if s.cache != nil {
			if s.cache.IsReady(id) {
				checks["snapshot:"+id.String()] = CheckOK
			} else {
				checks["snapshot:"+id.String()] = CheckPending
			}
		}
	}

	status := Healthy
	for _, v := range checks {
		if v != CheckOK {
			status = Degraded
			break
		}
	}
	if len(s.sources) > 0 && down == len(s.sources) {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
