package health

import (
	"context"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
)

// DBPinger checks snapshot store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// SourcePinger checks a Feature Source.
type SourcePinger interface {
	Ping(ctx context.Context) error
}

// Readiness reports whether a dataset's snapshot is loaded.
type Readiness interface {
	IsReady(id dataset.ID) bool
}
