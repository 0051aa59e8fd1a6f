package cache

import (
	"context"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/record"
)

// Source executes queries against one dataset's Feature Source.
type Source interface {
	Query(ctx context.Context, q feature.Query) (feature.Set, error)
}

// SnapshotStore persists snapshots across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, s record.Snapshot) error
	Load(ctx context.Context, id dataset.ID) (record.Snapshot, error)
}
