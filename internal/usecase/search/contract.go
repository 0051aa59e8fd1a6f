package search

import (
	"context"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/record"
	dompred "github.com/crookcounty/surveysearch/internal/domain/search/predicate"
	"github.com/crookcounty/surveysearch/internal/domain/search/match"
	"github.com/crookcounty/surveysearch/internal/domain/search/mode"
	"github.com/crookcounty/surveysearch/internal/render"
)

// Source executes queries against one dataset's Feature Source.
type Source interface {
	Query(ctx context.Context, q feature.Query) (feature.Set, error)
}

// Snapshots reads cached attribute records.
type Snapshots interface {
	Records(ids ...dataset.ID) []record.Record
}

// Synthesizer builds per-dataset predicates from fuzzy matches.
type Synthesizer interface {
	Synthesize(matches []match.Match, m mode.Mode) dompred.ByDataset
}

// Renderer is the display boundary of one session. Render must not block
// on I/O since it runs under the session lock; Flush delivers what Render
// queued and runs outside it.
type Renderer interface {
	Clear(ctx context.Context)
	Render(ctx context.Context, set feature.Set, style render.Style)
	Flush(ctx context.Context)
}
