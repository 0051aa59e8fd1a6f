package record

import (
	"time"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
)

// Snapshot is an immutable point-in-time copy of a dataset's records.
// Records must be treated as read-only by every consumer.
type Snapshot struct {
	dataset   dataset.ID
	records   []Record
	fetchedAt time.Time
	restored  bool
}

// NewSnapshot creates a snapshot fetched from the dataset's Feature Source.
func NewSnapshot(ds dataset.ID, records []Record, fetchedAt time.Time) Snapshot {
	return Snapshot{dataset: ds, records: records, fetchedAt: fetchedAt}
}

// Restored creates a snapshot loaded from persistent storage rather than the source.
func Restored(ds dataset.ID, records []Record, fetchedAt time.Time) Snapshot {
	return Snapshot{dataset: ds, records: records, fetchedAt: fetchedAt, restored: true}
}

// Empty returns the snapshot of a dataset that was never fetched.
func Empty(ds dataset.ID) Snapshot {
	return Snapshot{dataset: ds}
}

// Dataset returns the owning dataset.
func (s Snapshot) Dataset() dataset.ID { return s.dataset }

// Records returns the snapshot's records.
func (s Snapshot) Records() []Record { return s.records }

// Len returns the number of records.
func (s Snapshot) Len() int { return len(s.records) }

// IsEmpty reports whether the snapshot holds no records.
func (s Snapshot) IsEmpty() bool { return len(s.records) == 0 }

// FetchedAt returns when the records were fetched (zero if never).
func (s Snapshot) FetchedAt() time.Time { return s.fetchedAt }

// IsRestored reports whether the records came from persistent storage.
func (s Snapshot) IsRestored() bool { return s.restored }
