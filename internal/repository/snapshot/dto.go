package snapshot

import (
	"time"

	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/record"
)

// schemaVersion is bumped when the stored layout changes; older payloads
// are treated as missing.
const schemaVersion = 1

type snapshotDTO struct {
	Version   int                 `json:"v"`
	Dataset   string              `json:"dataset"`
	FetchedAt time.Time           `json:"fetched_at"`
	Records   []map[string]string `json:"records"`
}

func toDTO(s record.Snapshot) snapshotDTO {
	recs := make([]map[string]string, 0, s.Len())
	for _, r := range s.Records() {
		recs = append(recs, r.Values())
	}
	return snapshotDTO{
		Version:   schemaVersion,
		Dataset:   s.Dataset().String(),
		FetchedAt: s.FetchedAt().UTC(),
		Records:   recs,
	}
}

func fromDTO(id dataset.ID, d snapshotDTO) record.Snapshot {
	recs := make([]record.Record, 0, len(d.Records))
	for _, values := range d.Records {
		recs = append(recs, record.Reconstruct(id, values))
	}
	return record.Restored(id, recs, d.FetchedAt)
}
