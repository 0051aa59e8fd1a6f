// Package snapshot persists attribute snapshots in the key-value store so a
// restarted service can answer searches before its first prefetch completes.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/db"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/record"
)

// DefaultKeyPrefix namespaces snapshot keys.
const DefaultKeyPrefix = "surveysearch:"

// store is the consumer interface for snapshot persistence (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo stores one snapshot per dataset.
type Repo struct {
	store  store
	prefix string
	ttl    time.Duration
	total  *prometheus.CounterVec
	logger *zap.Logger
}

// New creates a snapshot repository. ttl <= 0 keeps snapshots forever.
// total is a counter vec with labels "op" ("save"/"load") and "result",
// passed explicitly; it may be nil.
func New(s store, prefix string, ttl time.Duration, total *prometheus.CounterVec, logger *zap.Logger) *Repo {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repo{store: s, prefix: prefix, ttl: ttl, total: total, logger: logger}
}

// Save writes s, replacing any previous snapshot of the dataset.
func (r *Repo) Save(ctx context.Context, s record.Snapshot) error {
	data, err := json.Marshal(toDTO(s))
	if err != nil {
		r.inc("save", "error")
		return fmt.Errorf("marshal snapshot %s: %w", s.Dataset(), err)
	}
	if err := r.store.SetWithTTL(ctx, r.key(s.Dataset()), data, r.ttl); err != nil {
		r.inc("save", "error")
		return fmt.Errorf("save snapshot %s: %w", s.Dataset(), err)
	}
	r.inc("save", "ok")
	return nil
}

// Load reads the snapshot of id. A missing payload returns db.ErrKeyNotFound;
// an undecodable or outdated one is deleted and reported the same way.
func (r *Repo) Load(ctx context.Context, id dataset.ID) (record.Snapshot, error) {
	key := r.key(id)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			r.inc("load", "miss")
			return record.Snapshot{}, db.ErrKeyNotFound
		}
		r.inc("load", "error")
		return record.Snapshot{}, fmt.Errorf("load snapshot %s: %w", id, err)
	}

	var dto snapshotDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		r.logger.Warn("Discarding undecodable snapshot", zap.String("key", key), zap.Error(err))
		r.inc("load", "corrupt")
		r.discard(ctx, id)
		return record.Snapshot{}, db.ErrKeyNotFound
	}
	if dto.Version != schemaVersion || dto.Dataset != id.String() {
		r.logger.Warn("Discarding outdated snapshot",
			zap.String("key", key), zap.Int("version", dto.Version), zap.String("dataset", dto.Dataset))
		r.inc("load", "outdated")
		r.discard(ctx, id)
		return record.Snapshot{}, db.ErrKeyNotFound
	}

	r.inc("load", "hit")
	return fromDTO(id, dto), nil
}

// Delete removes the snapshot of id.
func (r *Repo) Delete(ctx context.Context, id dataset.ID) error {
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", id, err)
	}
	return nil
}

func (r *Repo) discard(ctx context.Context, id dataset.ID) {
	if err := r.Delete(ctx, id); err != nil {
		r.logger.Warn("Failed to delete discarded snapshot", zap.String("dataset", id.String()), zap.Error(err))
	}
}

// Stored lists the datasets that have a persisted snapshot.
func (r *Repo) Stored(ctx context.Context) ([]dataset.ID, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"snapshot:*")
	if err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	out := make([]dataset.ID, 0, len(keys))
	for _, k := range keys {
		id := dataset.ID(strings.TrimPrefix(k, r.prefix+"snapshot:"))
		if id.IsValid() {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *Repo) key(id dataset.ID) string {
	return r.prefix + "snapshot:" + id.String()
}

func (r *Repo) inc(op, result string) {
	if r.total != nil {
		r.total.WithLabelValues(op, result).Inc()
	}
}
