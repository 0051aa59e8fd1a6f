// Package cache holds one attribute snapshot per dataset.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/crookcounty/surveysearch/internal/db"
	"github.com/crookcounty/surveysearch/internal/domain"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/feature"
	"github.com/crookcounty/surveysearch/internal/domain/record"
	"github.com/crookcounty/surveysearch/internal/domain/search/predicate"
)

// Collectors are the optional metrics the cache updates.
type Collectors struct {
	// PrefetchTotal has labels "dataset", "status".
	PrefetchTotal *prometheus.CounterVec
	// SnapshotRecords has label "dataset".
	SnapshotRecords *prometheus.GaugeVec
}

type slot struct {
	snap  atomic.Pointer[record.Snapshot]
	ready chan struct{}
	once  sync.Once
}

func (s *slot) publish(snap *record.Snapshot) {
	s.snap.Store(snap)
	s.once.Do(func() { close(s.ready) })
}

// Cache serves immutable per-dataset snapshots. Snapshots are replaced by
// atomic swap; readers never observe a partially built one.
type Cache struct {
	defs    map[dataset.ID]dataset.Definition
	sources map[dataset.ID]Source
	store   SnapshotStore
	slots   map[dataset.ID]*slot
	metrics Collectors
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an empty cache. store may be nil to disable persistence.
func New(
	defs map[dataset.ID]dataset.Definition,
	sources map[dataset.ID]Source,
	store SnapshotStore,
	metrics Collectors,
	logger *zap.Logger,
) *Cache {
	slots := make(map[dataset.ID]*slot, len(dataset.All()))
	for _, id := range dataset.All() {
		slots[id] = &slot{ready: make(chan struct{})}
	}
	return &Cache{
		defs:    defs,
		sources: sources,
		store:   store,
		slots:   slots,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Prefetch fetches the attribute records of id with the dataset's baseline
// filter and swaps them in. A failed fetch leaves the previous snapshot.
func (c *Cache) Prefetch(ctx context.Context, id dataset.ID) ([]record.Record, error) {
	src, ok := c.sources[id]
	if !ok {
		return nil, fmt.Errorf("%w: no feature source for dataset %q", domain.ErrInvalidInput, id)
	}
	def := c.defs[id]

	start := c.now()
	set, err := src.Query(ctx, feature.Query{
		Where:          predicate.Predicate(def.Baseline),
		OutFields:      def.Fields,
		ReturnGeometry: false,
	})
	if err != nil {
		c.incPrefetch(id, "error")
		return nil, domain.SourceUnavailable("prefetch "+id.String(), err)
	}

	snap := record.NewSnapshot(id, set.Records(), c.now())
	c.slots[id].publish(&snap)
	c.incPrefetch(id, "ok")
	c.setGauge(snap)
	c.logger.Info("Snapshot prefetched",
		zap.String("dataset", id.String()),
		zap.Int("records", snap.Len()),
		zap.Duration("duration", c.now().Sub(start)),
	)

	c.persist(ctx, snap)
	return slices.Clone(snap.Records()), nil
}

// PrefetchAll prefetches every configured dataset concurrently and joins
// their errors. Datasets that succeed are published even if others fail.
func (c *Cache) PrefetchAll(ctx context.Context) error {
	ids := c.Datasets()
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Go(func() {
			_, errs[i] = c.Prefetch(ctx, id)
		})
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Restore loads persisted snapshots for datasets that have not been
// populated yet. It returns the number of datasets restored.
func (c *Cache) Restore(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	restored := 0
	var errs []error
	for _, id := range c.Datasets() {
		sl := c.slots[id]
		if sl.snap.Load() != nil {
			continue
		}
		snap, err := c.store.Load(ctx, id)
		if err != nil {
			if !errors.Is(err, db.ErrKeyNotFound) {
				errs = append(errs, fmt.Errorf("restore %s: %w", id, err))
			}
			continue
		}
		if snap.IsEmpty() {
			continue
		}
		// A prefetch that finished meanwhile wins.
		if !sl.snap.CompareAndSwap(nil, &snap) {
			continue
		}
		sl.once.Do(func() { close(sl.ready) })
		c.setGauge(snap)
		restored++
		c.logger.Info("Snapshot restored",
			zap.String("dataset", id.String()),
			zap.Int("records", snap.Len()),
			zap.Time("fetched_at", snap.FetchedAt()),
		)
	}
	return restored, errors.Join(errs...)
}

// Snapshot returns the current snapshot of id, or an empty one if the
// dataset was never populated.
func (c *Cache) Snapshot(id dataset.ID) record.Snapshot {
	sl, ok := c.slots[id]
	if !ok {
		return record.Empty(id)
	}
	if s := sl.snap.Load(); s != nil {
		return *s
	}
	return record.Empty(id)
}

// Records returns the union of the current records of ids.
func (c *Cache) Records(ids ...dataset.ID) []record.Record {
	var out []record.Record
	for _, id := range ids {
		out = append(out, c.Snapshot(id).Records()...)
	}
	return out
}

// Ready returns a channel closed once id has a snapshot.
func (c *Cache) Ready(id dataset.ID) <-chan struct{} {
	if sl, ok := c.slots[id]; ok {
		return sl.ready
	}
	return make(chan struct{})
}

// IsReady reports whether id has a snapshot.
func (c *Cache) IsReady(id dataset.ID) bool {
	select {
	case <-c.Ready(id):
		return true
	default:
		return false
	}
}

// WaitReady blocks until every configured dataset has a snapshot or ctx ends.
func (c *Cache) WaitReady(ctx context.Context) error {
	for _, id := range c.Datasets() {
		select {
		case <-c.Ready(id):
		case <-ctx.Done():
			return fmt.Errorf("%w: snapshot %s: %w", domain.ErrNotReady, id, ctx.Err())
		}
	}
	return nil
}

// Datasets returns the datasets that have a Feature Source, in fixed order.
func (c *Cache) Datasets() []dataset.ID {
	out := make([]dataset.ID, 0, len(c.sources))
	for _, id := range dataset.All() {
		if _, ok := c.sources[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (c *Cache) persist(ctx context.Context, snap record.Snapshot) {
	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, snap); err != nil {
		c.logger.Warn("Failed to persist snapshot",
			zap.String("dataset", snap.Dataset().String()), zap.Error(err))
	}
}

func (c *Cache) incPrefetch(id dataset.ID, status string) {
	if c.metrics.PrefetchTotal != nil {
		c.metrics.PrefetchTotal.WithLabelValues(id.String(), status).Inc()
	}
}

func (c *Cache) setGauge(snap record.Snapshot) {
	if c.metrics.SnapshotRecords != nil {
		c.metrics.SnapshotRecords.WithLabelValues(snap.Dataset().String()).Set(float64(snap.Len()))
	}
}
