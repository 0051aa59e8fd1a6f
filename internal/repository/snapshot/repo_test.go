package snapshot

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crookcounty/surveysearch/internal/db"
	"github.com/crookcounty/surveysearch/internal/domain/dataset"
	"github.com/crookcounty/surveysearch/internal/domain/record"
)

func testSnapshot() record.Snapshot {
	return record.NewSnapshot(dataset.Survey, []record.Record{
		record.Reconstruct(dataset.Survey, map[string]string{"cs": "1234", "subdivision": "RIVER RIM"}),
		record.Reconstruct(dataset.Survey, map[string]string{"cs": "5678"}),
	}, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	r, ms := newTestRepo(t)
	ctx := context.Background()

	if err := r.Save(ctx, testSnapshot()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ms.ttls["surveysearch:snapshot:survey"] != time.Hour {
		t.Errorf("unexpected ttl: %v", ms.ttls)
	}

	got, err := r.Load(ctx, dataset.Survey)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.IsRestored() {
		t.Error("loaded snapshot should be marked restored")
	}
	if got.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", got.Len())
	}
	if v, _ := got.Records()[0].Value("subdivision"); v != "RIVER RIM" {
		t.Errorf("subdivision = %q", v)
	}
	if !got.FetchedAt().Equal(testSnapshot().FetchedAt()) {
		t.Errorf("fetched_at = %v", got.FetchedAt())
	}
}

func TestLoad_Missing(t *testing.T) {
	r, _ := newTestRepo(t)
	_, err := r.Load(context.Background(), dataset.Taxlot)
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	r, ms := newTestRepo(t)
	ms.data["surveysearch:snapshot:address"] = []byte("{not json")
	_, err := r.Load(context.Background(), dataset.Address)
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if _, ok := ms.data["surveysearch:snapshot:address"]; ok {
		t.Error("corrupt snapshot should be deleted")
	}
}

func TestLoad_OutdatedVersion(t *testing.T) {
	r, ms := newTestRepo(t)
	ms.data["surveysearch:snapshot:survey"] = []byte(`{"v":0,"dataset":"survey","records":[]}`)
	_, err := r.Load(context.Background(), dataset.Survey)
	if !errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if _, ok := ms.data["surveysearch:snapshot:survey"]; ok {
		t.Error("outdated snapshot should be deleted")
	}
}

func TestLoad_StoreError(t *testing.T) {
	r, ms := newTestRepo(t)
	ms.getErr = errors.New("connection refused")
	_, err := r.Load(context.Background(), dataset.Survey)
	if err == nil || errors.Is(err, db.ErrKeyNotFound) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestSave_Error(t *testing.T) {
	r, ms := newTestRepo(t)
	ms.setErr = errors.New("readonly")
	if err := r.Save(context.Background(), testSnapshot()); err == nil {
		t.Fatal("expected error")
	}
}

func TestStoredAndDelete(t *testing.T) {
	r, ms := newTestRepo(t)
	ctx := context.Background()
	_ = r.Save(ctx, testSnapshot())
	_ = r.Save(ctx, record.NewSnapshot(dataset.Taxlot, nil, time.Now()))
	ms.data["surveysearch:snapshot:bogus"] = []byte("{}")

	ids, err := r.Stored(ctx)
	if err != nil {
		t.Fatalf("stored: %v", err)
	}
	slices.Sort(ids)
	if !slices.Equal(ids, []dataset.ID{dataset.Survey, dataset.Taxlot}) {
		t.Errorf("stored = %v", ids)
	}

	if err := r.Delete(ctx, dataset.Survey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.Load(ctx, dataset.Survey); !errors.Is(err, db.ErrKeyNotFound) {
		t.Errorf("expected deleted snapshot to be missing, got %v", err)
	}
}

func TestMetrics(t *testing.T) {
	total := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "snapshot_store_total"}, []string{"op", "result"})
	ms := newMockKVStore()
	r := New(ms, "test:", 0, total, nil)
	ctx := context.Background()

	_, _ = r.Load(ctx, dataset.Survey)
	_ = r.Save(ctx, testSnapshot())
	_, _ = r.Load(ctx, dataset.Survey)

	if got := testutil.ToFloat64(total.WithLabelValues("load", "miss")); got != 1 {
		t.Errorf("miss = %v", got)
	}
	if got := testutil.ToFloat64(total.WithLabelValues("load", "hit")); got != 1 {
		t.Errorf("hit = %v", got)
	}
	if got := testutil.ToFloat64(total.WithLabelValues("save", "ok")); got != 1 {
		t.Errorf("save ok = %v", got)
	}
	if _, ok := ms.data["test:snapshot:survey"]; !ok {
		t.Error("custom prefix should be used")
	}
}
