package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
)

func TestEnsurePartitionCreatesMissingMonth(t *testing.T) {
	store := &memPartitionStore{}
	manager := NewPartitionManager(store, true)
	ctx := context.Background()

	ts := time.Date(2010, 12, 15, 10, 0, 0, 0, time.UTC)
	if err := manager.EnsurePartition(ctx, ts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created != 1 {
		t.Fatalf("expected 1 partition created, got %d", store.created)
	}

	// Same month again: served from the cache, no second creation.
	if err := manager.EnsurePartition(ctx, ts.AddDate(0, 0, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created != 1 {
		t.Fatalf("partition must not be created twice, got %d", store.created)
	}

	// A new month extends the layout.
	if err := manager.EnsurePartition(ctx, ts.AddDate(0, 1, 0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.created != 2 {
		t.Fatalf("expected 2 partitions, got %d", store.created)
	}

	partitions, _ := store.Partitions(ctx)
	for i := range partitions {
		for j := i + 1; j < len(partitions); j++ {
			if partitions[i].Overlaps(partitions[j]) {
				t.Fatalf("partitions %s and %s overlap", partitions[i].Name, partitions[j].Name)
			}
		}
	}
}

func TestEnsurePartitionGapWithoutAutoExtend(t *testing.T) {
	store := &memPartitionStore{
		partitions: []domain.Partition{
			domain.MonthPartitionFor(time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)),
		},
	}
	manager := NewPartitionManager(store, false)
	ctx := context.Background()

	// Covered month is fine.
	if err := manager.EnsurePartition(ctx, time.Date(2010, 12, 20, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := manager.EnsurePartition(ctx, time.Date(2011, 1, 2, 0, 0, 0, 0, time.UTC))
	if !errors.Is(err, domain.ErrPartitionGap) {
		t.Fatalf("expected ErrPartitionGap, got %v", err)
	}
	if store.created != 0 {
		t.Fatal("no partition may be created while auto-extension is off")
	}
}

func TestMigrateUnpartitionedMissingTableIsNoop(t *testing.T) {
	store := &memPartitionStore{flatExists: false}
	manager := NewPartitionManager(store, true)

	if err := manager.MigrateUnpartitioned(context.Background(), "fct_retail_sales_flat"); err != nil {
		t.Fatalf("missing flat table must be a no-op, got %v", err)
	}
	if store.flatDropped {
		t.Fatal("nothing existed to drop")
	}
}

func TestMigrateUnpartitionedCopiesAndDrops(t *testing.T) {
	store := &memPartitionStore{
		flatExists: true,
		flatRows:   120,
		flatMin:    time.Date(2010, 11, 3, 0, 0, 0, 0, time.UTC),
		flatMax:    time.Date(2011, 1, 20, 0, 0, 0, 0, time.UTC),
	}
	manager := NewPartitionManager(store, true)

	if err := manager.MigrateUnpartitioned(context.Background(), "fct_retail_sales_flat"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.flatDropped {
		t.Fatal("flat table must be dropped after a verified copy")
	}
	// Nov 2010 through Jan 2011 inclusive.
	if store.created != 3 {
		t.Fatalf("expected 3 partitions for the flat range, got %d", store.created)
	}
}

func TestMigrateUnpartitionedMismatchKeepsFlatTable(t *testing.T) {
	short := int64(100)
	store := &memPartitionStore{
		flatExists:   true,
		flatRows:     120,
		flatMin:      time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC),
		flatMax:      time.Date(2010, 12, 31, 0, 0, 0, 0, time.UTC),
		copyOverride: &short,
	}
	manager := NewPartitionManager(store, true)

	err := manager.MigrateUnpartitioned(context.Background(), "fct_retail_sales_flat")
	if !errors.Is(err, domain.ErrMigrationMismatch) {
		t.Fatalf("expected ErrMigrationMismatch, got %v", err)
	}
	if store.flatDropped {
		t.Fatal("the flat table must survive a failed verification")
	}
}
