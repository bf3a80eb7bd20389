package warehouse

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"
)

// PartitionManager keeps the monthly partition layout of the fact store in
// step with the data. With auto-extension disabled a timestamp outside the
// declared layout fails the run instead of creating a partition.
type PartitionManager struct {
	store      repository.PartitionedStore
	autoExtend bool

	mu    sync.Mutex
	known map[string]domain.Partition
}

func NewPartitionManager(store repository.PartitionedStore, autoExtend bool) *PartitionManager {
	return &PartitionManager{
		store:      store,
		autoExtend: autoExtend,
	}
}

// EnsurePartition guarantees the partition covering ts exists. Creation is
// serialized through the store's partition lock and re-checked under it, so
// two concurrent loaders never race on the same month.
func (m *PartitionManager) EnsurePartition(ctx context.Context, ts time.Time) error {
	want := domain.MonthPartitionFor(ts)

	m.mu.Lock()
	if m.known == nil {
		partitions, err := m.store.Partitions(ctx)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		m.known = make(map[string]domain.Partition, len(partitions))
		for _, p := range partitions {
			m.known[p.Name] = p
		}
	}
	_, exists := m.known[want.Name]
	m.mu.Unlock()

	if exists {
		return nil
	}
	if !m.autoExtend {
		return fmt.Errorf("%w: %s needs partition %s", domain.ErrPartitionGap,
			ts.UTC().Format(time.RFC3339), want.Name)
	}

	err := m.store.WithPartitionLock(ctx, want, func(ctx context.Context) error {
		// Another writer may have created it while we waited on the lock.
		partitions, err := m.store.Partitions(ctx)
		if err != nil {
			return err
		}
		for _, p := range partitions {
			if p.Name == want.Name {
				return nil
			}
		}
		log.Printf("creating partition %s [%s, %s)", want.Name,
			want.Start.Format("2006-01-02"), want.End.Format("2006-01-02"))
		return m.store.CreatePartition(ctx, want)
	})
	if err != nil {
		return fmt.Errorf("failed to ensure partition %s: %w", want.Name, err)
	}

	m.mu.Lock()
	m.known[want.Name] = want
	m.mu.Unlock()
	return nil
}

// MigrateUnpartitioned moves rows from a legacy flat fact table into the
// partitioned store. Idempotent: a missing flat table is a no-op. The flat
// table is only dropped after the copied row count matches its size;
// otherwise it is left untouched and ErrMigrationMismatch is returned.
func (m *PartitionManager) MigrateUnpartitioned(ctx context.Context, flatTable string) error {
	exists, err := m.store.FlatTableExists(ctx, flatTable)
	if err != nil {
		return err
	}
	if !exists {
		log.Printf("flat table %s not found, nothing to migrate", flatTable)
		return nil
	}

	total, err := m.store.FlatRowCount(ctx, flatTable)
	if err != nil {
		return err
	}
	if total == 0 {
		log.Printf("flat table %s is empty, dropping", flatTable)
		return m.store.DropFlatTable(ctx, flatTable)
	}

	min, max, ok, err := m.store.FlatTimestampRange(ctx, flatTable)
	if err != nil {
		return err
	}
	if ok {
		for month := domain.MonthPartitionFor(min); !month.Start.After(max); month = domain.MonthPartitionFor(month.End) {
			if err := m.EnsurePartition(ctx, month.Start); err != nil {
				return err
			}
		}
	}

	copied, err := m.store.CopyFlatIntoPartitioned(ctx, flatTable)
	if err != nil {
		return err
	}
	if copied != total {
		return fmt.Errorf("%w: flat table %s has %d rows, copied %d",
			domain.ErrMigrationMismatch, flatTable, total, copied)
	}

	log.Printf("migrated %d rows from %s into partitioned store", copied, flatTable)
	return m.store.DropFlatTable(ctx, flatTable)
}
