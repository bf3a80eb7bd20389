package warehouse

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"
)

// DimensionCounts reports how many entities each dimension holds after a
// merge.
type DimensionCounts struct {
	Products  int
	Customers int
	Dates     int
}

// DimensionMerger recomputes the three dimensions from the staged valid-row
// population. The three merges are independent and run concurrently; fact
// loading only starts after all of them finish.
type DimensionMerger struct {
	staging repository.StagingRepository
	dims    repository.DimensionRepository
}

func NewDimensionMerger(staging repository.StagingRepository, dims repository.DimensionRepository) *DimensionMerger {
	return &DimensionMerger{staging: staging, dims: dims}
}

// MergeAll runs the product, customer and date merges in parallel and
// returns the first error encountered.
func (m *DimensionMerger) MergeAll(ctx context.Context) (DimensionCounts, error) {
	var (
		wg     sync.WaitGroup
		counts DimensionCounts
		errs   = make([]error, 3)
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		counts.Products, errs[0] = m.mergeProducts(ctx)
	}()
	go func() {
		defer wg.Done()
		counts.Customers, errs[1] = m.mergeCustomers(ctx)
	}()
	go func() {
		defer wg.Done()
		counts.Dates, errs[2] = m.mergeDates(ctx)
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return DimensionCounts{}, err
		}
	}
	log.Printf("dimensions merged: %d products, %d customers, %d dates",
		counts.Products, counts.Customers, counts.Dates)
	return counts, nil
}

func (m *DimensionMerger) mergeProducts(ctx context.Context) (int, error) {
	entities, err := m.staging.ProductAggregates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate products: %w", err)
	}
	for _, entity := range entities {
		if _, err := m.dims.UpsertProduct(ctx, entity); err != nil {
			return 0, fmt.Errorf("failed to upsert product %s: %w", entity.StockCode, err)
		}
	}
	return len(entities), nil
}

func (m *DimensionMerger) mergeCustomers(ctx context.Context) (int, error) {
	entities, err := m.staging.CustomerAggregates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate customers: %w", err)
	}
	for _, entity := range entities {
		if _, err := m.dims.UpsertCustomer(ctx, entity); err != nil {
			return 0, fmt.Errorf("failed to upsert customer: %w", err)
		}
	}

	guest, err := m.staging.GuestAggregate(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate guest purchases: %w", err)
	}
	if guest == nil {
		// The guest entity always exists so guest rows resolve even when
		// no guest purchase has been staged yet.
		guest = &domain.CustomerEntity{
			NaturalKeyHash: domain.GuestCustomerHash(),
			IsGuest:        true,
			Country:        domain.UnknownCountry,
		}
	}
	if _, err := m.dims.UpsertCustomer(ctx, *guest); err != nil {
		return 0, fmt.Errorf("failed to upsert guest customer: %w", err)
	}
	return len(entities) + 1, nil
}

func (m *DimensionMerger) mergeDates(ctx context.Context) (int, error) {
	min, max, ok, err := m.staging.ObservedDateRange(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read observed date range: %w", err)
	}
	if !ok {
		return 0, nil
	}
	// Eager: one entity per calendar day across the whole observed range,
	// gaps included, so date keys never go missing mid-load.
	dates := domain.DateRange(min, max)
	if err := m.dims.EnsureDates(ctx, dates); err != nil {
		return 0, fmt.Errorf("failed to ensure date dimension: %w", err)
	}
	return len(dates), nil
}
