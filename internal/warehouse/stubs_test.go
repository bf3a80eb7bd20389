package warehouse

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"
)

// In-memory repository stubs backing the pipeline tests.

type memStaging struct {
	mu   sync.Mutex
	rows []domain.StagedRow

	watermark    time.Time
	hasWatermark bool
}

var _ repository.StagingRepository = (*memStaging)(nil)

func (m *memStaging) InsertRows(_ context.Context, rows []domain.StagedRow) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, rows...)
	return len(rows), nil
}

// validRows mirrors the store: re-staged copies of the same line item
// collapse to one contribution per business key.
func (m *memStaging) validRows() []domain.StagedRow {
	seen := map[string]bool{}
	var out []domain.StagedRow
	for _, r := range m.rows {
		if !r.IsValidSale || seen[r.BusinessKey()] {
			continue
		}
		seen[r.BusinessKey()] = true
		out = append(out, r)
	}
	return out
}

func (m *memStaging) ProductAggregates(context.Context) ([]domain.ProductEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCode := map[string]*domain.ProductEntity{}
	for _, r := range m.validRows() {
		e, ok := byCode[r.StockCode]
		if !ok {
			e = &domain.ProductEntity{
				NaturalKeyHash: r.ProductNaturalKey(),
				StockCode:      r.StockCode,
				MinUnitPrice:   r.UnitPrice,
				FirstSoldAt:    r.InvoiceDate,
				LastSoldAt:     r.InvoiceDate,
			}
			byCode[r.StockCode] = e
		}
		e.Description = r.Description
		e.TimesSold++
		e.TotalQuantity += int64(r.Quantity)
		e.TotalRevenue += r.LineTotal
		if r.UnitPrice < e.MinUnitPrice {
			e.MinUnitPrice = r.UnitPrice
		}
		if r.UnitPrice > e.MaxUnitPrice {
			e.MaxUnitPrice = r.UnitPrice
		}
		if r.InvoiceDate.Before(e.FirstSoldAt) {
			e.FirstSoldAt = r.InvoiceDate
		}
		if r.InvoiceDate.After(e.LastSoldAt) {
			e.LastSoldAt = r.InvoiceDate
		}
	}

	var out []domain.ProductEntity
	for _, e := range byCode {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StockCode < out[j].StockCode })
	return out, nil
}

func (m *memStaging) CustomerAggregates(context.Context) ([]domain.CustomerEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byID := map[int64]*domain.CustomerEntity{}
	for _, r := range m.validRows() {
		if r.CustomerID == nil {
			continue
		}
		id := *r.CustomerID
		e, ok := byID[id]
		if !ok {
			cid := id
			e = &domain.CustomerEntity{
				NaturalKeyHash:  domain.CustomerNaturalKey(id),
				CustomerID:      &cid,
				FirstPurchaseAt: r.InvoiceDate,
				LastPurchaseAt:  r.InvoiceDate,
			}
			byID[id] = e
		}
		e.Country = r.Country
		e.TotalOrders++
		e.TotalItems += int64(r.Quantity)
		e.TotalSpent += r.LineTotal
	}

	var out []domain.CustomerEntity
	for _, e := range byID {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].CustomerID < *out[j].CustomerID })
	return out, nil
}

func (m *memStaging) GuestAggregate(context.Context) (*domain.CustomerEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := domain.CustomerEntity{
		NaturalKeyHash: domain.GuestCustomerHash(),
		IsGuest:        true,
		Country:        domain.UnknownCountry,
	}
	for _, r := range m.validRows() {
		if r.CustomerID != nil {
			continue
		}
		e.TotalOrders++
		e.TotalItems += int64(r.Quantity)
		e.TotalSpent += r.LineTotal
	}
	if e.TotalOrders == 0 {
		return nil, nil
	}
	return &e, nil
}

func (m *memStaging) ObservedDateRange(context.Context) (time.Time, time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var min, max time.Time
	for _, r := range m.rows {
		if min.IsZero() || r.InvoiceDate.Before(min) {
			min = r.InvoiceDate
		}
		if r.InvoiceDate.After(max) {
			max = r.InvoiceDate
		}
	}
	return min, max, !min.IsZero(), nil
}

func (m *memStaging) RowsForBatch(_ context.Context, batchID string) ([]domain.StagedRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.StagedRow
	for _, r := range m.rows {
		if r.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStaging) LastLoadedTimestamp(context.Context) (time.Time, bool, error) {
	return m.watermark, m.hasWatermark, nil
}

type memQuarantine struct {
	mu      sync.Mutex
	records []domain.QuarantineRecord
}

var _ repository.QuarantineRepository = (*memQuarantine)(nil)

func (m *memQuarantine) Insert(_ context.Context, records []domain.QuarantineRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
	return nil
}

func (m *memQuarantine) List(_ context.Context, filter domain.QuarantineFilter) ([]domain.QuarantineRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.QuarantineRecord
	for _, r := range m.records {
		if filter.BatchID != "" && r.BatchID != filter.BatchID {
			continue
		}
		if filter.RuleName != "" && r.RuleName != filter.RuleName {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memQuarantine) CountByBatch(_ context.Context, batchID string) (int64, error) {
	records, _ := m.List(context.Background(), domain.QuarantineFilter{BatchID: batchID})
	return int64(len(records)), nil
}

type memMetrics struct {
	mu      sync.Mutex
	metrics []domain.RuleMetric
}

var _ repository.MetricsRepository = (*memMetrics)(nil)

func (m *memMetrics) Insert(_ context.Context, metrics []domain.RuleMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = append(m.metrics, metrics...)
	return nil
}

func (m *memMetrics) ListByBatch(_ context.Context, batchID string) ([]domain.RuleMetric, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.RuleMetric
	for _, metric := range m.metrics {
		if metric.BatchID == batchID {
			out = append(out, metric)
		}
	}
	return out, nil
}

type memDimensions struct {
	mu        sync.Mutex
	products  map[string]int64
	customers map[string]int64
	dates     map[string]int64
	nextKey   int64

	productEntities  map[string]domain.ProductEntity
	customerEntities map[string]domain.CustomerEntity
}

var _ repository.DimensionRepository = (*memDimensions)(nil)

func newMemDimensions() *memDimensions {
	return &memDimensions{
		products:         map[string]int64{},
		customers:        map[string]int64{},
		dates:            map[string]int64{},
		productEntities:  map[string]domain.ProductEntity{},
		customerEntities: map[string]domain.CustomerEntity{},
	}
}

func (m *memDimensions) assign(keys map[string]int64, hash string) int64 {
	if key, ok := keys[hash]; ok {
		return key
	}
	m.nextKey++
	keys[hash] = m.nextKey
	return m.nextKey
}

func (m *memDimensions) UpsertProduct(_ context.Context, e domain.ProductEntity) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productEntities[e.NaturalKeyHash] = e
	return m.assign(m.products, e.NaturalKeyHash), nil
}

func (m *memDimensions) UpsertCustomer(_ context.Context, e domain.CustomerEntity) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customerEntities[e.NaturalKeyHash] = e
	return m.assign(m.customers, e.NaturalKeyHash), nil
}

func (m *memDimensions) EnsureDates(_ context.Context, dates []domain.DateEntity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range dates {
		m.assign(m.dates, d.NaturalKeyHash)
	}
	return nil
}

func copyKeys(src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func (m *memDimensions) ProductKeys(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyKeys(m.products), nil
}

func (m *memDimensions) CustomerKeys(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyKeys(m.customers), nil
}

func (m *memDimensions) DateKeys(context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyKeys(m.dates), nil
}

type memFacts struct {
	mu   sync.Mutex
	rows map[string]domain.FactRow
}

var _ repository.FactRepository = (*memFacts)(nil)

func newMemFacts() *memFacts {
	return &memFacts{rows: map[string]domain.FactRow{}}
}

func (m *memFacts) Insert(_ context.Context, row domain.FactRow) (domain.LoadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rows[row.BusinessKey]; exists {
		return domain.LoadSkippedDuplicate, nil
	}
	m.rows[row.BusinessKey] = row
	return domain.LoadInserted, nil
}

func (m *memFacts) Count(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

func (m *memFacts) CountByBatch(_ context.Context, batchID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.BatchID == batchID {
			n++
		}
	}
	return n, nil
}

type memPartitionStore struct {
	mu         sync.Mutex
	partitions []domain.Partition
	created    int

	flatExists   bool
	flatRows     int64
	flatMin      time.Time
	flatMax      time.Time
	flatDropped  bool
	copyOverride *int64
}

var _ repository.PartitionedStore = (*memPartitionStore)(nil)

func (m *memPartitionStore) Partitions(context.Context) ([]domain.Partition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Partition(nil), m.partitions...), nil
}

func (m *memPartitionStore) CreatePartition(_ context.Context, p domain.Partition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions = append(m.partitions, p)
	m.created++
	return nil
}

func (m *memPartitionStore) WithPartitionLock(ctx context.Context, _ domain.Partition, fn func(context.Context) error) error {
	return fn(ctx)
}

func (m *memPartitionStore) FlatTableExists(context.Context, string) (bool, error) {
	return m.flatExists, nil
}

func (m *memPartitionStore) FlatRowCount(context.Context, string) (int64, error) {
	return m.flatRows, nil
}

func (m *memPartitionStore) FlatTimestampRange(context.Context, string) (time.Time, time.Time, bool, error) {
	if m.flatRows == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	return m.flatMin, m.flatMax, true, nil
}

func (m *memPartitionStore) CopyFlatIntoPartitioned(context.Context, string) (int64, error) {
	if m.copyOverride != nil {
		return *m.copyOverride, nil
	}
	return m.flatRows, nil
}

func (m *memPartitionStore) DropFlatTable(context.Context, string) error {
	m.flatDropped = true
	m.flatExists = false
	return nil
}

type memBatchLog struct {
	mu      sync.Mutex
	records map[string]domain.BatchRecord
	order   []string
}

var _ repository.BatchLogRepository = (*memBatchLog)(nil)

func newMemBatchLog() *memBatchLog {
	return &memBatchLog{records: map[string]domain.BatchRecord{}}
}

func (m *memBatchLog) Create(_ context.Context, record domain.BatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.BatchID] = record
	m.order = append(m.order, record.BatchID)
	return nil
}

func (m *memBatchLog) Finalize(_ context.Context, record domain.BatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[record.BatchID]
	if !ok || existing.Status != domain.BatchStatusRunning {
		return errors.New("batch is not running")
	}
	m.records[record.BatchID] = record
	return nil
}

func (m *memBatchLog) HasRunning(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Status == domain.BatchStatusRunning {
			return true, nil
		}
	}
	return false, nil
}

func (m *memBatchLog) GetByID(_ context.Context, batchID string) (domain.BatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[batchID]
	if !ok {
		return domain.BatchRecord{}, errors.New("not found")
	}
	return r, nil
}

func (m *memBatchLog) ListRecent(_ context.Context, limit int) ([]domain.BatchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BatchRecord
	for i := len(m.order) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.records[m.order[i]])
	}
	return out, nil
}

type stubView struct {
	name      string
	err       error
	refreshes int
	delay     time.Duration
}

var _ repository.RefreshableView = (*stubView)(nil)

func (v *stubView) Name() string { return v.name }

func (v *stubView) Refresh(context.Context) error {
	if v.delay > 0 {
		time.Sleep(v.delay)
	}
	v.refreshes++
	return v.err
}
