package warehouse

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
	"github.com/rpattn/retaildwh/internal/repository"
	"github.com/rpattn/retaildwh/internal/rules"
)

type pipelineFixture struct {
	pipeline   *Pipeline
	staging    *memStaging
	quarantine *memQuarantine
	metrics    *memMetrics
	dims       *memDimensions
	facts      *memFacts
	store      *memPartitionStore
	batches    *memBatchLog
	views      []*stubView
}

func newPipelineFixture(autoExtend bool) *pipelineFixture {
	f := &pipelineFixture{
		staging:    &memStaging{},
		quarantine: &memQuarantine{},
		metrics:    &memMetrics{},
		dims:       newMemDimensions(),
		facts:      newMemFacts(),
		store:      &memPartitionStore{},
		batches:    newMemBatchLog(),
		views: []*stubView{
			{name: "mv_monthly_sales_summary"},
			{name: "mv_top_products"},
		},
	}

	refreshables := make([]repository.RefreshableView, len(f.views))
	for i, v := range f.views {
		refreshables[i] = v
	}

	partitions := NewPartitionManager(f.store, autoExtend)
	f.pipeline = NewPipeline(
		rules.Default(),
		NewLedger(f.batches),
		f.staging,
		f.quarantine,
		f.metrics,
		NewDimensionMerger(f.staging, f.dims),
		NewFactLoader(f.staging, f.dims, f.facts, f.quarantine, partitions),
		NewAggregateRefresher(refreshables),
	)
	return f
}

// scenarioRows is the canonical mixed batch: 7 valid rows spanning two
// products, two identified customers plus one guest, three consecutive days;
// two rows missing the invoice number and one with a negative price.
func scenarioRows() []domain.SourceRow {
	valid := func(line int, invoice, stock, qty, price, ts, customer string) domain.SourceRow {
		return domain.SourceRow{
			LineNumber:  line,
			InvoiceNo:   invoice,
			StockCode:   stock,
			Description: "ASSORTED COLOUR BIRD ORNAMENT",
			Quantity:    qty,
			UnitPrice:   price,
			Timestamp:   ts,
			CustomerID:  customer,
			Country:     "United Kingdom",
		}
	}
	return []domain.SourceRow{
		valid(2, "536365", "85123A", "6", "2.55", "2010-12-01 08:26:00", "17850"),
		valid(3, "536365", "71053", "8", "3.39", "2010-12-01 08:26:00", "17850"),
		valid(4, "536366", "85123A", "2", "2.55", "2010-12-01 08:28:00", "17850"),
		valid(5, "536367", "71053", "12", "3.39", "2010-12-02 10:03:00", "13047"),
		valid(6, "536368", "85123A", "4", "2.55", "2010-12-02 10:05:00", "13047"),
		valid(7, "536369", "71053", "3", "3.39", "2010-12-03 11:45:00", "13047"),
		valid(8, "536370", "85123A", "24", "2.55", "2010-12-03 12:00:00", ""), // guest
		valid(9, "", "22752", "2", "7.65", "2010-12-01 09:00:00", "17850"),
		valid(10, " ", "21730", "6", "4.25", "2010-12-02 09:02:00", "13047"),
		valid(11, "536371", "22633", "6", "-1.85", "2010-12-03 09:02:00", "17850"),
	}
}

func TestPipelineScenario(t *testing.T) {
	f := newPipelineFixture(true)
	ctx := context.Background()

	record, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{SourceFile: "retail.csv"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.Status != domain.BatchStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s (%s)", record.Status, record.ErrorDetail)
	}
	if record.RowsExtracted != 10 {
		t.Fatalf("expected 10 extracted, got %d", record.RowsExtracted)
	}
	if record.RowsLoaded != 7 {
		t.Fatalf("expected 7 loaded, got %d", record.RowsLoaded)
	}
	if record.RowsQuarantined != 3 {
		t.Fatalf("expected 3 quarantined, got %d", record.RowsQuarantined)
	}

	if n, _ := f.facts.Count(ctx); n != 7 {
		t.Fatalf("expected 7 fact rows, got %d", n)
	}
	if len(f.dims.products) != 2 {
		t.Fatalf("expected 2 product entities, got %d", len(f.dims.products))
	}
	if len(f.dims.customers) != 3 {
		t.Fatalf("expected 2 customers plus guest, got %d", len(f.dims.customers))
	}
	if len(f.dims.dates) != 3 {
		t.Fatalf("expected 3 date entities, got %d", len(f.dims.dates))
	}
	if _, ok := f.dims.customers[domain.GuestCustomerHash()]; !ok {
		t.Fatal("guest sentinel entity must exist")
	}

	records, _ := f.quarantine.List(ctx, domain.QuarantineFilter{BatchID: record.BatchID})
	if len(records) != 3 {
		t.Fatalf("expected 3 quarantine records, got %d", len(records))
	}
	byRule := map[string]int{}
	for _, r := range records {
		byRule[r.RuleName]++
	}
	if byRule["missing_invoice_no"] != 2 || byRule["negative_unit_price"] != 1 {
		t.Fatalf("unexpected quarantine rules: %v", byRule)
	}

	metrics, _ := f.metrics.ListByBatch(ctx, record.BatchID)
	if len(metrics) != len(rules.Default().Rules) {
		t.Fatalf("expected one metric per rule, got %d", len(metrics))
	}

	for _, v := range f.views {
		if v.refreshes != 1 {
			t.Fatalf("view %s refreshed %d times", v.name, v.refreshes)
		}
	}
	if f.store.created == 0 {
		t.Fatal("expected the December 2010 partition to be created")
	}
}

func TestPipelineRerunIsIdempotent(t *testing.T) {
	f := newPipelineFixture(true)
	ctx := context.Background()

	first, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{SourceFile: "retail.csv"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	second, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{SourceFile: "retail.csv"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.BatchID == first.BatchID {
		t.Fatal("each run gets its own batch id")
	}

	if second.RowsLoaded != 0 {
		t.Fatalf("re-run must load 0 new facts, got %d", second.RowsLoaded)
	}
	if n, _ := f.facts.Count(ctx); n != 7 {
		t.Fatalf("fact store must still hold 7 rows, got %d", n)
	}
	if len(f.dims.products) != 2 || len(f.dims.customers) != 3 || len(f.dims.dates) != 3 {
		t.Fatalf("re-merge must not add dimension entities: %d/%d/%d",
			len(f.dims.products), len(f.dims.customers), len(f.dims.dates))
	}

	// The three bad rows are quarantined again under the new batch id.
	records, _ := f.quarantine.List(ctx, domain.QuarantineFilter{BatchID: second.BatchID})
	if len(records) != 3 {
		t.Fatalf("expected 3 re-quarantined rows, got %d", len(records))
	}
}

func TestPipelineSurrogateKeysStableAcrossMerges(t *testing.T) {
	f := newPipelineFixture(true)
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	before, _ := f.dims.ProductKeys(ctx)

	if _, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	after, _ := f.dims.ProductKeys(ctx)

	for hash, key := range before {
		if after[hash] != key {
			t.Fatalf("surrogate key for %s changed from %d to %d", hash, key, after[hash])
		}
	}
}

func TestPipelinePartitionGapAbortsRun(t *testing.T) {
	f := newPipelineFixture(false) // auto-extension disabled, no partitions declared
	ctx := context.Background()

	_, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{})
	if !errors.Is(err, domain.ErrPartitionGap) {
		t.Fatalf("expected ErrPartitionGap, got %v", err)
	}

	if n, _ := f.facts.Count(ctx); n != 0 {
		t.Fatalf("no fact rows may be committed, got %d", n)
	}

	recent, _ := f.batches.ListRecent(ctx, 1)
	if len(recent) != 1 || recent[0].Status != domain.BatchStatusFailed {
		t.Fatalf("ledger must record the failure, got %+v", recent)
	}
	if recent[0].ErrorDetail == "" {
		t.Fatal("failed runs carry error detail")
	}
}

func TestPipelineMidBatchPartitionGapCommitsNothing(t *testing.T) {
	f := newPipelineFixture(false)
	ctx := context.Background()

	// The declared layout covers December 2010 only; the batch also carries
	// a January 2011 row.
	f.store.partitions = []domain.Partition{
		domain.MonthPartitionFor(time.Date(2010, 12, 1, 0, 0, 0, 0, time.UTC)),
	}
	rows := []domain.SourceRow{
		{LineNumber: 2, InvoiceNo: "536365", StockCode: "85123A", Description: "ASSORTED COLOUR BIRD ORNAMENT",
			Quantity: "6", UnitPrice: "2.55", Timestamp: "2010-12-01 08:26:00", CustomerID: "17850", Country: "United Kingdom"},
		{LineNumber: 3, InvoiceNo: "536366", StockCode: "71053", Description: "WHITE METAL LANTERN",
			Quantity: "8", UnitPrice: "3.39", Timestamp: "2010-12-02 10:03:00", CustomerID: "17850", Country: "United Kingdom"},
		{LineNumber: 4, InvoiceNo: "539999", StockCode: "85123A", Description: "ASSORTED COLOUR BIRD ORNAMENT",
			Quantity: "2", UnitPrice: "2.55", Timestamp: "2011-01-04 09:15:00", CustomerID: "13047", Country: "United Kingdom"},
	}

	_, err := f.pipeline.Run(ctx, rows, RunOptions{})
	if !errors.Is(err, domain.ErrPartitionGap) {
		t.Fatalf("expected ErrPartitionGap, got %v", err)
	}

	// The December rows had a partition, but the gap aborts the whole load
	// before any insert.
	if n, _ := f.facts.Count(ctx); n != 0 {
		t.Fatalf("no fact rows may be committed, got %d", n)
	}
	recent, _ := f.batches.ListRecent(ctx, 1)
	if len(recent) != 1 || recent[0].Status != domain.BatchStatusFailed {
		t.Fatalf("ledger must record the failure, got %+v", recent)
	}
}

func TestPipelineAllRowsQuarantinedKeepsCounts(t *testing.T) {
	f := newPipelineFixture(true)
	ctx := context.Background()

	// Every row is missing its invoice number.
	var rows []domain.SourceRow
	for i, stock := range []string{"22752", "21730", "22633"} {
		rows = append(rows, domain.SourceRow{
			LineNumber: i + 2, StockCode: stock, Description: "SET 7 BABUSHKA NESTING BOXES",
			Quantity: "2", UnitPrice: "7.65", Timestamp: "2010-12-01 09:00:00", CustomerID: "17850",
			Country: "United Kingdom",
		})
	}

	record, err := f.pipeline.Run(ctx, rows, RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.BatchStatusSuccess {
		t.Fatalf("a batch with input is SUCCESS even when fully rejected, got %s", record.Status)
	}
	if record.RowsExtracted != 3 {
		t.Fatalf("extracted count must report the real input size, got %d", record.RowsExtracted)
	}
	if record.RowsLoaded != 0 || record.RowsQuarantined != 3 {
		t.Fatalf("expected 0 loaded / 3 quarantined, got %d/%d",
			record.RowsLoaded, record.RowsQuarantined)
	}
}

func TestPipelineRerunKeepsDimensionAggregates(t *testing.T) {
	f := newPipelineFixture(true)
	ctx := context.Background()

	if _, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	productHash := domain.NaturalKeyHash("product", "71053")
	customerHash := domain.CustomerNaturalKey(17850)
	firstProduct := f.dims.productEntities[productHash]
	firstCustomer := f.dims.customerEntities[customerHash]
	if firstProduct.TimesSold != 3 {
		t.Fatalf("expected 3 sales of 71053, got %d", firstProduct.TimesSold)
	}

	if _, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	secondProduct := f.dims.productEntities[productHash]
	secondCustomer := f.dims.customerEntities[customerHash]

	// Re-staging the same batch must not double the measures.
	if secondProduct.TimesSold != firstProduct.TimesSold ||
		secondProduct.TotalQuantity != firstProduct.TotalQuantity ||
		secondProduct.TotalRevenue != firstProduct.TotalRevenue {
		t.Fatalf("product aggregates drifted on re-run: %+v -> %+v", firstProduct, secondProduct)
	}
	if secondCustomer.TotalSpent != firstCustomer.TotalSpent ||
		secondCustomer.TotalItems != firstCustomer.TotalItems {
		t.Fatalf("customer aggregates drifted on re-run: %+v -> %+v", firstCustomer, secondCustomer)
	}
}

func TestPipelineRecordsStaleAggregates(t *testing.T) {
	f := newPipelineFixture(true)
	f.views[1].err = errors.New("could not obtain lock on materialized view")
	ctx := context.Background()

	record, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.BatchStatusSuccess {
		t.Fatalf("a stale aggregate does not fail the batch, got %s", record.Status)
	}
	if !strings.Contains(record.ErrorDetail, "mv_top_products") {
		t.Fatalf("batch record must name the stale view, got %q", record.ErrorDetail)
	}
}

func TestPipelineNoDataRun(t *testing.T) {
	f := newPipelineFixture(true)

	record, err := f.pipeline.Run(context.Background(), nil, RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.BatchStatusNoData {
		t.Fatalf("expected SUCCESS_NO_DATA, got %s", record.Status)
	}
}

func TestPipelineIncrementalSkipsOldRows(t *testing.T) {
	f := newPipelineFixture(true)
	f.staging.watermark = time.Date(2010, 12, 2, 23, 59, 59, 0, time.UTC)
	f.staging.hasWatermark = true

	record, err := f.pipeline.Run(context.Background(), scenarioRows(), RunOptions{Incremental: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Only the Dec 3 rows survive the watermark: two valid sales and the
	// negative-price reject.
	if record.RowsExtracted != 3 {
		t.Fatalf("expected 3 extracted after watermark, got %d", record.RowsExtracted)
	}
	if record.RowsLoaded != 2 {
		t.Fatalf("expected 2 loaded, got %d", record.RowsLoaded)
	}
	if record.RowsQuarantined != 1 {
		t.Fatalf("expected 1 quarantined, got %d", record.RowsQuarantined)
	}
}

func TestPipelineRefusesConcurrentRun(t *testing.T) {
	f := newPipelineFixture(true)
	ctx := context.Background()

	// Simulate an in-flight run.
	if err := f.batches.Create(ctx, domain.BatchRecord{
		BatchID:   "20101201_000000_deadbeef",
		StartedAt: time.Now().UTC(),
		Status:    domain.BatchStatusRunning,
	}); err != nil {
		t.Fatal(err)
	}

	_, err := f.pipeline.Run(ctx, scenarioRows(), RunOptions{})
	if !errors.Is(err, domain.ErrRunInFlight) {
		t.Fatalf("expected ErrRunInFlight, got %v", err)
	}
}
