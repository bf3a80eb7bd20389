package domain

import "time"

// LoadResult reports the outcome of loading one fact row.
type LoadResult int

const (
	// LoadInserted means the row was new and committed.
	LoadInserted LoadResult = iota
	// LoadSkippedDuplicate means a row with the same business key already
	// exists; the pre-existing row is authoritative.
	LoadSkippedDuplicate
)

// String implements fmt.Stringer.
func (r LoadResult) String() string {
	switch r {
	case LoadInserted:
		return "inserted"
	case LoadSkippedDuplicate:
		return "skipped_duplicate"
	default:
		return "unknown"
	}
}

// FactRow is one line item in the fact store, referencing the three
// dimension surrogate keys and carrying its deduplication hash and lineage.
type FactRow struct {
	DateKey     int64  `json:"date_key"`
	ProductKey  int64  `json:"product_key"`
	CustomerKey int64  `json:"customer_key"`
	BusinessKey string `json:"business_key_hash"`

	InvoiceNo        string    `json:"invoice_no"`
	StockCode        string    `json:"stock_code"`
	InvoiceTimestamp time.Time `json:"invoice_timestamp"`

	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`

	IsCancellation bool `json:"is_cancellation"`
	IsReturn       bool `json:"is_return"`
	IsValidSale    bool `json:"is_valid_sale"`
	IsGuest        bool `json:"is_guest"`

	BatchID  string    `json:"batch_id"`
	LoadedAt time.Time `json:"loaded_at"`
}
