package domain

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// UnknownDescription replaces blank product descriptions at staging time.
	UnknownDescription = "UNKNOWN PRODUCT"
	// UnknownCountry replaces blank countries at staging time.
	UnknownCountry = "Unknown"
	// CancellationPrefix marks cancelled invoices by convention of the source
	// system.
	CancellationPrefix = "C"
)

var titleCaser = cases.Title(language.English)

// StagedRow is one accepted, normalized line item. Immutable after staging;
// carries the batch that produced it.
type StagedRow struct {
	InvoiceNo   string    `json:"invoice_no"`
	StockCode   string    `json:"stock_code"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	InvoiceDate time.Time `json:"invoice_date"`
	UnitPrice   float64   `json:"unit_price"`
	CustomerID  *int64    `json:"customer_id,omitempty"`
	Country     string    `json:"country"`

	LineTotal float64 `json:"line_total"`

	IsCancellation  bool `json:"is_cancellation"`
	IsAdjustment    bool `json:"is_adjustment"`
	IsGuestPurchase bool `json:"is_guest_purchase"`
	IsValidSale     bool `json:"is_valid_sale"`
	IsReturn        bool `json:"is_return"`

	Flags []string `json:"flags,omitempty"`

	LoadedAt   time.Time `json:"loaded_at"`
	BatchID    string    `json:"batch_id"`
	SourceFile string    `json:"source_file,omitempty"`
}

// NewStagedRow builds a StagedRow from an already-validated source row. The
// caller guarantees quantity, price and timestamp parse; a parse failure here
// indicates a rule configuration that let a malformed row through.
func NewStagedRow(src SourceRow, batchID, sourceFile string, loadedAt time.Time) (StagedRow, error) {
	quantity, err := src.ParseQuantity()
	if err != nil {
		return StagedRow{}, err
	}
	unitPrice, err := src.ParseUnitPrice()
	if err != nil {
		return StagedRow{}, err
	}
	invoiceDate, err := src.ParseTimestamp()
	if err != nil {
		return StagedRow{}, err
	}
	customerID, hasCustomer, err := src.ParseCustomerID()
	if err != nil {
		return StagedRow{}, err
	}

	row := StagedRow{
		InvoiceNo:   strings.ToUpper(strings.TrimSpace(src.InvoiceNo)),
		StockCode:   strings.ToUpper(strings.TrimSpace(src.StockCode)),
		Description: normalizeDescription(src.Description),
		Quantity:    quantity,
		InvoiceDate: invoiceDate,
		UnitPrice:   roundMoney(unitPrice),
		Country:     normalizeCountry(src.Country),
		LoadedAt:    loadedAt.UTC(),
		BatchID:     batchID,
		SourceFile:  sourceFile,
	}
	if hasCustomer {
		row.CustomerID = &customerID
	}

	row.LineTotal = roundMoney(float64(row.Quantity) * row.UnitPrice)
	row.IsCancellation = strings.HasPrefix(row.InvoiceNo, CancellationPrefix)
	row.IsGuestPurchase = !hasCustomer
	row.IsAdjustment = row.Quantity < 0 && !row.IsCancellation && row.UnitPrice == 0 && !hasCustomer
	row.IsValidSale = row.Quantity > 0 && row.UnitPrice > 0 && !row.IsCancellation
	row.IsReturn = row.Quantity < 0 && !row.IsAdjustment

	return row, nil
}

// WithFlags returns a copy carrying cumulative rule annotations.
func (r StagedRow) WithFlags(flags []string) StagedRow {
	if len(flags) == 0 {
		return r
	}
	r.Flags = append([]string(nil), flags...)
	return r
}

// ProductNaturalKey returns the hash identifying this row's product.
func (r StagedRow) ProductNaturalKey() string {
	return NaturalKeyHash("product", r.StockCode)
}

// CustomerNaturalKey returns the hash identifying this row's customer, or the
// guest sentinel when the row has no customer identifier.
func (r StagedRow) CustomerNaturalKey() string {
	if r.CustomerID == nil {
		return GuestCustomerHash()
	}
	return CustomerNaturalKey(*r.CustomerID)
}

// BusinessKey returns the composite fact-row uniqueness hash.
func (r StagedRow) BusinessKey() string {
	return BusinessKeyHash(r.InvoiceNo, r.StockCode, r.InvoiceDate, r.Quantity, r.UnitPrice)
}

func normalizeDescription(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownDescription
	}
	return s
}

func normalizeCountry(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return UnknownCountry
	}
	return titleCaser.String(strings.ToLower(s))
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
