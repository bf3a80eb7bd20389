package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// SourceRow is one normalized input record as handed over by a source
// collaborator (CSV/XLSX reader). Fields are kept as raw strings so the rule
// engine can report format failures with the original payload intact.
type SourceRow struct {
	LineNumber  int    `json:"line_number"`
	InvoiceNo   string `json:"invoice_no"`
	StockCode   string `json:"stock_code"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Timestamp   string `json:"timestamp"`
	CustomerID  string `json:"customer_id"`
	Country     string `json:"country"`
}

// sourceTimeLayouts are the timestamp formats accepted from source files.
var sourceTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"02/01/2006 15:04:05",
}

// Field returns the raw value of a named field. Rule conditions address
// fields by these names.
func (r SourceRow) Field(name string) (string, bool) {
	switch name {
	case "invoice_no":
		return r.InvoiceNo, true
	case "stock_code":
		return r.StockCode, true
	case "description":
		return r.Description, true
	case "quantity":
		return r.Quantity, true
	case "unit_price":
		return r.UnitPrice, true
	case "timestamp":
		return r.Timestamp, true
	case "customer_id":
		return r.CustomerID, true
	case "country":
		return r.Country, true
	default:
		return "", false
	}
}

// SourceFieldNames lists the addressable fields of a SourceRow in input
// order. Rule configurations are validated against this set.
var SourceFieldNames = []string{
	"invoice_no", "stock_code", "description", "quantity",
	"unit_price", "timestamp", "customer_id", "country",
}

// IsEmpty reports whether every field of the row is blank.
func (r SourceRow) IsEmpty() bool {
	return strings.TrimSpace(r.InvoiceNo) == "" &&
		strings.TrimSpace(r.StockCode) == "" &&
		strings.TrimSpace(r.Description) == "" &&
		strings.TrimSpace(r.Quantity) == "" &&
		strings.TrimSpace(r.UnitPrice) == "" &&
		strings.TrimSpace(r.Timestamp) == "" &&
		strings.TrimSpace(r.CustomerID) == "" &&
		strings.TrimSpace(r.Country) == ""
}

// Fingerprint identifies exact duplicate rows within a batch. Line number is
// deliberately excluded.
func (r SourceRow) Fingerprint() string {
	return strings.Join([]string{
		strings.TrimSpace(r.InvoiceNo),
		strings.TrimSpace(r.StockCode),
		strings.TrimSpace(r.Description),
		strings.TrimSpace(r.Quantity),
		strings.TrimSpace(r.UnitPrice),
		strings.TrimSpace(r.Timestamp),
		strings.TrimSpace(r.CustomerID),
		strings.TrimSpace(r.Country),
	}, "\x1f")
}

// ParseQuantity parses the quantity field as an integer.
func (r SourceRow) ParseQuantity() (int, error) {
	v := strings.TrimSpace(r.Quantity)
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	// Some exports carry quantities as floats ("3.0").
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// ParseUnitPrice parses the unit price field.
func (r SourceRow) ParseUnitPrice() (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(r.UnitPrice), 64)
}

// ParseTimestamp parses the timestamp field against the accepted layouts.
func (r SourceRow) ParseTimestamp() (time.Time, error) {
	v := strings.TrimSpace(r.Timestamp)
	var lastErr error
	for _, layout := range sourceTimeLayouts {
		ts, err := time.Parse(layout, v)
		if err == nil {
			return ts.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ParseCustomerID parses the optional customer identifier. The second return
// is false when the field is blank (guest purchase).
func (r SourceRow) ParseCustomerID() (int64, bool, error) {
	v := strings.TrimSpace(r.CustomerID)
	if v == "" {
		return 0, false, nil
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n, true, nil
	}
	// Customer ids frequently arrive as floats ("17850.0").
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false, err
	}
	return int64(f), true, nil
}

// RawJSON serializes the original payload for the quarantine audit trail.
func (r SourceRow) RawJSON() ([]byte, error) {
	return json.Marshal(r)
}
