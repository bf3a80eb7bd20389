package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuarantineRecord preserves a rejected row together with the rule that
// rejected it. Records are append-only and retained indefinitely for audit.
type QuarantineRecord struct {
	ID            uuid.UUID `json:"id"`
	BatchID       string    `json:"batch_id"`
	RuleName      string    `json:"rule_name"`
	RuleCategory  string    `json:"rule_category"`
	Reason        string    `json:"reason"`
	Severity      string    `json:"severity"`
	QuarantinedAt time.Time `json:"quarantined_at"`

	// Original payload, both broken out for querying and as raw JSON.
	InvoiceNo   string `json:"invoice_no"`
	StockCode   string `json:"stock_code"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	Timestamp   string `json:"timestamp"`
	UnitPrice   string `json:"unit_price"`
	CustomerID  string `json:"customer_id"`
	Country     string `json:"country"`
	RawRowJSON  []byte `json:"raw_row_json"`
}

// NewQuarantineRecord captures a source row rejected by a rule.
func NewQuarantineRecord(src SourceRow, batchID, ruleName, category, reason, severity string, at time.Time) QuarantineRecord {
	raw, err := src.RawJSON()
	if err != nil {
		raw = []byte("{}")
	}
	return QuarantineRecord{
		ID:            uuid.New(),
		BatchID:       batchID,
		RuleName:      ruleName,
		RuleCategory:  category,
		Reason:        reason,
		Severity:      severity,
		QuarantinedAt: at.UTC(),
		InvoiceNo:     src.InvoiceNo,
		StockCode:     src.StockCode,
		Description:   src.Description,
		Quantity:      src.Quantity,
		Timestamp:     src.Timestamp,
		UnitPrice:     src.UnitPrice,
		CustomerID:    src.CustomerID,
		Country:       src.Country,
		RawRowJSON:    raw,
	}
}

// QuarantineFilter narrows quarantine queries; zero values match everything.
type QuarantineFilter struct {
	BatchID  string
	RuleName string
	Reason   string
	Limit    int
	Offset   int
}
