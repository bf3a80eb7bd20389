package domain

import "time"

// RuleMetric is one per-rule, per-batch execution record emitted by the rule
// engine.
type RuleMetric struct {
	BatchID         string    `json:"batch_id"`
	RuleName        string    `json:"rule_name"`
	RuleCategory    string    `json:"rule_category"`
	RowsProcessed   int       `json:"rows_processed"`
	RowsPassed      int       `json:"rows_passed"`
	RowsQuarantined int       `json:"rows_quarantined"`
	RowsDropped     int       `json:"rows_dropped"`
	RowsFlagged     int       `json:"rows_flagged"`
	ExecutedAt      time.Time `json:"executed_at"`
	Notes           string    `json:"notes,omitempty"`
}
