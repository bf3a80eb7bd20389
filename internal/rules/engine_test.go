package rules

import (
	"testing"
	"time"

	"github.com/rpattn/retaildwh/internal/domain"
)

var testAsOf = time.Date(2011, 1, 10, 12, 0, 0, 0, time.UTC)

func validRow() domain.SourceRow {
	return domain.SourceRow{
		InvoiceNo:   "536365",
		StockCode:   "85123A",
		Description: "WHITE HANGING HEART T-LIGHT HOLDER",
		Quantity:    "6",
		UnitPrice:   "2.55",
		Timestamp:   "2010-12-01 08:26:00",
		CustomerID:  "17850",
		Country:     "United Kingdom",
	}
}

func TestEngineAcceptsValidRow(t *testing.T) {
	engine := NewEngine(Default(), testAsOf)

	d := engine.Evaluate(validRow())
	if d.Outcome != OutcomeAccept {
		t.Fatalf("expected accept, got %v via %s (%s)", d.Outcome, d.RuleName, d.Reason)
	}
	if len(d.Flags) != 0 {
		t.Fatalf("unexpected flags %v", d.Flags)
	}
}

func TestEngineQuarantines(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*domain.SourceRow)
		wantRule string
	}{
		{"missing invoice", func(r *domain.SourceRow) { r.InvoiceNo = "  " }, "missing_invoice_no"},
		{"missing stock code", func(r *domain.SourceRow) { r.StockCode = "" }, "missing_stock_code"},
		{"bad timestamp", func(r *domain.SourceRow) { r.Timestamp = "yesterday" }, "unparseable_timestamp"},
		{"non numeric quantity", func(r *domain.SourceRow) { r.Quantity = "six" }, "non_numeric_quantity"},
		{"negative price", func(r *domain.SourceRow) { r.UnitPrice = "-1.00" }, "negative_unit_price"},
		{"zero quantity", func(r *domain.SourceRow) { r.Quantity = "0" }, "zero_quantity"},
		{"suspicious price", func(r *domain.SourceRow) { r.UnitPrice = "12000"; r.Quantity = "1" }, "suspicious_unit_price"},
		{"future timestamp", func(r *domain.SourceRow) { r.Timestamp = "2011-02-01 00:00:00" }, "future_timestamp"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewEngine(Default(), testAsOf)
			row := validRow()
			tc.mutate(&row)

			d := engine.Evaluate(row)
			if d.Outcome != OutcomeQuarantine {
				t.Fatalf("expected quarantine, got %v", d.Outcome)
			}
			if d.RuleName != tc.wantRule {
				t.Fatalf("expected rule %s, got %s", tc.wantRule, d.RuleName)
			}
			if d.Reason == "" {
				t.Fatal("quarantine dispositions carry a reason")
			}
		})
	}
}

func TestEngineDropsEmptyRow(t *testing.T) {
	engine := NewEngine(Default(), testAsOf)

	d := engine.Evaluate(domain.SourceRow{LineNumber: 5})
	if d.Outcome != OutcomeDrop {
		t.Fatalf("expected drop, got %v", d.Outcome)
	}
	if d.RuleName != "drop_empty_row" {
		t.Fatalf("expected drop_empty_row, got %s", d.RuleName)
	}
}

func TestEngineDropsExactDuplicateWithinBatch(t *testing.T) {
	engine := NewEngine(Default(), testAsOf)

	if d := engine.Evaluate(validRow()); d.Outcome != OutcomeAccept {
		t.Fatalf("first occurrence must pass, got %v", d.Outcome)
	}
	d := engine.Evaluate(validRow())
	if d.Outcome != OutcomeDrop || d.RuleName != "drop_exact_duplicate" {
		t.Fatalf("second occurrence must drop, got %v via %s", d.Outcome, d.RuleName)
	}

	// A fresh engine is a fresh batch: the same row passes again.
	engine = NewEngine(Default(), testAsOf)
	if d := engine.Evaluate(validRow()); d.Outcome != OutcomeAccept {
		t.Fatalf("duplicate state must not leak across batches, got %v", d.Outcome)
	}
}

func TestEngineFlagsAreCumulativeAndNonTerminal(t *testing.T) {
	engine := NewEngine(Default(), testAsOf)
	row := validRow()
	row.InvoiceNo = "C536379"

	d := engine.Evaluate(row)
	if d.Outcome != OutcomeAccept {
		t.Fatalf("flag rules must not terminate evaluation, got %v via %s", d.Outcome, d.RuleName)
	}
	if len(d.Flags) != 1 || d.Flags[0] != "cancellation" {
		t.Fatalf("expected [cancellation], got %v", d.Flags)
	}
}

func TestEngineMetrics(t *testing.T) {
	engine := NewEngine(Default(), testAsOf)

	engine.Evaluate(validRow()) // accept
	bad := validRow()
	bad.InvoiceNo = ""
	engine.Evaluate(bad) // quarantine
	engine.Evaluate(domain.SourceRow{}) // drop

	metrics := engine.Metrics("batch-1", testAsOf)
	if len(metrics) != len(Default().Rules) {
		t.Fatalf("expected one metric per rule, got %d", len(metrics))
	}

	byName := make(map[string]domain.RuleMetric, len(metrics))
	for _, m := range metrics {
		if m.BatchID != "batch-1" {
			t.Fatalf("metric carries wrong batch id %q", m.BatchID)
		}
		byName[m.RuleName] = m
	}

	if m := byName["drop_empty_row"]; m.RowsProcessed != 3 || m.RowsDropped != 1 {
		t.Fatalf("drop_empty_row: %+v", m)
	}
	if m := byName["missing_invoice_no"]; m.RowsQuarantined != 1 {
		t.Fatalf("missing_invoice_no: %+v", m)
	}
}

func TestEngineDeterministicForIdenticalInput(t *testing.T) {
	rows := []domain.SourceRow{validRow()}
	future := validRow()
	future.Timestamp = "2011-01-10 12:00:01"
	rows = append(rows, future)

	run := func() []Disposition {
		engine := NewEngine(Default(), testAsOf)
		out := make([]Disposition, 0, len(rows))
		for _, r := range rows {
			out = append(out, engine.Evaluate(r))
		}
		return out
	}

	first, second := run(), run()
	for i := range first {
		if first[i].Outcome != second[i].Outcome || first[i].RuleName != second[i].RuleName {
			t.Fatalf("row %d dispositions differ across identical runs: %+v vs %+v", i, first[i], second[i])
		}
	}
	if first[1].Outcome != OutcomeQuarantine {
		t.Fatal("timestamp after the batch as-of instant must quarantine")
	}
}
