package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Batch statuses recorded in the ledger.
const (
	BatchStatusRunning   = "RUNNING"
	BatchStatusSuccess   = "SUCCESS"
	BatchStatusNoData    = "SUCCESS_NO_DATA"
	BatchStatusFailed    = "FAILED"
	BatchStatusCancelled = "CANCELLED"
)

// BatchRecord is the ledger entry for one pipeline execution. Created at run
// start, finalized exactly once at run end, immutable afterwards.
type BatchRecord struct {
	BatchID         string     `json:"batch_id"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Status          string     `json:"status"`
	RowsExtracted   int        `json:"rows_extracted"`
	RowsLoaded      int        `json:"rows_loaded"`
	RowsQuarantined int        `json:"rows_quarantined"`
	ErrorDetail     string     `json:"error_detail,omitempty"`
	DurationSeconds int        `json:"duration_seconds"`
}

// BatchCounts summarizes a finished run.
type BatchCounts struct {
	Extracted   int
	Loaded      int
	Quarantined int
}

// BatchContext is the explicit per-run value threaded through every
// component call. AsOf pins time-dependent rule comparisons to the run, not
// to individual rows.
type BatchContext struct {
	ID        string
	StartedAt time.Time
	AsOf      time.Time
}

// NewBatchID derives a run identifier from the start timestamp plus a short
// random suffix, so ids sort chronologically and stay unique when two runs
// share a second.
func NewBatchID(start time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s", start.UTC().Format("20060102_150405"), suffix)
}
