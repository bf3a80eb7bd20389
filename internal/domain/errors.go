package domain

import "errors"

// Structural failures abort the batch; row-level failures never do.
var (
	// ErrPartitionGap reports a row timestamp outside every declared
	// partition while automatic extension is disabled. Loading on would
	// silently drop data, so the run must fail.
	ErrPartitionGap = errors.New("timestamp outside all declared partitions")

	// ErrMigrationMismatch reports a row-count verification failure during
	// the one-time flat-to-partitioned migration. The source table is left
	// untouched.
	ErrMigrationMismatch = errors.New("partition migration row count mismatch")

	// ErrRunInFlight is returned by the batch ledger when another run is
	// still recorded as running against the same store.
	ErrRunInFlight = errors.New("another batch run is in flight")

	// ErrRefreshInProgress is returned when an aggregate refresh cycle is
	// requested while a previous one has not completed.
	ErrRefreshInProgress = errors.New("aggregate refresh already in progress")

	// ErrUnresolvedDimension marks a staged row whose required dimension
	// keys could not be resolved; the row is quarantined, not fatal.
	ErrUnresolvedDimension = errors.New("unresolved dimension")
)
