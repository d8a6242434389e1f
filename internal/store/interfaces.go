package store

import (
	"context"
	"time"

	"medallion/pkg/models"
)

// SnapshotSource reads the append-only snapshot stream. Implementations are
// read-only: the engines never mutate the stream.
type SnapshotSource interface {
	// Scan returns all snapshots observed at or after since. A zero since
	// scans the entire history (first run / full rebuild).
	Scan(ctx context.Context, since time.Time) ([]models.Snapshot, error)
}

// UpsertStats reports what a conformed upsert did.
type UpsertStats struct {
	Inserted int
	Updated  int
}

// ConformedStore holds the current-state table: exactly one row per business
// key. Upsert must commit atomically; a failed call leaves the table at its
// pre-call state.
type ConformedStore interface {
	// Cursor returns the low-water mark, max(SourceObservedAt) over the
	// table, and whether the table holds any rows at all.
	Cursor(ctx context.Context) (time.Time, bool, error)

	// Rows returns the full current state.
	Rows(ctx context.Context) ([]models.ConformedRow, error)

	// Upsert inserts unseen keys and overwrites existing ones, as one
	// atomic batch.
	Upsert(ctx context.Context, rows []models.ConformedRow) (UpsertStats, error)
}

// IntervalClose identifies one open ledger interval to terminate.
type IntervalClose struct {
	BusinessKey int64
	ValidTo     time.Time
}

// LedgerStore holds the historical ledger of validity intervals. Apply must
// commit atomically; a failed call leaves the ledger at its pre-call state.
type LedgerStore interface {
	// OpenIntervals returns the current (valid_to is null) interval per
	// business key.
	OpenIntervals(ctx context.Context) (map[int64]models.LedgerInterval, error)

	// Apply closes and opens intervals as one atomic batch. Closes are
	// applied before opens so a rotated key's intervals stay contiguous.
	Apply(ctx context.Context, closes []IntervalClose, opens []models.LedgerInterval) error

	// Intervals returns all intervals for a key, ordered by ValidFrom.
	Intervals(ctx context.Context, key int64) ([]models.LedgerInterval, error)

	// IntervalAt resolves the point-in-time query: the unique interval
	// covering t for the key, if any.
	IntervalAt(ctx context.Context, key int64, t time.Time) (models.LedgerInterval, bool, error)
}
