package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"medallion/pkg/models"

	"medallion/pkg/errors"
)

// MemoryStore is an in-process implementation of all three store contracts.
// It backs unit tests and local dry-runs; the write methods hold a mutex for
// the whole batch, which gives the same all-or-nothing visibility as the
// warehouse transaction.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots []models.Snapshot
	conformed map[int64]models.ConformedRow
	ledger    map[int64][]models.LedgerInterval
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conformed: make(map[int64]models.ConformedRow),
		ledger:    make(map[int64][]models.LedgerInterval),
	}
}

// AddSnapshot appends snapshots to the immutable stream.
func (m *MemoryStore) AddSnapshot(snaps ...models.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snaps...)
}

// Scan implements SnapshotSource.
func (m *MemoryStore) Scan(ctx context.Context, since time.Time) ([]models.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		if since.IsZero() || !s.ObservedAt.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Cursor implements ConformedStore.
func (m *MemoryStore) Cursor(ctx context.Context) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.conformed) == 0 {
		return time.Time{}, false, nil
	}

	var max time.Time
	for _, row := range m.conformed {
		if row.SourceObservedAt.After(max) {
			max = row.SourceObservedAt
		}
	}
	return max, true, nil
}

// Rows implements ConformedStore.
func (m *MemoryStore) Rows(ctx context.Context) ([]models.ConformedRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]models.ConformedRow, 0, len(m.conformed))
	for _, row := range m.conformed {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].BusinessKey < rows[j].BusinessKey })
	return rows, nil
}

// Get returns the conformed row for a key.
func (m *MemoryStore) Get(key int64) (models.ConformedRow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.conformed[key]
	return row, ok
}

// Upsert implements ConformedStore.
func (m *MemoryStore) Upsert(ctx context.Context, rows []models.ConformedRow) (UpsertStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats UpsertStats
	for _, row := range rows {
		if _, exists := m.conformed[row.BusinessKey]; exists {
			stats.Updated++
		} else {
			stats.Inserted++
		}
		m.conformed[row.BusinessKey] = row
	}
	return stats, nil
}

// Delete removes a conformed row, simulating a hard delete upstream.
func (m *MemoryStore) Delete(key int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conformed, key)
}

// OpenIntervals implements LedgerStore.
func (m *MemoryStore) OpenIntervals(ctx context.Context) (map[int64]models.LedgerInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	open := make(map[int64]models.LedgerInterval)
	for key, intervals := range m.ledger {
		for _, iv := range intervals {
			if iv.Open() {
				open[key] = iv
				break
			}
		}
	}
	return open, nil
}

// Apply implements LedgerStore.
func (m *MemoryStore) Apply(ctx context.Context, closes []IntervalClose, opens []models.LedgerInterval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range closes {
		intervals := m.ledger[c.BusinessKey]
		closed := false
		for i := range intervals {
			if intervals[i].Open() {
				validTo := c.ValidTo
				intervals[i].ValidTo = &validTo
				closed = true
				break
			}
		}
		if !closed {
			return errors.New(errors.ErrCodeIntervalIntegrity, "No open interval to close").
				WithContext("business_key", c.BusinessKey)
		}
	}

	for _, iv := range opens {
		m.ledger[iv.BusinessKey] = append(m.ledger[iv.BusinessKey], iv)
	}
	return nil
}

// Intervals implements LedgerStore.
func (m *MemoryStore) Intervals(ctx context.Context, key int64) ([]models.LedgerInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	intervals := make([]models.LedgerInterval, len(m.ledger[key]))
	copy(intervals, m.ledger[key])
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].ValidFrom.Before(intervals[j].ValidFrom) })
	return intervals, nil
}

// IntervalAt implements LedgerStore.
func (m *MemoryStore) IntervalAt(ctx context.Context, key int64, t time.Time) (models.LedgerInterval, bool, error) {
	intervals, err := m.Intervals(ctx, key)
	if err != nil {
		return models.LedgerInterval{}, false, err
	}

	for _, iv := range intervals {
		if iv.Covers(t) {
			return iv, true, nil
		}
	}
	return models.LedgerInterval{}, false, nil
}
