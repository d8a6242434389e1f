package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medallion/internal/lifecycle"
	"medallion/internal/merge"
	"medallion/internal/payload"
	"medallion/internal/store"
	"medallion/pkg/models"
)

var (
	day1 = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	day2 = day1.Add(24 * time.Hour)
	day3 = day1.Add(48 * time.Hour)
)

var trackedFields = []string{"title", "status", "revenue"}

func conformedRow(key int64, fields map[string]interface{}) models.ConformedRow {
	base := map[string]interface{}{
		"title":   "Movie",
		"status":  "Released",
		"revenue": int64(1000),
	}
	for k, v := range fields {
		base[k] = v
	}
	return models.ConformedRow{
		BusinessKey:      key,
		Fields:           base,
		SourceObservedAt: day1,
		SourceSeq:        1,
		BatchID:          "batch-1",
		LoadedAt:         day1,
	}
}

func seedConformed(t *testing.T, mem *store.MemoryStore, rows ...models.ConformedRow) {
	t.Helper()
	_, err := mem.Upsert(context.Background(), rows)
	require.NoError(t, err)
}

func newLedgerEngine(mem *store.MemoryStore, hardDeletes bool) *Engine {
	return NewEngine(mem, mem, Options{
		Entity:                "movies",
		TrackedFields:         trackedFields,
		InvalidateHardDeletes: hardDeletes,
	})
}

func TestSnapshotCheckOpensFirstIntervals(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, nil), conformedRow(2, map[string]interface{}{"title": "Other"}))

	engine := newLedgerEngine(mem, false)
	result, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Keys)
	assert.Equal(t, 2, result.Opened)
	assert.Equal(t, 0, result.Rotated)
	assert.Equal(t, 0, result.Unchanged)

	history, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Open())
	assert.Equal(t, day1, history[0].ValidFrom)
	assert.Equal(t, "Movie", history[0].Attributes["title"])
}

func TestSnapshotCheckIsIdempotent(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, nil))

	engine := newLedgerEngine(mem, false)
	_, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	// Repeat at the same instant with an unchanged conformed table.
	result, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 0, result.Opened)
	assert.Equal(t, 0, result.Rotated)

	// A later unchanged check also writes nothing.
	result, err = engine.SnapshotCheck(context.Background(), day2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)

	history, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSnapshotCheckRotatesOnChange(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, map[string]interface{}{"revenue": nil}))

	engine := newLedgerEngine(mem, false)
	_, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	// The source backfills revenue; the next check rotates the interval.
	seedConformed(t, mem, conformedRow(1, map[string]interface{}{"revenue": int64(145000000)}))
	result, err := engine.SnapshotCheck(context.Background(), day2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rotated)
	assert.Equal(t, 0, result.Opened)

	history, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 2)

	first, second := history[0], history[1]
	assert.Nil(t, first.Attributes["revenue"])
	require.NotNil(t, first.ValidTo)
	assert.Equal(t, day2, *first.ValidTo)
	assert.Equal(t, int64(145000000), second.Attributes["revenue"])
	assert.Equal(t, day2, second.ValidFrom)
	assert.True(t, second.Open())

	// Contiguity: the close of one interval is the open of the next.
	assert.Equal(t, *first.ValidTo, second.ValidFrom)
}

func TestSnapshotCheckIgnoresUntrackedFields(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, map[string]interface{}{"vote_count": int64(100)}))

	engine := newLedgerEngine(mem, false)
	_, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	// vote_count is not tracked, so its churn never rotates the interval.
	seedConformed(t, mem, conformedRow(1, map[string]interface{}{"vote_count": int64(250)}))
	result, err := engine.SnapshotCheck(context.Background(), day2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)

	history, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAsOfResolvesUniqueInterval(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, map[string]interface{}{"status": "Post Production"}))

	engine := newLedgerEngine(mem, false)
	_, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	seedConformed(t, mem, conformedRow(1, map[string]interface{}{"status": "Released"}))
	_, err = engine.SnapshotCheck(context.Background(), day2)
	require.NoError(t, err)

	// Before the rotation the old tuple is in effect.
	iv, ok, err := engine.AsOf(context.Background(), 1, day1.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Post Production", iv.Attributes["status"])

	// valid_to is exclusive: exactly at the rotation instant the new
	// interval is the one in effect.
	iv, ok, err = engine.AsOf(context.Background(), 1, day2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Released", iv.Attributes["status"])

	// Before the key ever existed there is no covering interval.
	_, ok, err = engine.AsOf(context.Background(), 1, day1.Add(-time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotCheckInvalidatesHardDeletes(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, nil), conformedRow(2, nil))

	engine := newLedgerEngine(mem, true)
	_, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	mem.Delete(2)
	result, err := engine.SnapshotCheck(context.Background(), day2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Keys)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 1, result.Invalidated)

	history, err := engine.History(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ValidTo)
	assert.Equal(t, day2, *history[0].ValidTo)

	// A repeat check leaves the closed interval alone.
	result, err = engine.SnapshotCheck(context.Background(), day3)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Invalidated)
}

func TestSnapshotCheckKeepsHardDeletesByDefault(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, nil))

	engine := newLedgerEngine(mem, false)
	_, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	mem.Delete(1)
	result, err := engine.SnapshotCheck(context.Background(), day2)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Invalidated)

	history, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Open())
}

func TestSnapshotCheckReappearanceAfterInvalidation(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, nil))

	engine := newLedgerEngine(mem, true)
	_, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	mem.Delete(1)
	_, err = engine.SnapshotCheck(context.Background(), day2)
	require.NoError(t, err)

	// The key comes back; it gets a fresh interval rather than a reopen.
	seedConformed(t, mem, conformedRow(1, nil))
	result, err := engine.SnapshotCheck(context.Background(), day3)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Opened)

	history, err := engine.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].Open())
	assert.Equal(t, day3, history[1].ValidFrom)
	assert.True(t, history[1].Open())
}

type unitRecorder struct {
	mu    sync.Mutex
	units []lifecycle.Unit
}

func (r *unitRecorder) RunStarted(lifecycle.RunInfo) {}

func (r *unitRecorder) UnitProcessed(_ lifecycle.RunInfo, unit lifecycle.Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, unit)
}

func (r *unitRecorder) RunCompleted(lifecycle.RunInfo, error) {}

func TestSnapshotCheckEmitsTupleHashes(t *testing.T) {
	mem := store.NewMemoryStore()
	seedConformed(t, mem, conformedRow(1, nil))

	rec := &unitRecorder{}
	hooks := lifecycle.NewHooks()
	hooks.Register(rec)

	engine := NewEngine(mem, mem, Options{
		Entity:        "movies",
		TrackedFields: trackedFields,
		Hooks:         hooks,
	})
	_, err := engine.SnapshotCheck(context.Background(), day1)
	require.NoError(t, err)

	require.Len(t, rec.units, 1)
	assert.Equal(t, "open", rec.units[0].Action)

	want := payload.Hash(payload.Tuple(conformedRow(1, nil).Fields, trackedFields))
	assert.Equal(t, want, rec.units[0].TupleHash)
}

// The full cycle over one store: merge snapshots into the conformed table,
// then check the ledger, twice. A revenue announced between the runs must
// leave exactly two contiguous intervals behind.
func TestMergeThenCheckTracksRevenueHistory(t *testing.T) {
	mem := store.NewMemoryStore()
	ctx := context.Background()

	mergeEngine := merge.NewEngine(mem, mem, merge.Options{Schema: models.MovieSchema()})
	checkEngine := newLedgerEngine(mem, false)

	mem.AddSnapshot(models.Snapshot{
		BusinessKey: 27205,
		ObservedAt:  day1,
		Seq:         1,
		BatchID:     "batch-1",
		Payload: map[string]interface{}{
			"id":      float64(27205),
			"title":   "Inception",
			"status":  "Post Production",
			"revenue": nil,
		},
	})

	_, err := mergeEngine.Apply(ctx)
	require.NoError(t, err)
	result, err := checkEngine.SnapshotCheck(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Opened)

	mem.AddSnapshot(models.Snapshot{
		BusinessKey: 27205,
		ObservedAt:  day2,
		Seq:         2,
		BatchID:     "batch-2",
		Payload: map[string]interface{}{
			"id":      float64(27205),
			"title":   "Inception",
			"status":  "Released",
			"revenue": float64(825532764),
		},
	})

	_, err = mergeEngine.Apply(ctx)
	require.NoError(t, err)
	result, err = checkEngine.SnapshotCheck(ctx, day2)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Rotated)

	history, err := checkEngine.History(ctx, 27205)
	require.NoError(t, err)
	require.Len(t, history, 2)

	first, second := history[0], history[1]
	assert.Equal(t, day1, first.ValidFrom)
	require.NotNil(t, first.ValidTo)
	assert.Equal(t, day2, *first.ValidTo)
	assert.Nil(t, first.Attributes["revenue"])

	assert.Equal(t, day2, second.ValidFrom)
	assert.True(t, second.Open())
	assert.Equal(t, int64(825532764), second.Attributes["revenue"])
	assert.Equal(t, "Released", second.Attributes["status"])

	// A third cycle with nothing new writes nothing.
	result, err = checkEngine.SnapshotCheck(ctx, day3)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
}
