package merge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medallion/internal/store"
	"medallion/pkg/models"
)

var t0 = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func movieSnapshot(key int64, observed time.Time, seq int64, batch string, overrides map[string]interface{}) models.Snapshot {
	p := map[string]interface{}{
		"id":           float64(key),
		"title":        "Movie",
		"revenue":      float64(1000),
		"vote_average": 7.0,
		"status":       "Released",
	}
	for k, v := range overrides {
		p[k] = v
	}
	return models.Snapshot{
		BusinessKey: key,
		ObservedAt:  observed,
		Seq:         seq,
		BatchID:     batch,
		Payload:     p,
	}
}

func newEngine(mem *store.MemoryStore, lookback time.Duration) *Engine {
	return NewEngine(mem, mem, Options{Schema: models.MovieSchema(), Lookback: lookback})
}

func TestApplyFirstRunScansAllHistory(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.AddSnapshot(
		movieSnapshot(1, t0.Add(-1000*time.Hour), 1, "old", nil),
		movieSnapshot(2, t0, 2, "new", nil),
	)

	result, err := newEngine(mem, 72*time.Hour).Apply(context.Background())
	require.NoError(t, err)

	assert.True(t, result.FullScan)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Updated)

	rows, err := mem.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestApplyIsIdempotent(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.AddSnapshot(movieSnapshot(1, t0, 1, "a", nil))
	engine := newEngine(mem, 72*time.Hour)

	_, err := engine.Apply(context.Background())
	require.NoError(t, err)
	before, _ := mem.Get(1)

	// Re-run with no new snapshots: same floor window, same values
	result, err := engine.Apply(context.Background())
	require.NoError(t, err)
	after, _ := mem.Get(1)

	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, before.BusinessKey, after.BusinessKey)
	assert.Equal(t, before.Fields, after.Fields)
	assert.Equal(t, before.SourceObservedAt, after.SourceObservedAt)
}

func TestApplyNewestObservationWins(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.AddSnapshot(
		movieSnapshot(1, t0, 1, "a", map[string]interface{}{"revenue": float64(100)}),
		movieSnapshot(1, t0.Add(time.Hour), 2, "a", map[string]interface{}{"revenue": float64(200)}),
	)

	result, err := newEngine(mem, 72*time.Hour).Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deduplicated)

	row, ok := mem.Get(1)
	require.True(t, ok)
	assert.Equal(t, int64(200), row.Field("revenue"))
	assert.Equal(t, t0.Add(time.Hour), row.SourceObservedAt)
}

func TestApplyLateArrivalWithinLookback(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.AddSnapshot(movieSnapshot(1, t0, 1, "a", nil))
	engine := newEngine(mem, 72*time.Hour)

	_, err := engine.Apply(context.Background())
	require.NoError(t, err)

	// A snapshot for a new key arrives with a timestamp slightly in the
	// past: still inside the lookback window, so the next run picks it up.
	mem.AddSnapshot(movieSnapshot(2, t0.Add(-24*time.Hour), 2, "b", nil))

	result, err := engine.Apply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, t0.Add(-72*time.Hour), result.Floor)
	assert.Equal(t, 1, result.Inserted)

	_, ok := mem.Get(2)
	assert.True(t, ok)
}

func TestApplyDropsKeylessRows(t *testing.T) {
	mem := store.NewMemoryStore()
	malformed := models.Snapshot{
		ObservedAt: t0,
		Seq:        3,
		BatchID:    "a",
		Payload:    map[string]interface{}{"title": "No ID here"},
	}
	mem.AddSnapshot(
		movieSnapshot(1, t0, 1, "a", nil),
		movieSnapshot(2, t0, 2, "a", nil),
		malformed,
	)

	result, err := newEngine(mem, 72*time.Hour).Apply(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Dropped)
	assert.Equal(t, 2, result.Inserted)

	rows, err := mem.Rows(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestApplyDropsCorruptPayloads(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.AddSnapshot(movieSnapshot(1, t0, 1, "a", nil))
	engine := newEngine(mem, 72*time.Hour)

	_, err := engine.Apply(context.Background())
	require.NoError(t, err)

	// A later observation whose payload failed to decode keeps its key
	// column but carries no data. It must not null out the good row.
	mem.AddSnapshot(models.Snapshot{
		BusinessKey: 1,
		ObservedAt:  t0.Add(time.Hour),
		Seq:         2,
		BatchID:     "b",
		Payload:     nil,
	})

	result, err := engine.Apply(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Corrupt)
	assert.Equal(t, 0, result.CastFailures)
	assert.Equal(t, 0, result.Dropped)

	row, ok := mem.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Movie", row.Field("title"))
	assert.Equal(t, t0, row.SourceObservedAt, "intact observation stays current")
}

func TestApplyResolvesKeyFromPayload(t *testing.T) {
	mem := store.NewMemoryStore()
	snap := movieSnapshot(5, t0, 1, "a", nil)
	snap.BusinessKey = 0 // key only present inside the payload
	mem.AddSnapshot(snap)

	result, err := newEngine(mem, 72*time.Hour).Apply(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Dropped)
	_, ok := mem.Get(5)
	assert.True(t, ok)
}

func TestApplySafeParsePolicy(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.AddSnapshot(movieSnapshot(1, t0, 1, "a", map[string]interface{}{
		"revenue":      "not a number",
		"release_date": "garbage",
	}))

	result, err := newEngine(mem, 72*time.Hour).Apply(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.CastFailures)
	assert.Equal(t, 1, result.Inserted)

	row, _ := mem.Get(1)
	assert.Nil(t, row.Field("revenue"))
	assert.Nil(t, row.Field("release_date"))
	assert.Equal(t, "Movie", row.Field("title"), "healthy fields survive")
}

func TestDeduplicateTieBreaks(t *testing.T) {
	tests := []struct {
		name   string
		snaps  []models.Snapshot
		winner string // batch ID of the expected winner
	}{
		{
			name: "later observation wins",
			snaps: []models.Snapshot{
				{BusinessKey: 1, ObservedAt: t0, Seq: 9, BatchID: "early"},
				{BusinessKey: 1, ObservedAt: t0.Add(time.Minute), Seq: 1, BatchID: "late"},
			},
			winner: "late",
		},
		{
			name: "same timestamp falls to sequence",
			snaps: []models.Snapshot{
				{BusinessKey: 1, ObservedAt: t0, Seq: 2, BatchID: "second"},
				{BusinessKey: 1, ObservedAt: t0, Seq: 1, BatchID: "first"},
			},
			winner: "second",
		},
		{
			name: "same timestamp and sequence falls to batch id",
			snaps: []models.Snapshot{
				{BusinessKey: 1, ObservedAt: t0, Seq: 1, BatchID: "aaa"},
				{BusinessKey: 1, ObservedAt: t0, Seq: 1, BatchID: "bbb"},
			},
			winner: "bbb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forward := Deduplicate(tt.snaps)
			require.Len(t, forward, 1)
			assert.Equal(t, tt.winner, forward[0].BatchID)

			// Input order must not matter
			reversed := Deduplicate([]models.Snapshot{tt.snaps[1], tt.snaps[0]})
			require.Len(t, reversed, 1)
			assert.Equal(t, tt.winner, reversed[0].BatchID)
		})
	}
}

func TestConformCountsFailuresPerField(t *testing.T) {
	snap := movieSnapshot(1, t0, 1, "a", map[string]interface{}{
		"runtime": "long",
		"budget":  nil,
	})

	row, failures := Conform(snap, models.MovieSchema(), t0)

	assert.Equal(t, 1, failures, "null input is not a cast failure")
	assert.Nil(t, row.Field("runtime"))
	assert.Nil(t, row.Field("budget"))
}
