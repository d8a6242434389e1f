package merge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"medallion/internal/lifecycle"
	"medallion/internal/payload"
	"medallion/internal/store"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// Engine brings newly observed snapshots into the conformed table without
// reprocessing history. One Engine owns one target table; Apply serializes
// against itself, while engines for independent targets run freely in
// parallel.
type Engine struct {
	source   store.SnapshotSource
	target   store.ConformedStore
	schema   models.Schema
	lookback time.Duration
	hooks    *lifecycle.Hooks

	mu sync.Mutex
}

// Options configures an Engine.
type Options struct {
	Schema   models.Schema
	Lookback time.Duration
	Hooks    *lifecycle.Hooks
}

// Result reports what one merge run did.
type Result struct {
	Floor        time.Time
	FullScan     bool
	Scanned      int
	Deduplicated int
	Inserted     int
	Updated      int
	Dropped      int // rows without an identifiable business key
	Corrupt      int // rows whose payload could not be decoded
	CastFailures int // individual fields nulled by the safe-parse policy
	Duration     time.Duration
}

// NewEngine creates a merge engine over a snapshot source and conformed
// target.
func NewEngine(source store.SnapshotSource, target store.ConformedStore, opts Options) *Engine {
	lookback := opts.Lookback
	if lookback == 0 {
		lookback = 72 * time.Hour
	}
	return &Engine{
		source:   source,
		target:   target,
		schema:   opts.Schema,
		lookback: lookback,
		hooks:    opts.Hooks,
	}
}

// Apply executes one incremental merge run: scan snapshots past the
// low-water mark minus the lookback window, deduplicate to one snapshot per
// business key, conform payloads, and upsert the batch atomically. Safe to
// re-run; a repeat with no new snapshots rewrites identical values.
func (e *Engine) Apply(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	run := lifecycle.RunInfo{
		Operation: lifecycle.OpMerge,
		Entity:    e.schema.Entity,
		RunID:     fmt.Sprintf("%s-%d", e.schema.Entity, started.UnixNano()),
		StartedAt: started,
	}
	e.hooks.RunStarted(run)

	result, err := e.apply(ctx, run)
	result.Duration = time.Since(started)
	e.hooks.RunCompleted(run, err)
	return result, err
}

func (e *Engine) apply(ctx context.Context, run lifecycle.RunInfo) (Result, error) {
	var result Result

	cursor, exists, err := e.target.Cursor(ctx)
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeMergeFailed, "Failed to read merge cursor")
	}

	if exists {
		result.Floor = cursor.Add(-e.lookback)
	} else {
		// First run or full rebuild: scan the entire history.
		result.FullScan = true
	}

	snaps, err := e.source.Scan(ctx, result.Floor)
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeMergeFailed, "Failed to scan snapshot stream")
	}
	result.Scanned = len(snaps)

	intact, corrupt := DropCorrupt(snaps)
	result.Corrupt = corrupt

	keyed, dropped := ResolveKeys(intact, e.schema.BusinessKeyField)
	result.Dropped = dropped

	deduped := Deduplicate(keyed)
	result.Deduplicated = len(deduped)

	loadedAt := time.Now().UTC()
	rows := make([]models.ConformedRow, 0, len(deduped))
	for _, snap := range deduped {
		row, castFailures := Conform(snap, e.schema, loadedAt)
		result.CastFailures += castFailures
		rows = append(rows, row)
	}

	stats, err := e.target.Upsert(ctx, rows)
	if err != nil {
		return result, err
	}
	result.Inserted = stats.Inserted
	result.Updated = stats.Updated

	for _, row := range rows {
		e.hooks.UnitProcessed(run, lifecycle.Unit{BusinessKey: row.BusinessKey, Action: "merge"})
	}
	return result, nil
}

// Conform casts one snapshot's payload into the typed schema. Fields that
// fail to cast become null and are counted; the row itself survives.
func Conform(snap models.Snapshot, schema models.Schema, loadedAt time.Time) (models.ConformedRow, int) {
	fields := make(map[string]interface{}, len(schema.Fields))
	castFailures := 0
	for _, spec := range schema.Fields {
		v, ok := payload.Cast(snap.Payload[spec.SourceKey()], spec.Type)
		if !ok {
			castFailures++
		}
		fields[spec.Name] = v
	}

	return models.ConformedRow{
		BusinessKey:      snap.BusinessKey,
		Fields:           fields,
		SourceObservedAt: snap.ObservedAt.UTC(),
		SourceSeq:        snap.Seq,
		BatchID:          snap.BatchID,
		LoadedAt:         loadedAt,
	}, castFailures
}

// DropCorrupt removes (and counts) snapshots whose payload could not be
// decoded. A corrupt payload would conform to an all-null row; dropping it
// keeps the last intact observation in place, and the count surfaces on the
// run result.
func DropCorrupt(snaps []models.Snapshot) ([]models.Snapshot, int) {
	out := make([]models.Snapshot, 0, len(snaps))
	corrupt := 0

	for _, snap := range snaps {
		if len(snap.Payload) == 0 {
			corrupt++
			continue
		}
		out = append(out, snap)
	}
	return out, corrupt
}

// ResolveKeys fills missing business keys from the payload's key field and
// drops (and counts) snapshots with no identifiable key. Dropped rows are
// never silently lost: the count surfaces on the run result.
func ResolveKeys(snaps []models.Snapshot, keyField string) ([]models.Snapshot, int) {
	out := make([]models.Snapshot, 0, len(snaps))
	dropped := 0

	for _, snap := range snaps {
		if snap.BusinessKey <= 0 {
			key, ok := payload.BusinessKey(snap.Payload, keyField)
			if !ok {
				dropped++
				continue
			}
			snap.BusinessKey = key
		}
		out = append(out, snap)
	}
	return out, dropped
}

// Deduplicate reduces a batch to exactly one snapshot per business key. The
// winner per key is chosen by Newer; output is ordered by business key so a
// rerun writes in the same order.
func Deduplicate(snaps []models.Snapshot) []models.Snapshot {
	best := make(map[int64]models.Snapshot)

	for _, snap := range snaps {
		current, seen := best[snap.BusinessKey]
		if !seen || Newer(snap, current) {
			best[snap.BusinessKey] = snap
		}
	}

	out := make([]models.Snapshot, 0, len(best))
	for _, snap := range best {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BusinessKey < out[j].BusinessKey })
	return out
}

// Newer reports whether a should win over b for the same business key.
// Most recent ObservedAt wins; ties fall to the higher ingestion sequence,
// then to the lexically greatest batch ID, so the outcome never depends on
// input order.
func Newer(a, b models.Snapshot) bool {
	if !a.ObservedAt.Equal(b.ObservedAt) {
		return a.ObservedAt.After(b.ObservedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.BatchID > b.BatchID
}
