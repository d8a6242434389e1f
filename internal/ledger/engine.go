package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"medallion/internal/lifecycle"
	"medallion/internal/payload"
	"medallion/internal/store"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// Engine maintains the append-only history of a configurable attribute
// subset per business key, derived from the conformed table. One Engine owns
// one ledger table; SnapshotCheck serializes against itself.
type Engine struct {
	conformed store.ConformedStore
	ledger    store.LedgerStore
	entity    string
	tracked   []string
	hardDel   bool
	hooks     *lifecycle.Hooks

	mu sync.Mutex
}

// Options configures a ledger engine.
type Options struct {
	Entity                string
	TrackedFields         []string
	InvalidateHardDeletes bool
	Hooks                 *lifecycle.Hooks
}

// Result reports what one snapshot check did.
type Result struct {
	Keys        int // business keys examined
	Opened      int // brand-new keys given a first interval
	Rotated     int // keys whose tuple changed: one close plus one open
	Unchanged   int
	Invalidated int // hard-deleted keys whose open interval was closed
	Duration    time.Duration
}

// NewEngine creates a change-tracking engine.
func NewEngine(conformed store.ConformedStore, ledger store.LedgerStore, opts Options) *Engine {
	return &Engine{
		conformed: conformed,
		ledger:    ledger,
		entity:    opts.Entity,
		tracked:   opts.TrackedFields,
		hardDel:   opts.InvalidateHardDeletes,
		hooks:     opts.Hooks,
	}
}

// SnapshotCheck compares every conformed row's tracked-attribute tuple with
// its open ledger interval as of the given instant. New keys open an
// interval, changed tuples rotate (close plus open), unchanged tuples no-op.
// Idempotent: a repeat at the same asOf with an unchanged conformed table
// writes nothing, because comparison is by tuple, never by timestamp.
func (e *Engine) SnapshotCheck(ctx context.Context, asOf time.Time) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	run := lifecycle.RunInfo{
		Operation: lifecycle.OpSnapshotCheck,
		Entity:    e.entity,
		RunID:     fmt.Sprintf("%s-%d", e.entity, started.UnixNano()),
		StartedAt: started,
	}
	e.hooks.RunStarted(run)

	result, err := e.check(ctx, run, asOf.UTC())
	result.Duration = time.Since(started)
	e.hooks.RunCompleted(run, err)
	return result, err
}

func (e *Engine) check(ctx context.Context, run lifecycle.RunInfo, asOf time.Time) (Result, error) {
	var result Result

	rows, err := e.conformed.Rows(ctx)
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeLedgerFailed, "Failed to read conformed rows")
	}
	result.Keys = len(rows)

	open, err := e.ledger.OpenIntervals(ctx)
	if err != nil {
		return result, errors.Wrap(err, errors.ErrCodeLedgerFailed, "Failed to read open intervals")
	}

	var (
		closes []store.IntervalClose
		opens  []models.LedgerInterval
		units  []lifecycle.Unit
	)

	seen := make(map[int64]bool, len(rows))
	for _, row := range rows {
		seen[row.BusinessKey] = true
		tuple := payload.Tuple(row.Fields, e.tracked)

		current, tracked := open[row.BusinessKey]
		switch {
		case !tracked:
			opens = append(opens, models.LedgerInterval{
				BusinessKey: row.BusinessKey,
				Attributes:  tuple,
				ValidFrom:   asOf,
			})
			result.Opened++
			units = append(units, lifecycle.Unit{BusinessKey: row.BusinessKey, Action: "open", TupleHash: payload.Hash(tuple)})

		case !payload.Equal(tuple, current.Attributes):
			closes = append(closes, store.IntervalClose{BusinessKey: row.BusinessKey, ValidTo: asOf})
			opens = append(opens, models.LedgerInterval{
				BusinessKey: row.BusinessKey,
				Attributes:  tuple,
				ValidFrom:   asOf,
			})
			result.Rotated++
			units = append(units, lifecycle.Unit{BusinessKey: row.BusinessKey, Action: "rotate", TupleHash: payload.Hash(tuple)})

		default:
			result.Unchanged++
		}
	}

	if e.hardDel {
		for key := range open {
			if !seen[key] {
				closes = append(closes, store.IntervalClose{BusinessKey: key, ValidTo: asOf})
				result.Invalidated++
				units = append(units, lifecycle.Unit{BusinessKey: key, Action: "close"})
			}
		}
	}

	if err := e.ledger.Apply(ctx, closes, opens); err != nil {
		return result, err
	}

	for _, unit := range units {
		e.hooks.UnitProcessed(run, unit)
	}
	return result, nil
}

// AsOf resolves the point-in-time query: the unique interval covering t for
// the key. Exactly one interval satisfies the predicate for any t at or
// after the key's first valid_from, absent hard deletion.
func (e *Engine) AsOf(ctx context.Context, key int64, t time.Time) (models.LedgerInterval, bool, error) {
	return e.ledger.IntervalAt(ctx, key, t.UTC())
}

// History returns a key's full interval history in validity order.
func (e *Engine) History(ctx context.Context, key int64) ([]models.LedgerInterval, error) {
	return e.ledger.Intervals(ctx, key)
}
