package lifecycle

import (
	"sync"
	"time"
)

// Operation identifies which engine produced a lifecycle event.
type Operation string

const (
	OpMerge         Operation = "merge"
	OpSnapshotCheck Operation = "snapshot_check"
)

// RunInfo describes one engine invocation.
type RunInfo struct {
	Operation Operation
	Entity    string
	RunID     string
	StartedAt time.Time
}

// Unit describes one processed business key within a run.
type Unit struct {
	BusinessKey int64
	Action      string // "merge", "open", "rotate", "close"
	TupleHash   string // digest of the tracked tuple, set on open and rotate
}

// Observer receives callbacks at the well-defined lifecycle points of an
// engine run. Implementations must be safe for concurrent use; callbacks for
// independent targets may fire in parallel.
type Observer interface {
	RunStarted(run RunInfo)
	UnitProcessed(run RunInfo, unit Unit)
	RunCompleted(run RunInfo, err error)
}

// Hooks fans lifecycle events out to registered observers. The zero value is
// usable; a nil *Hooks drops all events.
type Hooks struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewHooks creates an empty hook registry.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Register adds an observer. Observers cannot be removed; register once at
// startup before any engine runs.
func (h *Hooks) Register(o Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.observers = append(h.observers, o)
}

// RunStarted notifies all observers that a run has begun.
func (h *Hooks) RunStarted(run RunInfo) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, o := range h.observers {
		o.RunStarted(run)
	}
}

// UnitProcessed notifies all observers that one business key was handled.
func (h *Hooks) UnitProcessed(run RunInfo, unit Unit) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, o := range h.observers {
		o.UnitProcessed(run, unit)
	}
}

// RunCompleted notifies all observers that a run finished, with its error.
func (h *Hooks) RunCompleted(run RunInfo, err error) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, o := range h.observers {
		o.RunCompleted(run, err)
	}
}
