package lifecycle

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// LogObserver writes structured run events to a writer, one line per event.
// Per-unit events are only emitted in verbose mode; a busy merge run touches
// thousands of keys.
type LogObserver struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

// NewLogObserver creates a logging observer.
func NewLogObserver(out io.Writer, verbose bool) *LogObserver {
	return &LogObserver{out: out, verbose: verbose}
}

// RunStarted implements Observer.
func (l *LogObserver) RunStarted(run RunInfo) {
	l.logf("run_started op=%s entity=%s run_id=%s", run.Operation, run.Entity, run.RunID)
}

// UnitProcessed implements Observer.
func (l *LogObserver) UnitProcessed(run RunInfo, unit Unit) {
	if !l.verbose {
		return
	}
	if unit.TupleHash != "" {
		l.logf("unit op=%s entity=%s key=%d action=%s tuple=%s", run.Operation, run.Entity, unit.BusinessKey, unit.Action, shortHash(unit.TupleHash))
		return
	}
	l.logf("unit op=%s entity=%s key=%d action=%s", run.Operation, run.Entity, unit.BusinessKey, unit.Action)
}

// shortHash trims a tuple digest to a log-friendly prefix.
func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// RunCompleted implements Observer.
func (l *LogObserver) RunCompleted(run RunInfo, err error) {
	elapsed := time.Since(run.StartedAt).Round(time.Millisecond)
	if err != nil {
		l.logf("run_failed op=%s entity=%s run_id=%s elapsed=%s error=%q", run.Operation, run.Entity, run.RunID, elapsed, err.Error())
		return
	}
	l.logf("run_completed op=%s entity=%s run_id=%s elapsed=%s", run.Operation, run.Entity, run.RunID, elapsed)
}

func (l *LogObserver) logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s | %s\n", time.Now().UTC().Format("2006-01-02T15:04:05"), fmt.Sprintf(format, args...))
}
