package lifecycle

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingObserver struct {
	mu        sync.Mutex
	started   []RunInfo
	units     []Unit
	completed []error
}

func (r *recordingObserver) RunStarted(run RunInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, run)
}

func (r *recordingObserver) UnitProcessed(run RunInfo, unit Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, unit)
}

func (r *recordingObserver) RunCompleted(run RunInfo, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, err)
}

func TestHooksFanOut(t *testing.T) {
	hooks := NewHooks()
	first := &recordingObserver{}
	second := &recordingObserver{}
	hooks.Register(first)
	hooks.Register(second)

	run := RunInfo{Operation: OpMerge, Entity: "movies", RunID: "run-1", StartedAt: time.Now()}
	hooks.RunStarted(run)
	hooks.UnitProcessed(run, Unit{BusinessKey: 603, Action: "insert"})
	hooks.RunCompleted(run, nil)

	for _, obs := range []*recordingObserver{first, second} {
		assert.Len(t, obs.started, 1)
		assert.Len(t, obs.units, 1)
		assert.Equal(t, int64(603), obs.units[0].BusinessKey)
		assert.Len(t, obs.completed, 1)
		assert.NoError(t, obs.completed[0])
	}
}

func TestNilHooksDropEvents(t *testing.T) {
	var hooks *Hooks

	assert.NotPanics(t, func() {
		run := RunInfo{Operation: OpSnapshotCheck, Entity: "movies"}
		hooks.RunStarted(run)
		hooks.UnitProcessed(run, Unit{})
		hooks.RunCompleted(run, nil)
	})
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLogObserver(&buf, false)

	run := RunInfo{Operation: OpMerge, Entity: "movies", RunID: "run-2", StartedAt: time.Now()}
	obs.RunStarted(run)
	obs.UnitProcessed(run, Unit{BusinessKey: 1, Action: "update"})
	obs.RunCompleted(run, errors.New("target unavailable"))

	out := buf.String()
	assert.Contains(t, out, "run_started op=merge entity=movies")
	assert.NotContains(t, out, "unit ", "per-unit events require verbose mode")
	assert.Contains(t, out, `run_failed op=merge entity=movies run_id=run-2`)
	assert.Contains(t, out, `error="target unavailable"`)
}

func TestLogObserverVerbose(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLogObserver(&buf, true)

	run := RunInfo{Operation: OpMerge, Entity: "movies"}
	obs.UnitProcessed(run, Unit{BusinessKey: 42, Action: "insert"})

	assert.Contains(t, buf.String(), "key=42 action=insert")
}

func TestLogObserverVerboseLogsTupleHash(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLogObserver(&buf, true)

	run := RunInfo{Operation: OpSnapshotCheck, Entity: "movies"}
	obs.UnitProcessed(run, Unit{
		BusinessKey: 42,
		Action:      "rotate",
		TupleHash:   "0123456789abcdef0123456789abcdef",
	})

	out := buf.String()
	assert.Contains(t, out, "action=rotate tuple=0123456789ab")
	assert.NotContains(t, out, "0123456789abcdef", "digests are logged as short prefixes")
}
