package ui

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.d))
	}
}

func TestProgressBarCounts(t *testing.T) {
	p := NewProgressBar(10)
	p.Update(1, "movie 27205", true)
	p.Update(2, "movie 157336", true)
	p.Update(3, "movie 603", false)

	assert.Equal(t, 2, p.appliedCount)
	assert.Equal(t, 1, p.skippedCount)
	assert.Equal(t, 3, p.current)
}

func TestSpinnerStopIsIdempotentPerLifecycle(t *testing.T) {
	s := NewSpinner("working")
	s.Start()
	s.UpdateMessage("still working")
	s.Stop(true, "done")

	assert.True(t, s.stopped)
}
