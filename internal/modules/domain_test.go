package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/projtrack/projtrack/internal/projects"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusNotStarted, StatusFor(0))
	assert.Equal(t, StatusInProgress, StatusFor(1))
	assert.Equal(t, StatusInProgress, StatusFor(99))
	assert.Equal(t, StatusCompleted, StatusFor(100))
}

func TestInitialState(t *testing.T) {
	tests := []struct {
		status       Status
		progress     int
		wantStatus   Status
		wantProgress int
	}{
		{StatusCompleted, 40, StatusCompleted, 100},
		{StatusNotStarted, 40, StatusNotStarted, 0},
		{StatusInProgress, 0, StatusInProgress, 10},
		{StatusInProgress, 100, StatusInProgress, 99},
		{StatusInProgress, 35, StatusInProgress, 35},
		{StatusPaused, 35, StatusPaused, 35},
		{"", 0, StatusNotStarted, 0},
		{"", 100, StatusCompleted, 100},
		{"", 60, StatusInProgress, 60},
	}
	for _, tc := range tests {
		status, progress := initialState(tc.status, tc.progress)
		assert.Equal(t, tc.wantStatus, status, "%s/%d", tc.status, tc.progress)
		assert.Equal(t, tc.wantProgress, progress, "%s/%d", tc.status, tc.progress)
	}
}

func TestRollup(t *testing.T) {
	_, _, ok := Rollup(projects.StatusInitialContact, nil)
	assert.False(t, ok)

	avg, next, ok := Rollup(projects.StatusInitialContact, []int{0, 50, 100})
	assert.True(t, ok)
	assert.Equal(t, 50, avg)
	assert.Equal(t, projects.StatusInitialContact, next)

	// Halves round to even.
	avg, _, _ = Rollup(projects.StatusInitialContact, []int{0, 5})
	assert.Equal(t, 2, avg)
	avg, _, _ = Rollup(projects.StatusInitialContact, []int{0, 7})
	assert.Equal(t, 4, avg)

	_, next, _ = Rollup(projects.StatusProjectImplementation, []int{100, 100})
	assert.Equal(t, projects.StatusProjectAcceptance, next)

	_, next, _ = Rollup(projects.StatusContractSigned, []int{0, 10})
	assert.Equal(t, projects.StatusProjectImplementation, next)

	_, next, _ = Rollup(projects.StatusContractSigned, []int{0, 0})
	assert.Equal(t, projects.StatusContractSigned, next)
}
