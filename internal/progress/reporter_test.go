package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pritzvi/linked-out/internal/models"
)

type stubState struct {
	st models.SessionState
}

func (s stubState) State() models.SessionState { return s.st }

func TestReport_ComposesStateAndSnapshot(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"1", "2", "3", "4"} {
		discover(t, s, id, "name-"+id)
	}
	for _, id := range []string{"1", "2", "3"} {
		advance(t, s, id, models.ProfileStatusProcessing)
	}
	advance(t, s, "1", models.ProfileStatusCompleted)
	advance(t, s, "2", models.ProfileStatusCompleted)
	advance(t, s, "3", models.ProfileStatusCompleted)

	r := NewReporter(stubState{models.SessionState{
		Phase:          models.PhaseRunning,
		ProfilesNeeded: 5,
		ResultPath:     "/tmp/out.csv",
	}}, s)

	rep := r.Report()
	assert.Equal(t, models.PhaseRunning, rep.Phase)
	assert.Equal(t, 5, rep.ProfilesNeeded)
	assert.Equal(t, 4, rep.DiscoveredCount)
	assert.Equal(t, 3, rep.CompletedCount)
	assert.Equal(t, 0, rep.ProcessingCount)
	assert.Equal(t, 2, rep.PendingCount)
	assert.Equal(t, 0, rep.FailedCount)
	assert.Equal(t, "/tmp/out.csv", rep.ResultPath)
	assert.False(t, rep.IsFinal)
	assert.Len(t, rep.Profiles, 4)
}

func TestReport_FinalPhases(t *testing.T) {
	for _, phase := range []models.Phase{models.PhaseDone, models.PhaseFailed} {
		r := NewReporter(stubState{models.SessionState{Phase: phase}}, NewStore())
		assert.True(t, r.Report().IsFinal, phase)
	}
	r := NewReporter(stubState{models.SessionState{Phase: models.PhaseConfiguring}}, NewStore())
	assert.False(t, r.Report().IsFinal)
}
