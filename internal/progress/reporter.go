package progress

import "github.com/pritzvi/linked-out/internal/models"

// StateSource supplies the lifecycle half of a report.
type StateSource interface {
	State() models.SessionState
}

// Reporter composes lifecycle state and a progress snapshot for pollers.
type Reporter struct {
	state StateSource
	store *Store
}

// NewReporter creates a Reporter over the given state and store.
func NewReporter(state StateSource, store *Store) *Reporter {
	return &Reporter{state: state, store: store}
}

// Report returns the current progress. It holds no lock of its own; the only
// contention with the ingest path is the store's snapshot section.
func (r *Reporter) Report() models.Report {
	st := r.state.State()
	snap := r.store.Snapshot()

	return models.Report{
		Phase:           st.Phase,
		ProfilesNeeded:  st.ProfilesNeeded,
		DiscoveredCount: snap.TotalDiscovered,
		CompletedCount:  snap.CompletedCount,
		ProcessingCount: snap.ProcessingCount,
		PendingCount:    PendingCount(st.ProfilesNeeded, snap),
		FailedCount:     snap.FailedCount,
		ResultPath:      st.ResultPath,
		IsFinal:         st.Phase.IsTerminal(),
		FailureReason:   st.FailureReason,
		Message:         st.Message,
		Profiles:        snap.Records,
	}
}
