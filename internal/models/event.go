package models

// EventType identifies a worker progress event.
type EventType string

const (
	EventProfileDiscovered EventType = "profile_discovered"
	EventStatusChanged     EventType = "status_changed"
	EventResultReady       EventType = "result_ready"
	EventFinished          EventType = "finished"
	EventFatalError        EventType = "fatal_error"
)

// Event is one entry of the ordered stream emitted by the automation worker.
type Event struct {
	Type      EventType       `json:"type"`
	ProfileID string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	URL       string          `json:"url,omitempty"`
	Status    ProfileStatus   `json:"status,omitempty"`
	Message   string          `json:"message,omitempty"`
	Path      string          `json:"path,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Details   *ProfileDetails `json:"details,omitempty"`
}
