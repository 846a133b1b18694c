package models

import "time"

// ProfileStatus is the per-profile processing state reported by the worker.
type ProfileStatus string

const (
	ProfileStatusPending    ProfileStatus = "pending"
	ProfileStatusProcessing ProfileStatus = "processing"
	ProfileStatusCompleted  ProfileStatus = "completed"
	ProfileStatusFailed     ProfileStatus = "failed"
)

// Rank orders statuses for forward-only transitions. Unknown statuses rank -1.
func (s ProfileStatus) Rank() int {
	switch s {
	case ProfileStatusPending:
		return 0
	case ProfileStatusProcessing:
		return 1
	case ProfileStatusCompleted, ProfileStatusFailed:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is one of the known statuses.
func (s ProfileStatus) Valid() bool {
	return s.Rank() >= 0
}

// ProfileRecord is one discovered candidate profile.
type ProfileRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	URL       string        `json:"url"`
	Status    ProfileStatus `json:"status"`
	Message   string        `json:"message"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ProfileUpdate is an ingest-path request to insert or advance a record.
// Empty fields leave the stored value untouched.
type ProfileUpdate struct {
	ID      string
	Name    string
	URL     string
	Status  ProfileStatus
	Message string
}

// ProfileDetails is the enriched data extracted for a completed profile.
type ProfileDetails struct {
	FullName          string   `json:"full_name"`
	CurrentTitle      string   `json:"current_title"`
	Company           string   `json:"company"`
	Location          string   `json:"location"`
	Education         []string `json:"education,omitempty"`
	CompaniesWorkedAt []string `json:"companies_worked_at,omitempty"`
	CommonInterests   []string `json:"common_interests,omitempty"`
	CustomMessage     string   `json:"custom_message"`
	ProfileURL        string   `json:"profile_url"`
}
