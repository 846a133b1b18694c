package models

// Report is the read-only progress projection served to polling clients.
type Report struct {
	Phase           Phase           `json:"phase"`
	ProfilesNeeded  int             `json:"profiles_needed"`
	DiscoveredCount int             `json:"discovered_count"`
	CompletedCount  int             `json:"completed_count"`
	ProcessingCount int             `json:"processing_count"`
	PendingCount    int             `json:"pending_count"`
	FailedCount     int             `json:"failed_count"`
	ResultPath      string          `json:"result_path,omitempty"`
	IsFinal         bool            `json:"is_final"`
	FailureReason   string          `json:"failure_reason,omitempty"`
	Message         string          `json:"message,omitempty"`
	Profiles        []ProfileRecord `json:"profiles"`
}
