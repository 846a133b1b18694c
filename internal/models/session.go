package models

import "time"

// Phase is the lifecycle state of the single outreach session.
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseConfiguring Phase = "configuring"
	PhaseRunning     Phase = "running"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// TemplateMode selects which message templates feed personalized notes.
type TemplateMode string

const (
	TemplateModeExamples TemplateMode = "examples"
	TemplateModeCustom   TemplateMode = "custom"
)

// SearchKind distinguishes a pasted search URL from a structured search form.
type SearchKind string

const (
	SearchKindURL  SearchKind = "url"
	SearchKindForm SearchKind = "form"
)

// SearchSpec describes which profiles the worker should look for.
type SearchSpec struct {
	Kind              SearchKind `json:"kind" yaml:"kind"`
	URL               string     `json:"url,omitempty" yaml:"url,omitempty"`
	Companies         string     `json:"companies,omitempty" yaml:"companies,omitempty"`
	Titles            string     `json:"titles,omitempty" yaml:"titles,omitempty"`
	Universities      string     `json:"universities,omitempty" yaml:"universities,omitempty"`
	AdditionalFilters string     `json:"additional_filters,omitempty" yaml:"additional_filters,omitempty"`
	ProfilesNeeded    int        `json:"profiles_needed" yaml:"profiles_needed"`
}

// SessionConfig is a point-in-time copy of the session configuration.
type SessionConfig struct {
	ResumeSummary         string       `json:"resume_summary"`
	SummaryLocked         bool         `json:"summary_locked"`
	TemplateMode          TemplateMode `json:"template_mode"`
	Templates             []string     `json:"templates"`
	CustomTemplate        string       `json:"custom_template"`
	TemplatesLocked       bool         `json:"templates_locked"`
	Search                SearchSpec   `json:"search"`
	SendConnectionRequest bool         `json:"send_connection_request"`
	IncludeNote           bool         `json:"include_note"`
	Frozen                bool         `json:"frozen"`
}

// ActiveTemplates returns the templates selected by the current mode.
func (c SessionConfig) ActiveTemplates() []string {
	if c.TemplateMode == TemplateModeCustom {
		return []string{c.CustomTemplate}
	}
	return c.Templates
}

// LaunchPayload is handed to the automation worker when a session starts.
type LaunchPayload struct {
	Search                SearchSpec `json:"search"`
	ProfilesNeeded        int        `json:"profiles_needed"`
	SendConnectionRequest bool       `json:"send_connection_request"`
	IncludeNote           bool       `json:"include_note"`
	Templates             []string   `json:"templates,omitempty"`
	ResumeSummary         string     `json:"resume_summary,omitempty"`
	// MessageContext is the framed summary and template block the worker's
	// note generator is prompted with. Empty when no note is sent.
	MessageContext string `json:"message_context,omitempty"`
}

// SessionRecord is the persisted history entry for one session.
type SessionRecord struct {
	ID             string     `json:"id"`
	Phase          Phase      `json:"phase"`
	SearchKind     SearchKind `json:"search_kind"`
	SearchLabel    string     `json:"search_label"`
	ProfilesNeeded int        `json:"profiles_needed"`
	ResultPath     string     `json:"result_path,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
	CompletedCount int        `json:"completed_count"`
	FailedCount    int        `json:"failed_count"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

// SessionState is the live lifecycle state of the running session.
type SessionState struct {
	Phase          Phase
	ProfilesNeeded int
	ResultPath     string
	FailureReason  string
	Message        string
}
