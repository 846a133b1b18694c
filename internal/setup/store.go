// Package setup holds the session configuration and its readiness gates.
package setup

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pritzvi/linked-out/internal/faults"
	"github.com/pritzvi/linked-out/internal/models"
)

// Store holds the single session's configuration. The summary and the
// templates each lock exactly once; once locked they never change again.
type Store struct {
	mu       sync.RWMutex
	cfg      models.SessionConfig
	onChange func()
}

// NewStore creates a Store with the defaults of a fresh session: example
// templates, connection requests with notes enabled.
func NewStore() *Store {
	return &Store{
		cfg: models.SessionConfig{
			TemplateMode:          models.TemplateModeExamples,
			SendConnectionRequest: true,
			IncludeNote:           true,
		},
	}
}

// OnChange registers fn to run after every successful mutation.
// fn runs without the store lock held.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Store) notify() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// View returns a copy of the current configuration.
func (s *Store) View() models.SessionConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.Templates = append([]string(nil), s.cfg.Templates...)
	return cfg
}

// SetResumeSummary overwrites the summary while it is still unlocked.
func (s *Store) SetResumeSummary(summary string) error {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.cfg.SummaryLocked {
		s.mu.Unlock()
		return faults.ErrAlreadyLocked
	}
	s.cfg.ResumeSummary = summary
	s.mu.Unlock()

	s.notify()
	return nil
}

// LockSummary locks the summary. A second call returns ErrAlreadyLocked and
// leaves the configuration untouched; callers may treat it as success.
func (s *Store) LockSummary() error {
	s.mu.Lock()
	if s.cfg.SummaryLocked {
		s.mu.Unlock()
		return faults.ErrAlreadyLocked
	}
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if strings.TrimSpace(s.cfg.ResumeSummary) == "" {
		s.mu.Unlock()
		return &faults.Error{Kind: faults.KindValidation, Code: "empty_summary", Msg: "resume summary is empty"}
	}
	s.cfg.SummaryLocked = true
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetTemplates replaces the templates and the active mode. Lengths are not
// checked here so the user can keep editing; ConfirmTemplates enforces them.
func (s *Store) SetTemplates(mode models.TemplateMode, templates []string, custom string) error {
	if mode != models.TemplateModeExamples && mode != models.TemplateModeCustom {
		return &faults.Error{Kind: faults.KindValidation, Code: "invalid_template_mode",
			Msg: fmt.Sprintf("unknown template mode %q", mode)}
	}

	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.cfg.TemplatesLocked {
		s.mu.Unlock()
		return faults.ErrTemplatesLocked
	}
	s.cfg.TemplateMode = mode
	s.cfg.Templates = append([]string(nil), templates...)
	s.cfg.CustomTemplate = custom
	s.mu.Unlock()

	s.notify()
	return nil
}

// ConfirmTemplates validates the active templates and locks them. On any
// violation the templates stay unlocked.
func (s *Store) ConfirmTemplates() error {
	s.mu.Lock()
	if s.cfg.TemplatesLocked {
		s.mu.Unlock()
		return faults.ErrTemplatesLocked
	}
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := ValidateTemplates(s.cfg.ActiveTemplates()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg.TemplatesLocked = true
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetSearch replaces the search parameters after validating them.
func (s *Store) SetSearch(spec models.SearchSpec) error {
	if err := ValidateSearch(spec); err != nil {
		return err
	}

	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg.Search = spec
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetOutreach sets the connection flags. A note is only possible with a
// connection request, so includeNote is forced off when send is off.
func (s *Store) SetOutreach(send, includeNote bool) error {
	s.mu.Lock()
	if err := s.mutableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.cfg.SendConnectionRequest = send
	s.cfg.IncludeNote = includeNote && send
	s.mu.Unlock()

	s.notify()
	return nil
}

// CanLaunch reports whether the launch gate is open.
func (s *Store) CanLaunch() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canLaunchLocked()
}

func (s *Store) canLaunchLocked() bool {
	c := s.cfg
	return c.SummaryLocked && (!c.SendConnectionRequest || !c.IncludeNote || c.TemplatesLocked)
}

// BuildLaunchPayload projects the configuration into the worker payload.
// It fails with ErrNotReady while the gate is closed or the search is unset.
func (s *Store) BuildLaunchPayload() (models.LaunchPayload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildLocked()
}

func (s *Store) buildLocked() (models.LaunchPayload, error) {
	if !s.canLaunchLocked() {
		return models.LaunchPayload{}, &faults.Error{Kind: faults.KindNotReady, Code: faults.ErrNotReady.Code,
			Msg: "resume summary must be locked and, when notes are sent, templates confirmed"}
	}
	if err := ValidateSearch(s.cfg.Search); err != nil {
		return models.LaunchPayload{}, fmt.Errorf("%w: %w", faults.ErrNotReady, err)
	}

	p := models.LaunchPayload{
		Search:                s.cfg.Search,
		ProfilesNeeded:        s.cfg.Search.ProfilesNeeded,
		SendConnectionRequest: s.cfg.SendConnectionRequest,
		IncludeNote:           s.cfg.IncludeNote,
		ResumeSummary:         s.cfg.ResumeSummary,
	}
	if p.SendConnectionRequest && p.IncludeNote {
		p.Templates = append([]string(nil), s.cfg.ActiveTemplates()...)
		p.MessageContext = FormatSummary(p.ResumeSummary) + "\n\n" + FormatTemplates(p.Templates)
	}
	return p, nil
}

// FreezeForLaunch builds the launch payload and, if the gate is open, makes
// the whole configuration immutable in the same critical section.
func (s *Store) FreezeForLaunch() (models.LaunchPayload, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.Frozen {
		return models.LaunchPayload{}, faults.ErrSessionLaunched
	}
	p, err := s.buildLocked()
	if err != nil {
		return models.LaunchPayload{}, err
	}
	s.cfg.Frozen = true
	return p, nil
}

func (s *Store) mutableLocked() error {
	if s.cfg.Frozen {
		return faults.ErrSessionLaunched
	}
	return nil
}

// ValidateSearch checks the required fields for the search kind.
func ValidateSearch(spec models.SearchSpec) error {
	if spec.ProfilesNeeded <= 0 {
		return fmt.Errorf("%w: profiles_needed must be positive", faults.ErrInvalidSearch)
	}
	switch spec.Kind {
	case models.SearchKindURL:
		if strings.TrimSpace(spec.URL) == "" {
			return fmt.Errorf("%w: url is required", faults.ErrInvalidSearch)
		}
	case models.SearchKindForm:
		var missing []string
		if len(SplitList(spec.Companies)) == 0 {
			missing = append(missing, "companies")
		}
		if len(SplitList(spec.Titles)) == 0 {
			missing = append(missing, "titles")
		}
		if len(SplitList(spec.Universities)) == 0 {
			missing = append(missing, "universities")
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: missing %s", faults.ErrInvalidSearch, strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("%w: unknown search kind %q", faults.ErrInvalidSearch, spec.Kind)
	}
	return nil
}
