// Package faults defines the error taxonomy shared by the session core.
//
// Every error carries a Kind. errors.Is matches either the exact sentinel
// or the bare kind sentinel, so callers can branch on ErrGateNotSatisfied
// or on the whole gate category with ErrGate.
package faults

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the session should react to it.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindGate        Kind = "gate"
	KindLifecycle   Kind = "lifecycle"
	KindWorker      Kind = "worker"
	KindConsistency Kind = "consistency"
	KindNotReady    Kind = "not_ready"
)

// Error is a classified session error.
type Error struct {
	Kind Kind
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Kind) + " error"
}

// Is matches any error with the same kind and code, or a bare kind
// sentinel (no Code).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Msg: msg}
}

// Kind sentinels.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrGate         = &Error{Kind: KindGate}
	ErrLifecycle    = &Error{Kind: KindLifecycle}
	ErrWorker       = &Error{Kind: KindWorker}
	ErrConsistency  = &Error{Kind: KindConsistency}
	ErrNotReadyKind = &Error{Kind: KindNotReady}
)

var (
	ErrTemplateTooLong = newError(KindValidation, "template_too_long", "template exceeds length limit")
	ErrEmptyTemplate   = newError(KindValidation, "empty_template", "template is empty")
	ErrInvalidSearch   = newError(KindValidation, "invalid_search", "invalid search parameters")
	ErrInvalidEvent    = newError(KindValidation, "invalid_event", "invalid worker event")

	ErrGateNotSatisfied = newError(KindGate, "gate_not_satisfied", "launch prerequisites not met")

	ErrAlreadyLocked   = newError(KindLifecycle, "already_locked", "summary already locked")
	ErrTemplatesLocked = newError(KindLifecycle, "templates_locked", "templates are locked")
	ErrSessionLaunched = newError(KindLifecycle, "session_launched", "configuration is frozen after launch")
	ErrAlreadyRunning  = newError(KindLifecycle, "already_running", "session is already running")
	ErrAlreadyTerminal = newError(KindLifecycle, "already_terminal", "session has already finished")
	ErrNotRunning      = newError(KindLifecycle, "not_running", "session is not running")

	ErrNotReady  = newError(KindNotReady, "not_ready", "not ready")
	ErrNoResults = newError(KindNotReady, "no_results", "no results were written")

	ErrStatusRegression = newError(KindConsistency, "status_regression", "status transition would regress")
	ErrFieldConflict    = newError(KindConsistency, "field_conflict", "conflicting static fields for profile")
	ErrUnknownProfile   = newError(KindConsistency, "unknown_profile", "status change for undiscovered profile")
	ErrDuplicateResult  = newError(KindConsistency, "duplicate_result", "result already written for profile")
	ErrOverDiscovery    = newError(KindConsistency, "over_discovery", "more profiles discovered than requested")
)

// TemplateTooLongError reports the first template that breaks the length bound.
type TemplateTooLongError struct {
	Index  int
	Length int
	Limit  int
}

func (e *TemplateTooLongError) Error() string {
	return fmt.Sprintf("template %d is %d characters (limit %d)", e.Index, e.Length, e.Limit)
}

// Is lets TemplateTooLongError match ErrTemplateTooLong and ErrValidation.
func (e *TemplateTooLongError) Is(target error) bool {
	return target == ErrTemplateTooLong || target == ErrValidation
}

// Worker wraps a worker-reported reason as a terminal worker fault.
func Worker(reason string) error {
	return fmt.Errorf("%w: %s", ErrWorker, reason)
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	var tl *TemplateTooLongError
	if errors.As(err, &tl) {
		return KindValidation, true
	}
	return "", false
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	if errors.Is(err, ErrNoResults) {
		return http.StatusNotFound
	}
	kind, ok := KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindGate, KindLifecycle, KindNotReady:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
