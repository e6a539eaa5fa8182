package service

import (
	"errors"
	"fmt"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/source"
)

// Run orchestration error constants
var (
	ErrCampaignNotFound  = source.ErrCampaignNotFound
	ErrActiveRunConflict = errors.New("another campaign run is active for this user")
	ErrInvalidTransition = domain.ErrInvalidTransition
	ErrValidation        = errors.New("validation failed")
	ErrPersistence       = errors.New("run ledger write failed")
)

// ErrorKind classifies orchestrator failures for callers.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindInvalidTransition ErrorKind = "invalid_transition"
	KindValidation        ErrorKind = "validation"
	KindPersistence       ErrorKind = "persistence"
)

// RunError is the error type returned by the orchestrator's public
// operations. Err is always one of the sentinels above, possibly wrapping
// the underlying cause.
type RunError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func newRunError(kind ErrorKind, message string, err error) *RunError {
	return &RunError{Kind: kind, Message: message, Err: err}
}

func validationError(message string) *RunError {
	return newRunError(KindValidation, message, ErrValidation)
}

func conflictError(message string) *RunError {
	return newRunError(KindConflict, message, ErrActiveRunConflict)
}

func persistenceError(message string, err error) *RunError {
	return newRunError(KindPersistence, message, fmt.Errorf("%w: %v", ErrPersistence, err))
}

// KindOf returns the ErrorKind of err, or "" when err is not a RunError.
func KindOf(err error) ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// ExecutionError is the typed failure a stage executor returns for one
// contact.
type ExecutionError struct {
	Kind    string
	Message string
}

func (e *ExecutionError) Error() string {
	if e.Kind == "" {
		return e.Message
	}
	return e.Kind + ": " + e.Message
}

// Execution error kinds shared by the bundled executors.
const (
	ExecKindRejected    = "rejected"
	ExecKindRateLimited = "rate_limited"
	ExecKindUpstream    = "upstream"
	ExecKindTransport   = "transport"
	ExecKindUnknown     = "unknown"
)

// toItemError converts any executor error into a recorded item failure.
func toItemError(contactID string, state domain.RunState, err error) domain.ItemError {
	item := domain.ItemError{ContactID: contactID, Stage: state, Kind: ExecKindUnknown, Error: err.Error()}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		item.Error = ee.Message
		if ee.Kind != "" {
			item.Kind = ee.Kind
		}
	}
	return item
}
