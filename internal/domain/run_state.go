package domain

import (
	"errors"
	"fmt"
)

// RunState is the state of a campaign run.
// The set of values is closed; use ParseRunState for external input.
type RunState string

const (
	RunStateIdle                RunState = "IDLE"
	RunStateEmailFindingRunning RunState = "EMAIL_FINDING_RUNNING"
	RunStateInsertsRunning      RunState = "INSERTS_RUNNING"
	RunStateDraftsRunning       RunState = "DRAFTS_RUNNING"
	RunStateSendingRunning      RunState = "SENDING_RUNNING"
	RunStateComplete            RunState = "COMPLETE"
	RunStateFailed              RunState = "FAILED"
)

// AllRunStates lists every state in declaration order.
var AllRunStates = []RunState{
	RunStateIdle,
	RunStateEmailFindingRunning,
	RunStateInsertsRunning,
	RunStateDraftsRunning,
	RunStateSendingRunning,
	RunStateComplete,
	RunStateFailed,
}

// ErrInvalidTransition is returned when a transition is not in the table.
var ErrInvalidTransition = errors.New("invalid run state transition")

// transitions is the only place legal state changes are declared.
var transitions = map[RunState][]RunState{
	RunStateIdle:                {RunStateEmailFindingRunning, RunStateInsertsRunning},
	RunStateEmailFindingRunning: {RunStateInsertsRunning, RunStateFailed},
	RunStateInsertsRunning:      {RunStateDraftsRunning, RunStateFailed},
	RunStateDraftsRunning:       {RunStateSendingRunning, RunStateFailed},
	RunStateSendingRunning:      {RunStateComplete, RunStateFailed},
	RunStateComplete:            {},
	RunStateFailed:              {RunStateIdle},
}

// TransitionError describes a rejected transition.
type TransitionError struct {
	From RunState
	To   RunState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition.Error(), e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ParseRunState converts a raw string into a known RunState.
func ParseRunState(s string) (RunState, error) {
	st := RunState(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown run state %q", s)
	}
	return st, nil
}

// Valid reports whether s is one of the declared states.
func (s RunState) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsActive reports whether a run in this state counts against the
// single-active-run limit.
func (s RunState) IsActive() bool {
	switch s {
	case RunStateIdle, RunStateComplete, RunStateFailed:
		return false
	}
	return s.Valid()
}

// IsTerminal reports whether the state closes the run (completedAt is set).
func (s RunState) IsTerminal() bool {
	return s == RunStateComplete || s == RunStateFailed
}

// Stage returns the pipeline stage a running state belongs to.
func (s RunState) Stage() (Stage, bool) {
	switch s {
	case RunStateEmailFindingRunning:
		return StageEmailFinding, true
	case RunStateInsertsRunning:
		return StageInserts, true
	case RunStateDraftsRunning:
		return StageDrafts, true
	case RunStateSendingRunning:
		return StageSending, true
	}
	return "", false
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to RunState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns a *TransitionError if illegal.
func Transition(from, to RunState) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	return nil
}

// CanStart reports whether stage may be started on a run in state s.
// A running state accepts only its own stage; the run moves on to the
// next stage at the stage boundary, never by starting it.
func CanStart(s RunState, stage Stage) bool {
	target := stage.RunningState()
	if target == "" {
		return false
	}
	if s.IsActive() {
		return s == target
	}
	return CanTransition(s, target)
}

// StartTransition validates starting stage from s and returns a
// *TransitionError if stage is not startable.
func StartTransition(s RunState, stage Stage) error {
	if !CanStart(s, stage) {
		return &TransitionError{From: s, To: stage.RunningState()}
	}
	return nil
}

// NextState returns the state a running stage advances to on success.
func NextState(s RunState) (RunState, bool) {
	switch s {
	case RunStateEmailFindingRunning:
		return RunStateInsertsRunning, true
	case RunStateInsertsRunning:
		return RunStateDraftsRunning, true
	case RunStateDraftsRunning:
		return RunStateSendingRunning, true
	case RunStateSendingRunning:
		return RunStateComplete, true
	}
	return "", false
}

// Stage is one of the four fixed pipeline phases.
type Stage string

const (
	StageEmailFinding Stage = "email_finding"
	StageInserts      Stage = "inserts"
	StageDrafts       Stage = "drafts"
	StageSending      Stage = "sending"
)

// AllStages lists the stages in pipeline order.
var AllStages = []Stage{StageEmailFinding, StageInserts, StageDrafts, StageSending}

// RunningState returns the running state of the stage.
func (s Stage) RunningState() RunState {
	switch s {
	case StageEmailFinding:
		return RunStateEmailFindingRunning
	case StageInserts:
		return RunStateInsertsRunning
	case StageDrafts:
		return RunStateDraftsRunning
	case StageSending:
		return RunStateSendingRunning
	}
	return ""
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	return s.RunningState() != ""
}
