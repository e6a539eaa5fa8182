package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_Table(t *testing.T) {
	legal := map[RunState]map[RunState]bool{
		RunStateIdle:                {RunStateEmailFindingRunning: true, RunStateInsertsRunning: true},
		RunStateEmailFindingRunning: {RunStateInsertsRunning: true, RunStateFailed: true},
		RunStateInsertsRunning:      {RunStateDraftsRunning: true, RunStateFailed: true},
		RunStateDraftsRunning:       {RunStateSendingRunning: true, RunStateFailed: true},
		RunStateSendingRunning:      {RunStateComplete: true, RunStateFailed: true},
		RunStateComplete:            {},
		RunStateFailed:              {RunStateIdle: true},
	}

	for _, from := range AllRunStates {
		for _, to := range AllRunStates {
			want := legal[from][to]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := Transition(from, to)
			if want {
				assert.NoError(t, err)
				continue
			}
			assert.True(t, errors.Is(err, ErrInvalidTransition), "%s -> %s", from, to)
			var te *TransitionError
			if assert.True(t, errors.As(err, &te)) {
				assert.Equal(t, from, te.From)
				assert.Equal(t, to, te.To)
			}
		}
	}
}

func TestCanTransition_UnknownState(t *testing.T) {
	assert.False(t, CanTransition("BOGUS", RunStateIdle))
	assert.False(t, CanTransition(RunStateIdle, "BOGUS"))
}

func TestRunState_Classification(t *testing.T) {
	active := []RunState{RunStateEmailFindingRunning, RunStateInsertsRunning, RunStateDraftsRunning, RunStateSendingRunning}
	for _, s := range active {
		assert.True(t, s.IsActive(), s)
		assert.False(t, s.IsTerminal(), s)
		stage, ok := s.Stage()
		assert.True(t, ok)
		assert.Equal(t, s, stage.RunningState())
	}

	for _, s := range []RunState{RunStateIdle, RunStateComplete, RunStateFailed} {
		assert.False(t, s.IsActive(), s)
		_, ok := s.Stage()
		assert.False(t, ok)
	}
	assert.True(t, RunStateComplete.IsTerminal())
	assert.True(t, RunStateFailed.IsTerminal())
	assert.False(t, RunStateIdle.IsTerminal())
	assert.False(t, RunState("BOGUS").IsActive())
}

func TestNextState_IsLegal(t *testing.T) {
	for _, stage := range AllStages {
		from := stage.RunningState()
		next, ok := NextState(from)
		assert.True(t, ok, from)
		assert.True(t, CanTransition(from, next), "%s -> %s", from, next)
	}
	_, ok := NextState(RunStateComplete)
	assert.False(t, ok)
	_, ok = NextState(RunStateIdle)
	assert.False(t, ok)
}

func TestCanStart(t *testing.T) {
	startable := map[RunState][]Stage{
		RunStateIdle:                {StageEmailFinding, StageInserts},
		RunStateEmailFindingRunning: {StageEmailFinding},
		RunStateInsertsRunning:      {StageInserts},
		RunStateDraftsRunning:       {StageDrafts},
		RunStateSendingRunning:      {StageSending},
	}

	for _, from := range AllRunStates {
		for _, stage := range AllStages {
			want := false
			for _, s := range startable[from] {
				want = want || s == stage
			}
			assert.Equal(t, want, CanStart(from, stage), "%s start %s", from, stage)

			err := StartTransition(from, stage)
			if want {
				assert.NoError(t, err)
				continue
			}
			var te *TransitionError
			if assert.True(t, errors.As(err, &te), "%s start %s", from, stage) {
				assert.Equal(t, from, te.From)
				assert.Equal(t, stage.RunningState(), te.To)
			}
		}
	}
	assert.False(t, CanStart(RunStateIdle, "bogus"))
}

func TestParseRunState(t *testing.T) {
	s, err := ParseRunState("DRAFTS_RUNNING")
	assert.NoError(t, err)
	assert.Equal(t, RunStateDraftsRunning, s)

	_, err = ParseRunState("drafts")
	assert.Error(t, err)
}
