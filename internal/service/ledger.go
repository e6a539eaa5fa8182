package service

import (
	"context"
	"errors"

	"github.com/timmy/outreach/internal/domain"
)

// ErrRunNotFound is returned by UpdateRun when the run row does not exist.
var ErrRunNotFound = errors.New("campaign run not found")

// RunLedger is the durable store of campaign runs.
// Getters return (nil, nil) when nothing matches.
type RunLedger interface {
	// GetActiveRun returns the most recent run owned by userID whose state
	// is not IDLE, COMPLETE or FAILED.
	GetActiveRun(ctx context.Context, userID string) (*domain.CampaignRunProgress, error)
	// GetRun returns the most recent run of a campaign in any state.
	GetRun(ctx context.Context, campaignID string) (*domain.CampaignRunProgress, error)
	// CreateRun persists a new run. progress.RunID must be set.
	CreateRun(ctx context.Context, progress *domain.CampaignRunProgress) error
	// UpdateRun overwrites the run identified by progress.RunID.
	// Returns ErrRunNotFound if it does not exist.
	UpdateRun(ctx context.Context, progress *domain.CampaignRunProgress) error
}

// StageExecutor performs one unit of stage work for one contact.
// A non-nil error marks the contact as failed; return *ExecutionError to
// classify the failure.
type StageExecutor interface {
	Execute(ctx context.Context, contact domain.Contact, params domain.StageParams) error
}

// StageExecutorFunc adapts a function to StageExecutor.
type StageExecutorFunc func(ctx context.Context, contact domain.Contact, params domain.StageParams) error

// Execute calls f.
func (f StageExecutorFunc) Execute(ctx context.Context, contact domain.Contact, params domain.StageParams) error {
	return f(ctx, contact, params)
}

// Executors holds one executor per stage.
type Executors struct {
	EmailFinder   StageExecutor
	Personalizer  StageExecutor
	DraftComposer StageExecutor
	Sender        StageExecutor
}

func (e Executors) forStage(stage domain.Stage) StageExecutor {
	switch stage {
	case domain.StageEmailFinding:
		return e.EmailFinder
	case domain.StageInserts:
		return e.Personalizer
	case domain.StageDrafts:
		return e.DraftComposer
	case domain.StageSending:
		return e.Sender
	}
	return nil
}

// RunArchiver stores a snapshot of runs that reached a terminal state.
type RunArchiver interface {
	Archive(ctx context.Context, progress *domain.CampaignRunProgress) error
}

// RunRecorder receives orchestration events for metrics.
type RunRecorder interface {
	ItemProcessed(stage domain.Stage, ok bool)
	StageFinished(stage domain.Stage, to domain.RunState, seconds float64)
	Conflict()
}

type nopRecorder struct{}

func (nopRecorder) ItemProcessed(domain.Stage, bool) {}

func (nopRecorder) StageFinished(domain.Stage, domain.RunState, float64) {}

func (nopRecorder) Conflict() {}
