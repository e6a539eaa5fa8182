package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/lock"
	"github.com/timmy/outreach/internal/logger"
	"github.com/timmy/outreach/internal/source"
)

const (
	defaultWorkers    = 4
	defaultBatchSize  = 50
	defaultStaleAfter = 15 * time.Minute
)

// OrchestratorConfig holds tuning for the batch loop.
type OrchestratorConfig struct {
	Workers    int           // concurrent executor calls per batch
	BatchSize  int           // contacts per checkpoint
	StaleAfter time.Duration // claim lease TTL and staleness timeout
}

// OrchestratorDeps are the collaborators of the orchestrator.
// Archiver and Recorder are optional.
type OrchestratorDeps struct {
	Ledger    RunLedger
	Contacts  source.ContactSource
	Campaigns source.CampaignResolver
	Executors Executors
	Locker    lock.Locker
	Archiver  RunArchiver
	Recorder  RunRecorder
	Logger    *logger.Logger
}

// Orchestrator drives campaigns through the four pipeline stages.
type Orchestrator struct {
	ledger     RunLedger
	contacts   source.ContactSource
	campaigns  source.CampaignResolver
	executors  Executors
	locker     lock.Locker
	archiver   RunArchiver
	recorder   RunRecorder
	logger     *logger.Logger
	workers    int
	batchSize  int
	staleAfter time.Duration
	now        func() time.Time
	newID      func() string
}

// NewOrchestrator creates a new orchestrator.
// Zero config values fall back to defaults.
func NewOrchestrator(deps OrchestratorDeps, cfg *OrchestratorConfig) *Orchestrator {
	if cfg == nil {
		cfg = &OrchestratorConfig{}
	}
	o := &Orchestrator{
		ledger:     deps.Ledger,
		contacts:   deps.Contacts,
		campaigns:  deps.Campaigns,
		executors:  deps.Executors,
		locker:     deps.Locker,
		archiver:   deps.Archiver,
		recorder:   deps.Recorder,
		logger:     deps.Logger,
		workers:    cfg.Workers,
		batchSize:  cfg.BatchSize,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
	}
	if o.workers <= 0 {
		o.workers = defaultWorkers
	}
	if o.batchSize <= 0 {
		o.batchSize = defaultBatchSize
	}
	if o.staleAfter <= 0 {
		o.staleAfter = defaultStaleAfter
	}
	if o.locker == nil {
		o.locker = lock.NewMemory()
	}
	if o.recorder == nil {
		o.recorder = nopRecorder{}
	}
	if o.logger == nil {
		o.logger = logger.GetDefault()
	}
	return o
}

// log returns the logger carried by ctx, or the orchestrator's own.
func (o *Orchestrator) log(ctx context.Context) *logger.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	return o.logger
}

// withLogger makes sure ctx carries a logger so context fields build on
// the orchestrator's logger rather than the process default.
func (o *Orchestrator) withLogger(ctx context.Context) context.Context {
	if _, ok := logger.Lookup(ctx); ok {
		return ctx
	}
	return o.logger.WithContext(ctx)
}

type startRequest struct {
	userID     string
	campaignID string
	stage      domain.Stage
	params     domain.StageParams
}

func (r startRequest) validate() error {
	if r.userID == "" {
		return validationError("user id is required")
	}
	if r.campaignID == "" {
		return validationError("campaign id is required")
	}
	if r.stage == domain.StageDrafts && r.params.TemplateID == "" {
		return validationError("template id is required for drafts")
	}
	return nil
}

// StartEmailFinding runs the email finding stage for a campaign.
func (o *Orchestrator) StartEmailFinding(ctx context.Context, userID, campaignID string) (*domain.CampaignRunProgress, error) {
	return o.start(ctx, startRequest{userID: userID, campaignID: campaignID, stage: domain.StageEmailFinding})
}

// StartInserts runs the personalized insert stage for a campaign.
func (o *Orchestrator) StartInserts(ctx context.Context, userID, campaignID string) (*domain.CampaignRunProgress, error) {
	return o.start(ctx, startRequest{userID: userID, campaignID: campaignID, stage: domain.StageInserts})
}

// StartDrafts runs the draft composition stage using templateID.
func (o *Orchestrator) StartDrafts(ctx context.Context, userID, campaignID, templateID string) (*domain.CampaignRunProgress, error) {
	return o.start(ctx, startRequest{
		userID:     userID,
		campaignID: campaignID,
		stage:      domain.StageDrafts,
		params:     domain.StageParams{TemplateID: templateID},
	})
}

// StartSending runs the sending stage for a campaign.
func (o *Orchestrator) StartSending(ctx context.Context, userID, campaignID string) (*domain.CampaignRunProgress, error) {
	return o.start(ctx, startRequest{userID: userID, campaignID: campaignID, stage: domain.StageSending})
}

// StartStage dispatches to the Start* operation of stage.
func (o *Orchestrator) StartStage(ctx context.Context, stage domain.Stage, userID, campaignID string, params domain.StageParams) (*domain.CampaignRunProgress, error) {
	if !stage.Valid() {
		return nil, validationError(fmt.Sprintf("unknown stage %q", stage))
	}
	return o.start(ctx, startRequest{userID: userID, campaignID: campaignID, stage: stage, params: params})
}

// GetStatus returns the most recent run of a campaign, or an idle
// snapshot when the campaign has never run. It does not check ownership;
// request paths use GetUserStatus.
func (o *Orchestrator) GetStatus(ctx context.Context, campaignID string) (*domain.CampaignRunProgress, error) {
	if campaignID == "" {
		return nil, validationError("campaign id is required")
	}
	run, err := o.ledger.GetRun(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign run: %w", err)
	}
	if run == nil {
		return domain.IdleProgress(campaignID), nil
	}
	if run.Errors == nil {
		run.Errors = []domain.ItemError{}
	}
	return run, nil
}

// GetUserStatus is GetStatus for a campaign owned by userID. Campaigns the
// user does not own are reported as not found.
func (o *Orchestrator) GetUserStatus(ctx context.Context, userID, campaignID string) (*domain.CampaignRunProgress, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if campaignID == "" {
		return nil, validationError("campaign id is required")
	}
	if err := o.resolve(ctx, userID, campaignID); err != nil {
		return nil, err
	}
	return o.GetStatus(ctx, campaignID)
}

func (o *Orchestrator) resolve(ctx context.Context, userID, campaignID string) error {
	if _, err := o.campaigns.ResolveCampaign(ctx, userID, campaignID); err != nil {
		if errors.Is(err, source.ErrCampaignNotFound) {
			return newRunError(KindNotFound, "campaign not found", ErrCampaignNotFound)
		}
		return fmt.Errorf("failed to resolve campaign: %w", err)
	}
	return nil
}

// claim takes the user's active-run lease. The returned release function
// runs even when ctx is already cancelled.
func (o *Orchestrator) claim(ctx context.Context, userID string) (lock.Lease, func(), error) {
	lease, err := o.locker.Acquire(ctx, lock.UserRunKey(userID), o.staleAfter)
	if errors.Is(err, lock.ErrNotAcquired) {
		o.recorder.Conflict()
		return nil, nil, conflictError("a stage is already being processed for this user")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to claim active run: %w", err)
	}
	release := func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			o.log(ctx).WithError(err).Warn("Failed to release active run claim")
		}
	}
	return lease, release, nil
}

func (o *Orchestrator) start(ctx context.Context, req startRequest) (*domain.CampaignRunProgress, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	executor := o.executors.forStage(req.stage)
	if executor == nil {
		return nil, validationError(fmt.Sprintf("no executor configured for stage %s", req.stage))
	}

	ctx = logger.WithFields(o.withLogger(ctx), logger.Fields{
		logger.FieldUserID:     req.userID,
		logger.FieldCampaignID: req.campaignID,
		logger.FieldStage:      string(req.stage),
	})

	if err := o.resolve(ctx, req.userID, req.campaignID); err != nil {
		return nil, err
	}

	lease, release, err := o.claim(ctx, req.userID)
	if err != nil {
		return nil, err
	}
	defer release()

	progress, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	ctx = logger.SetRunID(ctx, progress.RunID)

	return o.runStage(ctx, req, executor, progress, lease)
}

// prepare checks the single-active-run invariant and the transition table,
// then creates or updates the ledger row for the requested stage.
func (o *Orchestrator) prepare(ctx context.Context, req startRequest) (*domain.CampaignRunProgress, error) {
	active, err := o.ledger.GetActiveRun(ctx, req.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active run: %w", err)
	}
	if active != nil && active.CampaignID != req.campaignID {
		o.recorder.Conflict()
		return nil, conflictError(fmt.Sprintf("campaign %s has an active run in state %s", active.CampaignID, active.State))
	}

	current, err := o.ledger.GetRun(ctx, req.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign run: %w", err)
	}

	target := req.stage.RunningState()
	from := domain.RunStateIdle
	if current != nil {
		from = current.State
	}
	if err := domain.StartTransition(from, req.stage); err != nil {
		return nil, newRunError(KindInvalidTransition, "stage cannot start from the current state", err)
	}
	resume := from == target

	total, err := o.contacts.CountContacts(ctx, req.campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to count contacts: %w", err)
	}

	now := o.now()
	if current == nil {
		progress := &domain.CampaignRunProgress{
			RunID:      o.newID(),
			CampaignID: req.campaignID,
			UserID:     req.userID,
			State:      target,
			Stage:      req.stage,
			TotalCount: total,
			Counters:   domain.StageCounters{},
			Errors:     []domain.ItemError{},
			StartedAt:  &now,
			Processing: true,
		}
		progress.SyncCounter()
		if err := o.ledger.CreateRun(ctx, progress); err != nil {
			return nil, persistenceError("failed to create campaign run", err)
		}
		return progress, nil
	}

	progress := current.Clone()
	if progress.Counters == nil {
		progress.Counters = domain.StageCounters{}
	}
	if progress.StartedAt == nil {
		progress.StartedAt = &now
	}
	progress.UserID = req.userID
	progress.State = target
	progress.CompletedAt = nil

	interrupted := resume && current.Processing && current.Cursor != "" &&
		current.Stage == req.stage && current.ProcessedCount <= total
	if interrupted {
		o.log(ctx).WithFields(logger.Fields{
			"cursor":    current.Cursor,
			"processed": current.ProcessedCount,
		}).Info("Resuming interrupted stage from checkpoint")
		progress.TotalCount = total
	} else {
		progress.Stage = req.stage
		progress.TotalCount = total
		progress.ProcessedCount = 0
		progress.Errors = []domain.ItemError{}
		progress.ErrorMessage = ""
		progress.Cursor = ""
	}
	progress.Processing = true
	progress.SyncCounter()

	if err := o.ledger.UpdateRun(ctx, progress); err != nil {
		return nil, persistenceError("failed to start campaign run", err)
	}
	return progress, nil
}

// runStage executes the batch loop and persists the stage boundary.
func (o *Orchestrator) runStage(
	ctx context.Context,
	req startRequest,
	executor StageExecutor,
	progress *domain.CampaignRunProgress,
	lease lock.Lease,
) (*domain.CampaignRunProgress, error) {
	startTime := o.now()
	o.log(ctx).WithFields(logger.Fields{
		"total":   progress.TotalCount,
		"workers": o.workers,
	}).Info("Starting campaign stage")

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		contacts, err := o.contacts.FetchContacts(ctx, req.campaignID, progress.Cursor, o.batchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch contacts: %w", err)
		}
		if len(contacts) == 0 {
			break
		}

		results := o.runBatch(ctx, executor, contacts, req.params)
		if err := ctx.Err(); err != nil {
			// The batch is not checkpointed; a resume replays it.
			return nil, err
		}
		o.accumulate(progress, req.stage, contacts, results)

		if err := o.checkpoint(ctx, progress, lease); err != nil {
			return nil, err
		}
		if len(contacts) < o.batchSize {
			break
		}
	}

	return o.finish(ctx, req.stage, progress, startTime)
}

// accumulate folds batch results into progress in contact order.
func (o *Orchestrator) accumulate(progress *domain.CampaignRunProgress, stage domain.Stage, contacts []domain.Contact, results []error) {
	for i, contact := range contacts {
		if results[i] == nil {
			progress.ProcessedCount++
			o.recorder.ItemProcessed(stage, true)
			continue
		}
		progress.Errors = append(progress.Errors, toItemError(contact.ID, progress.State, results[i]))
		o.recorder.ItemProcessed(stage, false)
	}
	// Contacts added after the count was taken still keep processed <= total.
	if seen := progress.ProcessedCount + len(progress.Errors); seen > progress.TotalCount {
		progress.TotalCount = seen
	}
	progress.Cursor = contacts[len(contacts)-1].ID
	progress.SyncCounter()
	progress.ErrorMessage = domain.ItemErrors(progress.Errors).Summary()
}

func (o *Orchestrator) checkpoint(ctx context.Context, progress *domain.CampaignRunProgress, lease lock.Lease) error {
	if err := o.ledger.UpdateRun(ctx, progress); err != nil {
		return persistenceError("failed to checkpoint campaign run", err)
	}
	if err := lease.Extend(ctx, o.staleAfter); err != nil {
		if errors.Is(err, lock.ErrLeaseLost) {
			return conflictError("active run claim expired during the stage")
		}
		o.log(ctx).WithError(err).Warn("Failed to extend active run claim")
	}
	o.log(ctx).WithFields(logger.Fields{
		"cursor":    progress.Cursor,
		"processed": progress.ProcessedCount,
		"failed":    len(progress.Errors),
	}).Debug("Checkpointed campaign stage")
	return nil
}

// finish applies the stage-boundary transition: a non-empty stage where
// every contact failed goes to FAILED, anything else advances.
func (o *Orchestrator) finish(ctx context.Context, stage domain.Stage, progress *domain.CampaignRunProgress, startTime time.Time) (*domain.CampaignRunProgress, error) {
	from := progress.State
	to, _ := domain.NextState(from)
	if progress.TotalCount > 0 && progress.ProcessedCount == 0 {
		to = domain.RunStateFailed
	}
	if err := domain.Transition(from, to); err != nil {
		return nil, newRunError(KindInvalidTransition, "stage cannot complete", err)
	}

	now := o.now()
	progress.State = to
	progress.Processing = false
	progress.Cursor = ""
	progress.ErrorMessage = domain.ItemErrors(progress.Errors).Summary()
	if to.IsTerminal() {
		progress.CompletedAt = &now
	}
	if err := o.ledger.UpdateRun(ctx, progress); err != nil {
		return nil, persistenceError("failed to complete campaign stage", err)
	}

	duration := now.Sub(startTime)
	o.recorder.StageFinished(stage, to, duration.Seconds())

	entry := logger.With(logger.Fields{
		logger.FieldDurationMs: duration.Milliseconds(),
		logger.FieldCount:      progress.ProcessedCount,
		logger.FieldFailed:     len(progress.Errors),
		logger.FieldStatus:     string(to),
	})
	if to == domain.RunStateFailed {
		entry.Warn(ctx, "Campaign stage failed: total=%d, error=%s", progress.TotalCount, progress.ErrorMessage)
	} else {
		entry.Info(ctx, "Campaign stage completed: total=%d, next=%s", progress.TotalCount, to)
	}

	if to.IsTerminal() {
		o.archive(ctx, progress)
	}
	return progress.Clone(), nil
}

func (o *Orchestrator) archive(ctx context.Context, progress *domain.CampaignRunProgress) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.Archive(ctx, progress); err != nil {
		o.log(ctx).WithError(err).Warn("Failed to archive campaign run")
	}
}

// Reset moves a FAILED campaign back to IDLE by appending a new IDLE run.
// An active run without a checkpoint for longer than the stale timeout is
// first marked FAILED.
func (o *Orchestrator) Reset(ctx context.Context, userID, campaignID string) (*domain.CampaignRunProgress, error) {
	if userID == "" {
		return nil, validationError("user id is required")
	}
	if campaignID == "" {
		return nil, validationError("campaign id is required")
	}
	ctx = logger.WithFields(o.withLogger(ctx), logger.Fields{
		logger.FieldUserID:     userID,
		logger.FieldCampaignID: campaignID,
	})

	if err := o.resolve(ctx, userID, campaignID); err != nil {
		return nil, err
	}
	_, release, err := o.claim(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	current, err := o.ledger.GetRun(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign run: %w", err)
	}
	if current == nil {
		return nil, newRunError(KindInvalidTransition, "campaign has no run to reset",
			&domain.TransitionError{From: domain.RunStateIdle, To: domain.RunStateIdle})
	}

	now := o.now()
	if current.State.IsActive() {
		if now.Sub(current.UpdatedAt) < o.staleAfter {
			return nil, newRunError(KindInvalidTransition, "run is active and not stale",
				&domain.TransitionError{From: current.State, To: domain.RunStateIdle})
		}
		abandoned := current.Clone()
		if err := domain.Transition(abandoned.State, domain.RunStateFailed); err != nil {
			return nil, newRunError(KindInvalidTransition, "run cannot be abandoned", err)
		}
		abandoned.State = domain.RunStateFailed
		abandoned.Processing = false
		abandoned.CompletedAt = &now
		if err := o.ledger.UpdateRun(ctx, abandoned); err != nil {
			return nil, persistenceError("failed to abandon stale run", err)
		}
		o.log(ctx).WithFields(logger.Fields{
			logger.FieldRunID: abandoned.RunID,
			"last_update":     current.UpdatedAt,
		}).Warn("Abandoned stale campaign run")
		o.archive(ctx, abandoned)
		current = abandoned
	}

	if err := domain.Transition(current.State, domain.RunStateIdle); err != nil {
		return nil, newRunError(KindInvalidTransition, "run cannot be reset", err)
	}

	idle := &domain.CampaignRunProgress{
		RunID:      o.newID(),
		CampaignID: campaignID,
		UserID:     userID,
		State:      domain.RunStateIdle,
		Counters:   domain.StageCounters{},
		Errors:     []domain.ItemError{},
		StartedAt:  &now,
	}
	if err := o.ledger.CreateRun(ctx, idle); err != nil {
		return nil, persistenceError("failed to reset campaign run", err)
	}
	o.log(ctx).WithField("previous_run_id", current.RunID).Info("Campaign run reset to idle")
	return idle.Clone(), nil
}
