package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/service"
	"gorm.io/gorm"
)

// inactiveStates are the states that do not count as an active run.
var inactiveStates = []domain.RunState{domain.RunStateIdle, domain.RunStateComplete, domain.RunStateFailed}

// CampaignRunRepository is the relational run ledger.
type CampaignRunRepository struct {
	db *gorm.DB
}

var _ service.RunLedger = (*CampaignRunRepository)(nil)

// NewCampaignRunRepository creates a new CampaignRunRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *CampaignRunRepository: repository instance bound to db.
func NewCampaignRunRepository(db *gorm.DB) *CampaignRunRepository {
	return &CampaignRunRepository{db: db}
}

// GetActiveRun returns the most recent active run owned by userID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: owner of the runs.
// Returns:
//   - *domain.CampaignRunProgress: active run, or nil if none.
//   - error: non-nil if the query fails.
func (r *CampaignRunRepository) GetActiveRun(ctx context.Context, userID string) (*domain.CampaignRunProgress, error) {
	var run domain.CampaignRun
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND state NOT IN ?", userID, inactiveStates).
		Order("started_at DESC").
		Order("created_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active run: %w", err)
	}
	return run.ToProgress(), nil
}

// GetRun returns the most recent run of a campaign in any state.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - campaignID: campaign identifier.
// Returns:
//   - *domain.CampaignRunProgress: latest run, or nil if the campaign never ran.
//   - error: non-nil if the query fails.
func (r *CampaignRunRepository) GetRun(ctx context.Context, campaignID string) (*domain.CampaignRunProgress, error) {
	var run domain.CampaignRun
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at DESC").
		Order("started_at DESC").
		First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign run: %w", err)
	}
	return run.ToProgress(), nil
}

// CreateRun inserts a new ledger row.
func (r *CampaignRunRepository) CreateRun(ctx context.Context, progress *domain.CampaignRunProgress) error {
	var run domain.CampaignRun
	run.ApplyProgress(progress)
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("insert campaign run: %w", err)
	}
	progress.UpdatedAt = run.UpdatedAt
	return nil
}

// UpdateRun overwrites the ledger row identified by progress.RunID.
// Returns service.ErrRunNotFound if the row does not exist.
func (r *CampaignRunRepository) UpdateRun(ctx context.Context, progress *domain.CampaignRunProgress) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run domain.CampaignRun
		err := tx.First(&run, "id = ?", progress.RunID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return service.ErrRunNotFound
		}
		if err != nil {
			return fmt.Errorf("load campaign run: %w", err)
		}
		run.ApplyProgress(progress)
		if err := tx.Save(&run).Error; err != nil {
			return fmt.Errorf("update campaign run: %w", err)
		}
		progress.UpdatedAt = run.UpdatedAt
		return nil
	})
}

// ListRuns returns every run of a campaign, oldest first.
func (r *CampaignRunRepository) ListRuns(ctx context.Context, campaignID string) ([]domain.CampaignRun, error) {
	var runs []domain.CampaignRun
	if err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list campaign runs: %w", err)
	}
	return runs, nil
}
