package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/source"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactRepository reads campaigns and their contacts.
type ContactRepository struct {
	db *gorm.DB
}

var (
	_ source.ContactSource    = (*ContactRepository)(nil)
	_ source.CampaignResolver = (*ContactRepository)(nil)
)

// NewContactRepository creates a new ContactRepository.
func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// ResolveCampaign loads a campaign owned by userID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - userID: expected owner.
//   - campaignID: campaign identifier.
// Returns:
//   - *domain.Campaign: the campaign.
//   - error: source.ErrCampaignNotFound if unknown or owned by another user.
func (r *ContactRepository) ResolveCampaign(ctx context.Context, userID, campaignID string) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := r.db.WithContext(ctx).First(&campaign, "id = ? AND user_id = ?", campaignID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, source.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query campaign: %w", err)
	}
	return &campaign, nil
}

// CountContacts returns the number of contacts in a campaign.
func (r *ContactRepository) CountContacts(ctx context.Context, campaignID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&domain.Contact{}).
		Where("campaign_id = ?", campaignID).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count contacts: %w", err)
	}
	return int(count), nil
}

// FetchContacts returns the page of contacts after afterID, ordered by id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - campaignID: campaign identifier.
//   - afterID: exclusive cursor; empty starts at the first contact.
//   - limit: page size.
// Returns:
//   - []domain.Contact: up to limit contacts.
//   - error: non-nil if the query fails.
func (r *ContactRepository) FetchContacts(ctx context.Context, campaignID, afterID string, limit int) ([]domain.Contact, error) {
	var contacts []domain.Contact
	query := r.db.WithContext(ctx).Where("campaign_id = ?", campaignID)
	if afterID != "" {
		query = query.Where("id > ?", afterID)
	}
	if err := query.Order("id ASC").Limit(limit).Find(&contacts).Error; err != nil {
		return nil, fmt.Errorf("fetch contacts: %w", err)
	}
	return contacts, nil
}

// CreateCampaign inserts a campaign.
func (r *ContactRepository) CreateCampaign(ctx context.Context, campaign *domain.Campaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

// UpsertContacts inserts contacts or updates them by id.
func (r *ContactRepository) UpsertContacts(ctx context.Context, contacts []domain.Contact) error {
	if len(contacts) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).CreateInBatches(contacts, 100).Error
}

// UpdateStageResult stores the output of a stage on a contact.
// Only non-empty fields of result are written.
func (r *ContactRepository) UpdateStageResult(ctx context.Context, contactID string, result domain.Contact) error {
	updates := map[string]interface{}{}
	if result.Email != "" {
		updates["email"] = result.Email
	}
	if result.Insert != "" {
		updates["personalized_insert"] = result.Insert
	}
	if result.DraftID != "" {
		updates["draft_id"] = result.DraftID
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.Contact{}).Where("id = ?", contactID).Updates(updates).Error
}
