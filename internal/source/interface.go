package source

import (
	"context"
	"errors"

	"github.com/timmy/outreach/internal/domain"
)

// ErrCampaignNotFound is returned when a campaign is unknown or not owned
// by the requesting user.
var ErrCampaignNotFound = errors.New("campaign not found")

// ContactSource resolves the contacts that belong to a campaign.
type ContactSource interface {
	// CountContacts returns the number of contacts in the campaign.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - campaignID: campaign identifier.
	// Returns:
	//   - int: number of contacts.
	//   - error: non-nil if the count fails.
	CountContacts(ctx context.Context, campaignID string) (int, error)

	// FetchContacts returns up to limit contacts whose id sorts after afterID,
	// ordered by id ascending. An empty afterID starts from the beginning.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - campaignID: campaign identifier.
	//   - afterID: exclusive cursor or empty for the first page.
	//   - limit: maximum number of contacts to return.
	// Returns:
	//   - []domain.Contact: page of contacts; empty when exhausted.
	//   - error: non-nil if fetching fails.
	FetchContacts(ctx context.Context, campaignID, afterID string, limit int) ([]domain.Contact, error)
}

// CampaignResolver checks that a campaign exists and belongs to a user.
type CampaignResolver interface {
	// ResolveCampaign returns ErrCampaignNotFound when the campaign is
	// unknown or owned by someone else.
	ResolveCampaign(ctx context.Context, userID, campaignID string) (*domain.Campaign, error)
}
