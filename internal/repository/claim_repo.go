package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/outreach/internal/lock"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunClaim is a row of the claim table. A key is held while a row with an
// unexpired ExpiresAt exists for it.
type RunClaim struct {
	Key       string    `gorm:"column:claim_key;type:text;primaryKey" json:"key"`
	Token     string    `gorm:"type:text;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for RunClaim.
func (RunClaim) TableName() string {
	return "run_claims"
}

// ClaimRepository implements lock.Locker on top of the run_claims table.
// The conditional insert makes acquisition atomic across processes that
// share the database.
type ClaimRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ lock.Locker = (*ClaimRepository)(nil)

// NewClaimRepository creates a new ClaimRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ClaimRepository: locker backed by db.
func NewClaimRepository(db *gorm.DB) *ClaimRepository {
	return &ClaimRepository{db: db, now: time.Now}
}

// WithClock replaces the clock used for expiry checks.
func (r *ClaimRepository) WithClock(now func() time.Time) *ClaimRepository {
	r.now = now
	return r
}

// Acquire inserts a claim row for key, first clearing an expired one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: claim key, see lock.UserRunKey.
//   - ttl: lease duration.
// Returns:
//   - lock.Lease: the acquired lease.
//   - error: lock.ErrNotAcquired if key is held; other errors on query failure.
func (r *ClaimRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	now := r.now()
	db := r.db.WithContext(ctx)

	if err := db.Where("claim_key = ? AND expires_at <= ?", key, now).Delete(&RunClaim{}).Error; err != nil {
		return nil, fmt.Errorf("clear expired claim: %w", err)
	}

	claim := RunClaim{Key: key, Token: uuid.New().String(), ExpiresAt: now.Add(ttl)}
	result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&claim)
	if result.Error != nil {
		return nil, fmt.Errorf("insert claim: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, lock.ErrNotAcquired
	}
	return &claimLease{repo: r, key: key, token: claim.Token}, nil
}

// Holder returns the unexpired claim for key, or nil.
func (r *ClaimRepository) Holder(ctx context.Context, key string) (*RunClaim, error) {
	var claims []RunClaim
	if err := r.db.WithContext(ctx).
		Where("claim_key = ? AND expires_at > ?", key, r.now()).
		Limit(1).
		Find(&claims).Error; err != nil {
		return nil, fmt.Errorf("query claim: %w", err)
	}
	if len(claims) == 0 {
		return nil, nil
	}
	return &claims[0], nil
}

type claimLease struct {
	repo  *ClaimRepository
	key   string
	token string
}

func (l *claimLease) Extend(ctx context.Context, ttl time.Duration) error {
	now := l.repo.now()
	result := l.repo.db.WithContext(ctx).
		Model(&RunClaim{}).
		Where("claim_key = ? AND token = ? AND expires_at > ?", l.key, l.token, now).
		Update("expires_at", now.Add(ttl))
	if result.Error != nil {
		return fmt.Errorf("extend claim: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return lock.ErrLeaseLost
	}
	return nil
}

func (l *claimLease) Release(ctx context.Context) error {
	err := l.repo.db.WithContext(ctx).
		Where("claim_key = ? AND token = ?", l.key, l.token).
		Delete(&RunClaim{}).Error
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}
