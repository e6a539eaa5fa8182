package repository

import (
	"context"
	"sync"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/service"
)

// MemoryLedger is an in-process run ledger for tests and dry runs.
// Rows are kept in insertion order; nothing is persisted.
type MemoryLedger struct {
	mu   sync.RWMutex
	now  func() time.Time
	runs []*domain.CampaignRunProgress
}

var _ service.RunLedger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty ledger using the wall clock.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

// WithClock replaces the clock used for UpdatedAt.
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}

func (l *MemoryLedger) GetActiveRun(_ context.Context, userID string) (*domain.CampaignRunProgress, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var best *domain.CampaignRunProgress
	for _, r := range l.runs {
		if r.UserID != userID || !r.State.IsActive() {
			continue
		}
		if best == nil || !startedAt(r).Before(startedAt(best)) {
			best = r
		}
	}
	return best.Clone(), nil
}

func (l *MemoryLedger) GetRun(_ context.Context, campaignID string) (*domain.CampaignRunProgress, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.runs) - 1; i >= 0; i-- {
		if l.runs[i].CampaignID == campaignID {
			return l.runs[i].Clone(), nil
		}
	}
	return nil, nil
}

func (l *MemoryLedger) CreateRun(_ context.Context, progress *domain.CampaignRunProgress) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	progress.UpdatedAt = l.now()
	l.runs = append(l.runs, stored(progress))
	return nil
}

func (l *MemoryLedger) UpdateRun(_ context.Context, progress *domain.CampaignRunProgress) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, r := range l.runs {
		if r.RunID == progress.RunID {
			progress.UpdatedAt = l.now()
			l.runs[i] = stored(progress)
			return nil
		}
	}
	return service.ErrRunNotFound
}

// Runs returns a copy of every run of a campaign, oldest first.
func (l *MemoryLedger) Runs(campaignID string) []*domain.CampaignRunProgress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []*domain.CampaignRunProgress
	for _, r := range l.runs {
		if r.CampaignID == campaignID {
			out = append(out, r.Clone())
		}
	}
	return out
}

// stored mirrors what the relational ledger keeps for a progress value.
func stored(p *domain.CampaignRunProgress) *domain.CampaignRunProgress {
	cp := p.Clone()
	cp.SyncCounter()
	cp.ErrorMessage = domain.ItemErrors(cp.Errors).Summary()
	return cp
}

func startedAt(p *domain.CampaignRunProgress) time.Time {
	if p.StartedAt == nil {
		return time.Time{}
	}
	return *p.StartedAt
}
