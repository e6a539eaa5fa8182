package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/lock"
	"github.com/timmy/outreach/internal/source"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeLedger keeps every run in insertion order.
type fakeLedger struct {
	mu        sync.Mutex
	clock     func() time.Time
	runs      []*domain.CampaignRunProgress
	creates   int
	updates   int
	createErr error
	updateErr error
	// failUpdateAfter makes the n-th and later UpdateRun calls fail when > 0.
	failUpdateAfter int
}

func newFakeLedger(clock func() time.Time) *fakeLedger {
	return &fakeLedger{clock: clock}
}

func (l *fakeLedger) seed(p *domain.CampaignRunProgress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := p.Clone()
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = l.clock()
	}
	l.runs = append(l.runs, cp)
}

func (l *fakeLedger) GetActiveRun(_ context.Context, userID string) (*domain.CampaignRunProgress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seen := map[string]bool{}
	for i := len(l.runs) - 1; i >= 0; i-- {
		r := l.runs[i]
		if seen[r.CampaignID] {
			continue
		}
		seen[r.CampaignID] = true
		if r.UserID == userID && r.State.IsActive() {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) GetRun(_ context.Context, campaignID string) (*domain.CampaignRunProgress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.runs) - 1; i >= 0; i-- {
		if l.runs[i].CampaignID == campaignID {
			return l.runs[i].Clone(), nil
		}
	}
	return nil, nil
}

func (l *fakeLedger) CreateRun(_ context.Context, p *domain.CampaignRunProgress) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createErr != nil {
		return l.createErr
	}
	l.creates++
	cp := p.Clone()
	cp.UpdatedAt = l.clock()
	l.runs = append(l.runs, cp)
	return nil
}

func (l *fakeLedger) UpdateRun(_ context.Context, p *domain.CampaignRunProgress) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.updateErr != nil {
		return l.updateErr
	}
	if l.failUpdateAfter > 0 && l.updates+1 >= l.failUpdateAfter {
		return errors.New("disk full")
	}
	for i, r := range l.runs {
		if r.RunID == p.RunID {
			l.updates++
			cp := p.Clone()
			cp.UpdatedAt = l.clock()
			l.runs[i] = cp
			return nil
		}
	}
	return ErrRunNotFound
}

func (l *fakeLedger) history(campaignID string) []*domain.CampaignRunProgress {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.CampaignRunProgress
	for _, r := range l.runs {
		if r.CampaignID == campaignID {
			out = append(out, r.Clone())
		}
	}
	return out
}

// fakeDirectory serves campaigns and their contacts.
type fakeDirectory struct {
	mu        sync.Mutex
	owners    map[string]string
	contacts  map[string][]domain.Contact
	countBias map[string]int
	fetches   int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		owners:    map[string]string{},
		contacts:  map[string][]domain.Contact{},
		countBias: map[string]int{},
	}
}

func (d *fakeDirectory) addCampaign(userID, campaignID string, contactIDs ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.owners[campaignID] = userID
	list := make([]domain.Contact, 0, len(contactIDs))
	for _, id := range contactIDs {
		list = append(list, domain.Contact{ID: id, CampaignID: campaignID, FirstName: "Contact " + id})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	d.contacts[campaignID] = list
}

func (d *fakeDirectory) ResolveCampaign(_ context.Context, userID, campaignID string) (*domain.Campaign, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	owner, ok := d.owners[campaignID]
	if !ok || owner != userID {
		return nil, source.ErrCampaignNotFound
	}
	return &domain.Campaign{ID: campaignID, UserID: owner}, nil
}

func (d *fakeDirectory) CountContacts(_ context.Context, campaignID string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.contacts[campaignID]) + d.countBias[campaignID], nil
}

func (d *fakeDirectory) FetchContacts(_ context.Context, campaignID, afterID string, limit int) ([]domain.Contact, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetches++
	var page []domain.Contact
	for _, c := range d.contacts[campaignID] {
		if c.ID <= afterID {
			continue
		}
		page = append(page, c)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

// recordingExecutor remembers which contacts it saw and fails the ids in fail.
type recordingExecutor struct {
	mu     sync.Mutex
	seen   []string
	params []domain.StageParams
	fail   map[string]error
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{fail: map[string]error{}}
}

func (e *recordingExecutor) Execute(_ context.Context, contact domain.Contact, params domain.StageParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, contact.ID)
	e.params = append(e.params, params)
	return e.fail[contact.ID]
}

func (e *recordingExecutor) calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := append([]string{}, e.seen...)
	sort.Strings(out)
	return out
}

type archiveSpy struct {
	mu       sync.Mutex
	archived []*domain.CampaignRunProgress
	err      error
}

func (a *archiveSpy) Archive(_ context.Context, p *domain.CampaignRunProgress) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, p.Clone())
	return a.err
}

type recorderSpy struct {
	mu        sync.Mutex
	ok        int
	failed    int
	finished  []domain.RunState
	conflicts int
}

func (r *recorderSpy) ItemProcessed(_ domain.Stage, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ok {
		r.ok++
	} else {
		r.failed++
	}
}

func (r *recorderSpy) StageFinished(_ domain.Stage, to domain.RunState, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = append(r.finished, to)
}

func (r *recorderSpy) Conflict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

// lostLeaseLocker hands out leases that cannot be extended.
type lostLeaseLocker struct{}

type lostLease struct{}

func (lostLeaseLocker) Acquire(context.Context, string, time.Duration) (lock.Lease, error) {
	return lostLease{}, nil
}

func (lostLease) Extend(context.Context, time.Duration) error { return lock.ErrLeaseLost }

func (lostLease) Release(context.Context) error { return nil }
