package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/service"
	"github.com/timmy/outreach/internal/source"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := InitDB(&config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
		AutoMigrate:  true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedCampaign(t *testing.T, repo *ContactRepository, userID, campaignID string, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.CreateCampaign(ctx, &domain.Campaign{ID: campaignID, UserID: userID, Name: "Campaign " + campaignID}))
	contacts := make([]domain.Contact, 0, n)
	for i := 1; i <= n; i++ {
		contacts = append(contacts, domain.Contact{
			ID:         fmt.Sprintf("%s-c%03d", campaignID, i),
			CampaignID: campaignID,
			FirstName:  "First",
			LastName:   fmt.Sprintf("Last%d", i),
			Company:    "Acme",
			Domain:     "acme.test",
		})
	}
	require.NoError(t, repo.UpsertContacts(ctx, contacts))
}

func ptrTime(t time.Time) *time.Time { return &t }

func TestCampaignRunRepository_CreateGetUpdate(t *testing.T) {
	repo := NewCampaignRunRepository(newTestDB(t))
	ctx := context.Background()

	got, err := repo.GetRun(ctx, "camp-a")
	require.NoError(t, err)
	assert.Nil(t, got)

	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	progress := &domain.CampaignRunProgress{
		RunID:      "run-1",
		CampaignID: "camp-a",
		UserID:     "u1",
		State:      domain.RunStateEmailFindingRunning,
		Stage:      domain.StageEmailFinding,
		TotalCount: 3,
		Errors:     []domain.ItemError{},
		StartedAt:  &started,
		Processing: true,
	}
	require.NoError(t, repo.CreateRun(ctx, progress))
	assert.False(t, progress.UpdatedAt.IsZero())

	progress.ProcessedCount = 2
	progress.Cursor = "c03"
	progress.Errors = []domain.ItemError{{ContactID: "c02", Error: "no mx", Kind: "rejected", Stage: domain.RunStateEmailFindingRunning}}
	require.NoError(t, repo.UpdateRun(ctx, progress))

	got, err = repo.GetRun(ctx, "camp-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, domain.RunStateEmailFindingRunning, got.State)
	assert.Equal(t, 2, got.ProcessedCount)
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, "c03", got.Cursor)
	assert.True(t, got.Processing)
	assert.Equal(t, "c02: no mx", got.ErrorMessage)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "rejected", got.Errors[0].Kind)
	require.NotNil(t, got.StartedAt)
	assert.True(t, started.Equal(*got.StartedAt))
	assert.Nil(t, got.CompletedAt)

	// Moving to the next stage keeps the previous stage's counters.
	got.State = domain.RunStateInsertsRunning
	got.Stage = domain.StageInserts
	got.ProcessedCount = 0
	got.TotalCount = 3
	got.Errors = nil
	got.Cursor = ""
	require.NoError(t, repo.UpdateRun(ctx, got))

	again, err := repo.GetRun(ctx, "camp-a")
	require.NoError(t, err)
	assert.Equal(t, domain.StageCounter{Total: 3, Processed: 2}, again.Counters[domain.StageEmailFinding])
	assert.Equal(t, domain.StageCounter{Total: 3, Processed: 0}, again.Counters[domain.StageInserts])
	assert.Empty(t, again.ErrorMessage)
	assert.NotNil(t, again.Errors)
}

func TestCampaignRunRepository_UpdateMissing(t *testing.T) {
	repo := NewCampaignRunRepository(newTestDB(t))
	err := repo.UpdateRun(context.Background(), &domain.CampaignRunProgress{RunID: "ghost", CampaignID: "c"})
	assert.ErrorIs(t, err, service.ErrRunNotFound)
}

func TestCampaignRunRepository_GetActiveRun(t *testing.T) {
	repo := NewCampaignRunRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	runs := []*domain.CampaignRunProgress{
		{RunID: "r1", CampaignID: "camp-a", UserID: "u1", State: domain.RunStateComplete, StartedAt: ptrTime(base)},
		{RunID: "r2", CampaignID: "camp-b", UserID: "u1", State: domain.RunStateFailed, StartedAt: ptrTime(base.Add(time.Minute))},
		{RunID: "r3", CampaignID: "camp-c", UserID: "u1", State: domain.RunStateIdle, StartedAt: ptrTime(base.Add(2 * time.Minute))},
		{RunID: "r4", CampaignID: "camp-d", UserID: "u2", State: domain.RunStateDraftsRunning, StartedAt: ptrTime(base)},
	}
	for _, r := range runs {
		require.NoError(t, repo.CreateRun(ctx, r))
	}

	active, err := repo.GetActiveRun(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, active)

	require.NoError(t, repo.CreateRun(ctx, &domain.CampaignRunProgress{
		RunID: "r5", CampaignID: "camp-e", UserID: "u1",
		State: domain.RunStateSendingRunning, StartedAt: ptrTime(base.Add(3 * time.Minute)),
	}))

	active, err = repo.GetActiveRun(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "r5", active.RunID)

	active, err = repo.GetActiveRun(ctx, "u2")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "r4", active.RunID)
}

func TestCampaignRunRepository_LatestRunWins(t *testing.T) {
	repo := NewCampaignRunRepository(newTestDB(t))
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.CreateRun(ctx, &domain.CampaignRunProgress{
		RunID: "old", CampaignID: "camp-a", UserID: "u1", State: domain.RunStateFailed,
		StartedAt: ptrTime(now), CompletedAt: ptrTime(now),
	}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, repo.CreateRun(ctx, &domain.CampaignRunProgress{
		RunID: "new", CampaignID: "camp-a", UserID: "u1", State: domain.RunStateIdle,
		StartedAt: ptrTime(now.Add(time.Millisecond)),
	}))

	got, err := repo.GetRun(ctx, "camp-a")
	require.NoError(t, err)
	assert.Equal(t, "new", got.RunID)
	assert.Equal(t, domain.RunStateIdle, got.State)

	all, err := repo.ListRuns(ctx, "camp-a")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "old", all[0].ID)
	assert.NotNil(t, all[0].CompletedAt)
}

func TestContactRepository(t *testing.T) {
	repo := NewContactRepository(newTestDB(t))
	ctx := context.Background()
	seedCampaign(t, repo, "u1", "camp-a", 5)
	seedCampaign(t, repo, "u1", "camp-b", 2)

	campaign, err := repo.ResolveCampaign(ctx, "u1", "camp-a")
	require.NoError(t, err)
	assert.Equal(t, "Campaign camp-a", campaign.Name)

	_, err = repo.ResolveCampaign(ctx, "u2", "camp-a")
	assert.ErrorIs(t, err, source.ErrCampaignNotFound)
	_, err = repo.ResolveCampaign(ctx, "u1", "nope")
	assert.ErrorIs(t, err, source.ErrCampaignNotFound)

	count, err := repo.CountContacts(ctx, "camp-a")
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	page, err := repo.FetchContacts(ctx, "camp-a", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "camp-a-c001", page[0].ID)
	assert.Equal(t, "camp-a-c002", page[1].ID)

	page, err = repo.FetchContacts(ctx, "camp-a", "camp-a-c002", 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, "camp-a-c003", page[0].ID)

	page, err = repo.FetchContacts(ctx, "camp-a", "camp-a-c005", 10)
	require.NoError(t, err)
	assert.Empty(t, page)

	require.NoError(t, repo.UpdateStageResult(ctx, "camp-a-c001", domain.Contact{Email: "first@acme.test"}))
	require.NoError(t, repo.UpdateStageResult(ctx, "camp-a-c001", domain.Contact{Insert: "Loved your launch"}))
	require.NoError(t, repo.UpdateStageResult(ctx, "camp-a-c001", domain.Contact{}))

	page, err = repo.FetchContacts(ctx, "camp-a", "", 1)
	require.NoError(t, err)
	assert.Equal(t, "first@acme.test", page[0].Email)
	assert.Equal(t, "Loved your launch", page[0].Insert)
	assert.Empty(t, page[0].DraftID)
}

func TestInitDB_Drivers(t *testing.T) {
	_, err := InitDB(&config.DatabaseConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, "unsupported database driver")

	path := t.TempDir() + "/nested/outreach.db"
	db, err := InitDB(&config.DatabaseConfig{Driver: "sqlite", Path: path, AutoMigrate: true})
	require.NoError(t, err)
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	assert.True(t, db.Migrator().HasTable("run_claims"))
	assert.True(t, db.Migrator().HasTable("campaign_runs"))

	assert.False(t, isFilePath("file:x?mode=memory"))
	assert.False(t, isFilePath(":memory:"))
	assert.True(t, isFilePath("./data/outreach.db"))
}
