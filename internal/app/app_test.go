package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/metrics"
	"github.com/timmy/outreach/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:       "sqlite",
			Path:         fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
			MaxOpenConns: 1,
			AutoMigrate:  true,
		},
		Runner: config.RunnerConfig{
			Workers:      2,
			BatchSize:    3,
			StaleAfter:   time.Minute,
			ClaimBackend: config.ClaimBackendDatabase,
		},
	}
}

func seed(t *testing.T, a *App, userID, campaignID string, n int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.Contacts.CreateCampaign(ctx, &domain.Campaign{ID: campaignID, UserID: userID}))
	contacts := make([]domain.Contact, 0, n)
	for i := 1; i <= n; i++ {
		contacts = append(contacts, domain.Contact{ID: fmt.Sprintf("c%02d", i), CampaignID: campaignID, Domain: "acme.test"})
	}
	require.NoError(t, a.Contacts.UpsertContacts(ctx, contacts))
}

func TestBuild_DryRunLeavesLedgerUntouched(t *testing.T) {
	ctx := context.Background()
	m := metrics.New()
	a, err := Build(ctx, testConfig(t), Options{DryRun: true, Metrics: m})
	require.NoError(t, err)
	defer a.Close()
	seed(t, a, "u1", "camp-1", 5)

	progress, err := a.Orchestrator.StartEmailFinding(ctx, "u1", "camp-1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStateInsertsRunning, progress.State)
	assert.Equal(t, 5, progress.ProcessedCount)

	stored, err := a.Runs.GetRun(ctx, "camp-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
	assert.Contains(t, a.Health, "database")
}

func TestBuild_WithoutIntegrationsRejectsStart(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, testConfig(t), Options{})
	require.NoError(t, err)
	defer a.Close()
	seed(t, a, "u1", "camp-1", 2)

	_, err = a.Orchestrator.StartEmailFinding(ctx, "u1", "camp-1")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func TestBuild_RedisClaims(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, Addr: mr.Addr()}
	cfg.Runner.ClaimBackend = config.ClaimBackendRedis

	ctx := context.Background()
	a, err := Build(ctx, cfg, Options{})
	require.NoError(t, err)
	defer a.Close()

	require.Contains(t, a.Health, "redis")
	assert.NoError(t, a.Health["redis"].PingContext(ctx))
}

func TestBuild_RedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Enabled: true, Addr: addr}
	cfg.Runner.ClaimBackend = config.ClaimBackendRedis

	_, err := Build(context.Background(), cfg, Options{})
	assert.Error(t, err)
}
