package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
)

// ArchivedRun is the JSON document written for a finished run.
type ArchivedRun struct {
	ArchivedAt time.Time                  `json:"archived_at"`
	Run        domain.CampaignRunProgress `json:"run"`
}

// RunArchive writes snapshots of finished runs to object storage under
// <prefix>/<campaign id>/<run id>.json.
type RunArchive struct {
	store  ObjectStore
	prefix string
	now    func() time.Time
}

// NewRunArchive creates a new RunArchive.
func NewRunArchive(store ObjectStore, prefix string) *RunArchive {
	return &RunArchive{store: store, prefix: prefix, now: time.Now}
}

// Key returns the object key of a run snapshot.
func (a *RunArchive) Key(campaignID, runID string) string {
	return path.Join(a.prefix, campaignID, runID+".json")
}

// Archive uploads the run snapshot once. A run without id is skipped.
func (a *RunArchive) Archive(ctx context.Context, progress *domain.CampaignRunProgress) error {
	if progress == nil || progress.RunID == "" {
		return nil
	}
	key := a.Key(progress.CampaignID, progress.RunID)
	exists, err := a.store.Exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(ArchivedRun{ArchivedAt: a.now().UTC(), Run: *progress})
	if err != nil {
		return fmt.Errorf("marshal run snapshot: %w", err)
	}

	if err := a.store.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return err
	}
	logger.With(logger.Fields{
		logger.FieldSize:   len(body),
		logger.FieldRunID:  progress.RunID,
		logger.FieldStatus: string(progress.State),
	}).Info(ctx, "Archived campaign run: key=%s", key)
	return nil
}

// Load reads a previously archived snapshot.
func (a *RunArchive) Load(ctx context.Context, campaignID, runID string) (*ArchivedRun, error) {
	rc, err := a.store.Get(ctx, a.Key(campaignID, runID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var doc ArchivedRun
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode run snapshot: %w", err)
	}
	return &doc, nil
}
