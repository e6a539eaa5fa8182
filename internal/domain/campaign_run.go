package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// StageCounter holds the total and processed counts of one stage.
type StageCounter struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
}

// StageCounters maps each stage to its counters, stored as JSON.
type StageCounters map[Stage]StageCounter

// Value implements the driver.Valuer interface for database serialization.
func (c StageCounters) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (c *StageCounters) Scan(value interface{}) error {
	*c = StageCounters{}
	if value == nil {
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, c)
}

// ItemError records the failure of one contact within a stage.
type ItemError struct {
	ContactID string   `json:"contact_id"`
	Error     string   `json:"error"`
	Kind      string   `json:"kind,omitempty"`
	Stage     RunState `json:"stage"`
}

// ItemErrors is a list of item errors stored as JSON.
type ItemErrors []ItemError

// Value implements the driver.Valuer interface for database serialization.
func (e ItemErrors) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (e *ItemErrors) Scan(value interface{}) error {
	*e = ItemErrors{}
	if value == nil {
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return err
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, e)
}

// Summary joins the item errors into one human-readable message.
// It returns an empty string when there are no errors.
func (e ItemErrors) Summary() string {
	if len(e) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e))
	for _, item := range e {
		parts = append(parts, item.ContactID+": "+item.Error)
	}
	return strings.Join(parts, "; ")
}

func scanBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	}
	return nil, errors.New("unsupported column type for JSON value")
}

// CampaignRun is one ledger row: one attempt to drive a campaign through
// one or more stages.
type CampaignRun struct {
	ID           string        `gorm:"type:text;primaryKey" json:"id"`
	CampaignID   string        `gorm:"type:text;not null;index:idx_campaign_runs_campaign" json:"campaign_id"`
	UserID       string        `gorm:"type:text;not null;index:idx_campaign_runs_user_state" json:"user_id"`
	State        RunState      `gorm:"type:text;not null;index:idx_campaign_runs_user_state" json:"state"`
	LastStage    Stage         `gorm:"type:text" json:"last_stage,omitempty"`
	Counters     StageCounters `gorm:"type:text" json:"counters"`
	Errors       ItemErrors    `gorm:"type:text" json:"errors"`
	ErrorMessage string        `gorm:"type:text" json:"error_message,omitempty"`
	Cursor       string        `gorm:"type:text" json:"-"`
	Processing   bool          `gorm:"not null" json:"-"`
	StartedAt    time.Time     `gorm:"index:idx_campaign_runs_campaign" json:"started_at"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName returns the database table name for CampaignRun.
func (CampaignRun) TableName() string {
	return "campaign_runs"
}

// CampaignRunProgress is the orchestrator's working view of a run.
// ProcessedCount and TotalCount are the counters of Stage.
type CampaignRunProgress struct {
	RunID          string        `json:"run_id,omitempty"`
	CampaignID     string        `json:"campaign_id"`
	UserID         string        `json:"user_id,omitempty"`
	State          RunState      `json:"state"`
	Stage          Stage         `json:"stage,omitempty"`
	ProcessedCount int           `json:"processed_count"`
	TotalCount     int           `json:"total_count"`
	Counters       StageCounters `json:"counters,omitempty"`
	Errors         []ItemError   `json:"errors"`
	ErrorMessage   string        `json:"error_message,omitempty"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at,omitempty"`

	// Checkpoint fields, internal to the orchestrator and the ledger.
	Cursor     string `json:"-"`
	Processing bool   `json:"-"`
}

// IdleProgress synthesizes the status of a campaign that has no run.
func IdleProgress(campaignID string) *CampaignRunProgress {
	return &CampaignRunProgress{
		CampaignID: campaignID,
		State:      RunStateIdle,
		Errors:     []ItemError{},
	}
}

// Clone returns a deep copy so callers can mutate it freely.
func (p *CampaignRunProgress) Clone() *CampaignRunProgress {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Errors = append([]ItemError{}, p.Errors...)
	if p.Counters != nil {
		cp.Counters = make(StageCounters, len(p.Counters))
		for k, v := range p.Counters {
			cp.Counters[k] = v
		}
	}
	if p.StartedAt != nil {
		t := *p.StartedAt
		cp.StartedAt = &t
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// ToProgress projects a ledger row onto the progress view.
func (r *CampaignRun) ToProgress() *CampaignRunProgress {
	p := &CampaignRunProgress{
		RunID:        r.ID,
		CampaignID:   r.CampaignID,
		UserID:       r.UserID,
		State:        r.State,
		Stage:        r.LastStage,
		Counters:     StageCounters{},
		Errors:       append([]ItemError{}, r.Errors...),
		ErrorMessage: r.ErrorMessage,
		UpdatedAt:    r.UpdatedAt,
		Cursor:       r.Cursor,
		Processing:   r.Processing,
	}
	for k, v := range r.Counters {
		p.Counters[k] = v
	}
	if c, ok := r.Counters[r.LastStage]; ok {
		p.ProcessedCount = c.Processed
		p.TotalCount = c.Total
	}
	if !r.StartedAt.IsZero() {
		t := r.StartedAt
		p.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		p.CompletedAt = &t
	}
	return p
}

// ApplyProgress writes the progress onto a ledger row. Counters of stages
// other than p.Stage are preserved.
func (r *CampaignRun) ApplyProgress(p *CampaignRunProgress) {
	r.ID = p.RunID
	r.CampaignID = p.CampaignID
	r.UserID = p.UserID
	r.State = p.State
	r.LastStage = p.Stage
	if r.Counters == nil {
		r.Counters = StageCounters{}
	}
	for k, v := range p.Counters {
		r.Counters[k] = v
	}
	if p.Stage != "" {
		r.Counters[p.Stage] = StageCounter{Total: p.TotalCount, Processed: p.ProcessedCount}
	}
	r.Errors = append(ItemErrors{}, p.Errors...)
	r.ErrorMessage = ItemErrors(p.Errors).Summary()
	r.Cursor = p.Cursor
	r.Processing = p.Processing
	if p.StartedAt != nil {
		r.StartedAt = *p.StartedAt
	}
	r.CompletedAt = nil
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		r.CompletedAt = &t
	}
}

// SyncCounter copies ProcessedCount and TotalCount into Counters[Stage].
func (p *CampaignRunProgress) SyncCounter() {
	if p.Stage == "" {
		return
	}
	if p.Counters == nil {
		p.Counters = StageCounters{}
	}
	p.Counters[p.Stage] = StageCounter{Total: p.TotalCount, Processed: p.ProcessedCount}
}
