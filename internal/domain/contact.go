package domain

import "time"

// Campaign is a named collection of contacts owned by one user.
type Campaign struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	UserID    string    `gorm:"type:text;not null;index" json:"user_id"`
	Name      string    `gorm:"type:text" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Campaign.
func (Campaign) TableName() string {
	return "campaigns"
}

// Contact carries the fields each stage executor needs.
type Contact struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	CampaignID string    `gorm:"type:text;not null;index:idx_contacts_campaign" json:"campaign_id"`
	FirstName  string    `gorm:"type:text" json:"first_name"`
	LastName   string    `gorm:"type:text" json:"last_name"`
	Company    string    `gorm:"type:text" json:"company"`
	Domain     string    `gorm:"type:text" json:"domain"`
	Title      string    `gorm:"type:text" json:"title,omitempty"`
	Email      string    `gorm:"type:text" json:"email,omitempty"`
	Insert     string    `gorm:"column:personalized_insert;type:text" json:"insert,omitempty"`
	DraftID    string    `gorm:"type:text" json:"draft_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string {
	return "contacts"
}

// StageParams carries stage-specific parameters to executors.
// Only the drafts stage uses TemplateID.
type StageParams struct {
	TemplateID string `json:"template_id,omitempty"`
}
