package integration

import (
	"context"
	"net/url"

	"github.com/timmy/outreach/internal/config"
	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/service"
)

// ResultStore persists the output of a stage on the contact so the next
// stage can read it.
type ResultStore interface {
	UpdateStageResult(ctx context.Context, contactID string, result domain.Contact) error
}

type contactPayload struct {
	ContactID string `json:"contact_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Domain    string `json:"domain"`
	Title     string `json:"title,omitempty"`
	Email     string `json:"email,omitempty"`
}

func payloadFor(c domain.Contact) contactPayload {
	return contactPayload{
		ContactID: c.ID,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Company:   c.Company,
		Domain:    c.Domain,
		Title:     c.Title,
		Email:     c.Email,
	}
}

func rejected(msg string) error {
	return &service.ExecutionError{Kind: service.ExecKindRejected, Message: msg}
}

// EmailFinder looks up a contact's email address.
type EmailFinder struct {
	client *Client
	store  ResultStore
}

// NewEmailFinder creates a new EmailFinder.
func NewEmailFinder(client *Client, store ResultStore) *EmailFinder {
	return &EmailFinder{client: client, store: store}
}

type findEmailResponse struct {
	Email      string  `json:"email"`
	Confidence float64 `json:"confidence"`
}

// Execute finds and stores the email of contact.
func (e *EmailFinder) Execute(ctx context.Context, contact domain.Contact, _ domain.StageParams) error {
	if contact.Domain == "" && contact.Company == "" {
		return rejected("contact has neither domain nor company")
	}
	var resp findEmailResponse
	if err := e.client.Post(ctx, "/v1/emails/find", payloadFor(contact), &resp); err != nil {
		return err
	}
	if resp.Email == "" {
		return rejected("no email found")
	}
	return e.store.UpdateStageResult(ctx, contact.ID, domain.Contact{Email: resp.Email})
}

// Personalizer generates the personalized insert for a contact.
type Personalizer struct {
	client *Client
	store  ResultStore
}

// NewPersonalizer creates a new Personalizer.
func NewPersonalizer(client *Client, store ResultStore) *Personalizer {
	return &Personalizer{client: client, store: store}
}

type insertResponse struct {
	Insert string `json:"insert"`
}

// Execute generates and stores the insert of contact.
func (p *Personalizer) Execute(ctx context.Context, contact domain.Contact, _ domain.StageParams) error {
	if contact.Email == "" {
		return rejected("contact has no email")
	}
	var resp insertResponse
	if err := p.client.Post(ctx, "/v1/inserts", payloadFor(contact), &resp); err != nil {
		return err
	}
	if resp.Insert == "" {
		return rejected("empty insert generated")
	}
	return p.store.UpdateStageResult(ctx, contact.ID, domain.Contact{Insert: resp.Insert})
}

// DraftComposer creates an email draft from a template.
type DraftComposer struct {
	client *Client
	store  ResultStore
}

// NewDraftComposer creates a new DraftComposer.
func NewDraftComposer(client *Client, store ResultStore) *DraftComposer {
	return &DraftComposer{client: client, store: store}
}

type draftRequest struct {
	contactPayload
	TemplateID string `json:"template_id"`
	Insert     string `json:"insert"`
}

type draftResponse struct {
	DraftID string `json:"draft_id"`
}

// Execute composes a draft with the template in params.
func (d *DraftComposer) Execute(ctx context.Context, contact domain.Contact, params domain.StageParams) error {
	if contact.Email == "" {
		return rejected("contact has no email")
	}
	req := draftRequest{
		contactPayload: payloadFor(contact),
		TemplateID:     params.TemplateID,
		Insert:         contact.Insert,
	}
	var resp draftResponse
	if err := d.client.Post(ctx, "/v1/drafts", req, &resp); err != nil {
		return err
	}
	if resp.DraftID == "" {
		return rejected("draft composer returned no draft id")
	}
	return d.store.UpdateStageResult(ctx, contact.ID, domain.Contact{DraftID: resp.DraftID})
}

// Sender sends a previously composed draft.
type Sender struct {
	client *Client
}

// NewSender creates a new Sender.
func NewSender(client *Client) *Sender {
	return &Sender{client: client}
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// Execute sends the draft of contact.
func (s *Sender) Execute(ctx context.Context, contact domain.Contact, _ domain.StageParams) error {
	if contact.DraftID == "" {
		return rejected("contact has no draft")
	}
	var resp sendResponse
	return s.client.Post(ctx, "/v1/drafts/"+url.PathEscape(contact.DraftID)+"/send", map[string]string{
		"contact_id": contact.ID,
	}, &resp)
}

// NewExecutors builds an executor for every configured integration.
// A stage without a base_url gets no executor, and starting it fails
// validation.
func NewExecutors(cfg *config.IntegrationsConfig, store ResultStore) service.Executors {
	var ex service.Executors
	if cfg.EmailFinder.Enabled() {
		ex.EmailFinder = NewEmailFinder(NewClient("email_finder", &cfg.EmailFinder), store)
	}
	if cfg.Personalizer.Enabled() {
		ex.Personalizer = NewPersonalizer(NewClient("personalizer", &cfg.Personalizer), store)
	}
	if cfg.DraftComposer.Enabled() {
		ex.DraftComposer = NewDraftComposer(NewClient("draft_composer", &cfg.DraftComposer), store)
	}
	if cfg.Sender.Enabled() {
		ex.Sender = NewSender(NewClient("sender", &cfg.Sender))
	}
	return ex
}
