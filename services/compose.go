package services

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/talentlink/messaging/client"
	apiError "github.com/talentlink/messaging/errors"
	"github.com/talentlink/messaging/models"
)

var validate = validator.New()

type commitPayload struct {
	Recipients []models.Participant `validate:"min=1"`
	DraftText  string               `validate:"max=10000"`
}

// ComposeSession holds the transient state of drafting a new conversation.
// On a failed commit the session survives untouched so the user does not lose
// typed content.
type ComposeSession struct {
	mu          sync.Mutex
	isComposing bool
	recipients  []models.Participant
	draftText   string
}

func NewComposeSession() *ComposeSession {
	return &ComposeSession{}
}

// Start resets the session to empty.
func (c *ComposeSession) Start() {
	c.mu.Lock()
	c.isComposing = true
	c.recipients = nil
	c.draftText = ""
	c.mu.Unlock()
}

// AddRecipient has set semantics: adding a recipient already present is a
// no-op.
func (c *ComposeSession) AddRecipient(p models.Participant) {
	if p.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.recipients {
		if r.ID == p.ID {
			return
		}
	}
	c.recipients = append(c.recipients, p)
}

func (c *ComposeSession) RemoveRecipient(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.recipients {
		if r.ID == id {
			c.recipients = append(c.recipients[:i], c.recipients[i+1:]...)
			return
		}
	}
}

func (c *ComposeSession) SetDraft(text string) {
	c.mu.Lock()
	c.draftText = text
	c.mu.Unlock()
}

// Snapshot returns the current session state for display.
func (c *ComposeSession) Snapshot() (isComposing bool, recipients []models.Participant, draftText string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Participant, len(c.recipients))
	copy(out, c.recipients)
	return c.isComposing, out, c.draftText
}

// Commit validates, hands the session to the coordinator's conversation
// creation, and clears itself only on success; the new conversation becomes
// active.
func (c *ComposeSession) Commit(ctx context.Context, coordinator SyncService) (*models.Conversation, error) {
	c.mu.Lock()
	recipients := make([]models.Participant, len(c.recipients))
	copy(recipients, c.recipients)
	draft := c.draftText
	c.mu.Unlock()

	payload := commitPayload{Recipients: recipients, DraftText: draft}
	if err := validate.Struct(payload); err != nil {
		return nil, apiError.ValidationFailure("select at least one recipient")
	}

	var initial *models.DraftMessage
	if draft != "" {
		initial = &models.DraftMessage{Content: draft, Recipients: recipients}
	}

	conv, err := coordinator.CreateConversation(ctx, client.CreateConversationRequest{
		Participants: recipients,
	}, initial)
	if conv == nil {
		// creation itself failed: keep the session so nothing typed is lost
		return nil, err
	}
	// the conversation exists; a failed initial send stays visible there as a
	// FAILED message with its own retry affordance

	c.mu.Lock()
	c.isComposing = false
	c.recipients = nil
	c.draftText = ""
	c.mu.Unlock()

	if err := coordinator.OpenConversation(ctx, conv.ID); err != nil {
		return conv, nil
	}
	return conv, nil
}
