package models

import "time"

type ConversationKind string

const (
	ConversationIndividual ConversationKind = "individual"
	ConversationGroup      ConversationKind = "group"
)

// MessageSummary is the last-message preview shown in the conversation list.
type MessageSummary struct {
	Content  string    `json:"content"`
	SenderID string    `json:"sender_id"`
	SentAt   time.Time `json:"sent_at"`
}

type Conversation struct {
	ID                 string           `json:"id"`
	Title              string           `json:"title,omitempty"`
	Participants       []Participant    `json:"participants"`
	Kind               ConversationKind `json:"kind"`
	LastMessage        *MessageSummary  `json:"last_message,omitempty"`
	UnreadCount        int              `json:"unread_count"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	IsStarred          bool             `json:"is_starred"`
	HasAttachments     bool             `json:"has_attachments"`
	AssociatedEntities []EntityRef      `json:"associated_entities,omitempty"`

	// IsArchived is local-only: Remove archives a conversation out of the
	// visible set; a fresh fetch from the server reinstates it.
	IsArchived bool `json:"is_archived,omitempty"`
}

// HasParticipant reports whether any participant carries the given id.
func (c *Conversation) HasParticipant(id string) bool {
	for _, p := range c.Participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

// HasRole reports whether any participant carries the given role tag.
func (c *Conversation) HasRole(tag RoleTag) bool {
	for _, p := range c.Participants {
		if p.RoleTag == tag {
			return true
		}
	}
	return false
}

// ConversationFilter selects which conversations the list view shows.
type ConversationFilter string

const (
	FilterAll        ConversationFilter = "all"
	FilterUnread     ConversationFilter = "unread"
	FilterGroup      ConversationFilter = "group"
	FilterArchived   ConversationFilter = "archived"
	FilterCandidate  ConversationFilter = "candidate"
	FilterEmployer   ConversationFilter = "employer"
	FilterAdmin      ConversationFilter = "admin"
	FilterConsultant ConversationFilter = "consultant"
)
