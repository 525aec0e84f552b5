package models

import "time"

// MessageStatus is the per-message delivery state. It only moves forward
// (SENDING -> SENT -> DELIVERED -> READ); SENDING -> FAILED is the one branch,
// and FAILED is terminal until the user retries with a brand-new send.
type MessageStatus string

const (
	StatusSending   MessageStatus = "SENDING"
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
	StatusFailed    MessageStatus = "FAILED"
)

var statusRank = map[MessageStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// CanTransition reports whether moving from s to next respects the state
// machine. Forward jumps are allowed (a remote ingest reports the final
// observed state directly); regressions are not, except SENDING -> FAILED.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	if s == next {
		return false
	}
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return s == StatusSending
	}
	return statusRank[next] > statusRank[s]
}

// MessageKind distinguishes plain text from file and template messages.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindFile     MessageKind = "file"
	KindTemplate MessageKind = "template"
)

// Attachment metadata produced by the upload collaborator before send.
// Immutable.
type Attachment struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	URL       string `json:"url"`
}

type Message struct {
	ID               string        `json:"id"`
	ConversationID   string        `json:"conversation_id"`
	Content          string        `json:"content"`
	Sender           Participant   `json:"sender"`
	Recipients       []Participant `json:"recipients"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Status           MessageStatus `json:"status"`
	Kind             MessageKind   `json:"kind"`
	Attachments      []Attachment  `json:"attachments,omitempty"`
	EntityReferences []EntityRef   `json:"entity_references,omitempty"`
	ScheduledFor     *time.Time    `json:"scheduled_for,omitempty"`
	FailReason       string        `json:"fail_reason,omitempty"`
}

// DraftMessage is what a caller hands to Send before any id or status exists.
type DraftMessage struct {
	Content          string        `json:"content" conform:"trim"`
	Recipients       []Participant `json:"recipients"`
	Kind             MessageKind   `json:"kind"`
	Attachments      []Attachment  `json:"attachments,omitempty"`
	EntityReferences []EntityRef   `json:"entity_references,omitempty"`
	ScheduledFor     *time.Time    `json:"scheduled_for,omitempty"`
}
