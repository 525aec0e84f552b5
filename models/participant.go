package models

// RoleTag classifies a participant within the recruitment platform.
type RoleTag string

const (
	RoleCandidate  RoleTag = "candidate"
	RoleEmployer   RoleTag = "employer"
	RoleAdmin      RoleTag = "admin"
	RoleConsultant RoleTag = "consultant"
	RoleSystem     RoleTag = "system"
)

// Participant is display metadata for a messaging user. Immutable once fetched;
// messages and conversations reference it, they never copy-and-mutate it.
type Participant struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	RoleTag     RoleTag `json:"role_tag"`
	AvatarRef   string  `json:"avatar_ref,omitempty"`
	Email       string  `json:"email,omitempty"`
}

// EntityRef is an opaque pointer to a platform object (job, candidate, company)
// attached to a message or conversation for context.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}
