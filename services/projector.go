package services

import (
	"strings"

	"github.com/talentlink/messaging/models"
)

// ConversationListQuery drives the visible conversation list. Search is
// applied first, then the active filter.
type ConversationListQuery struct {
	SearchTerm   string
	ActiveFilter models.ConversationFilter
}

// ProjectConversations derives the visible conversation list. Pure: same
// inputs, same output, no side effects on the slice handed in.
func ProjectConversations(convs []models.Conversation, q ConversationListQuery) []models.Conversation {
	term := strings.ToLower(strings.TrimSpace(q.SearchTerm))
	filter := q.ActiveFilter
	if filter == "" {
		filter = models.FilterAll
	}

	out := make([]models.Conversation, 0, len(convs))
	for _, c := range convs {
		if term != "" && !matchesSearch(&c, term) {
			continue
		}
		if !matchesFilter(&c, filter) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func matchesSearch(c *models.Conversation, term string) bool {
	if strings.Contains(strings.ToLower(c.Title), term) {
		return true
	}
	for _, p := range c.Participants {
		if strings.Contains(strings.ToLower(p.DisplayName), term) {
			return true
		}
	}
	if c.LastMessage != nil && strings.Contains(strings.ToLower(c.LastMessage.Content), term) {
		return true
	}
	return false
}

func matchesFilter(c *models.Conversation, filter models.ConversationFilter) bool {
	if filter == models.FilterArchived {
		return c.IsArchived
	}
	if c.IsArchived {
		return false
	}
	switch filter {
	case models.FilterAll:
		return true
	case models.FilterUnread:
		return c.UnreadCount > 0
	case models.FilterGroup:
		return c.Kind == models.ConversationGroup
	case models.FilterCandidate:
		return c.HasRole(models.RoleCandidate)
	case models.FilterEmployer:
		return c.HasRole(models.RoleEmployer)
	case models.FilterAdmin:
		return c.HasRole(models.RoleAdmin)
	case models.FilterConsultant:
		return c.HasRole(models.RoleConsultant)
	default:
		return true
	}
}

// DayGroup buckets consecutive messages by calendar day of the
// server-reported created-at. A day with no messages produces no bucket.
type DayGroup struct {
	Date     string           `json:"date"`
	Messages []models.Message `json:"messages"`
}

// GroupMessagesByDay expects the store's chronological order and preserves it.
func GroupMessagesByDay(msgs []models.Message) []DayGroup {
	var groups []DayGroup
	for _, m := range msgs {
		day := m.CreatedAt.Format("2006-01-02")
		if len(groups) == 0 || groups[len(groups)-1].Date != day {
			groups = append(groups, DayGroup{Date: day})
		}
		g := &groups[len(groups)-1]
		g.Messages = append(g.Messages, m)
	}
	return groups
}

// SenderRun is a run of consecutive messages from one sender, a pure display
// grouping for avatar and name rendering.
type SenderRun struct {
	Sender   models.Participant `json:"sender"`
	Messages []models.Message   `json:"messages"`
}

// GroupBySender splits an ordered message list into consecutive same-sender
// runs.
func GroupBySender(msgs []models.Message) []SenderRun {
	var runs []SenderRun
	for _, m := range msgs {
		if len(runs) == 0 || runs[len(runs)-1].Sender.ID != m.Sender.ID {
			runs = append(runs, SenderRun{Sender: m.Sender})
		}
		r := &runs[len(runs)-1]
		r.Messages = append(r.Messages, m)
	}
	return runs
}
