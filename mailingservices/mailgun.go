package mailingservices

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/talentlink/messaging/config"
	"github.com/talentlink/messaging/models"
)

type Mailgun struct {
	Client *mailgun.MailgunImpl
	From   string
}

func (m *Mailgun) Init(conf *config.Config) {
	m.Client = mailgun.NewMailgun(conf.MgDomain, conf.MailgunApiKey)
	m.From = conf.MgEmailFrom
}

// NotifyUnread emails a short digest when new messages arrive in a
// conversation the user does not have open.
func (m *Mailgun) NotifyUnread(ctx context.Context, recipient string, conv models.Conversation, newCount int) error {
	if recipient == "" {
		return nil
	}

	subject := fmt.Sprintf("New message in %s", conversationTitle(conv))
	body := fmt.Sprintf("You have %d new message(s) in %s on TalentLink.", newCount, conversationTitle(conv))
	if conv.LastMessage != nil {
		body += fmt.Sprintf("\n\nLatest: %s", conv.LastMessage.Content)
	}

	message := m.Client.NewMessage(m.From, subject, body, recipient)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, _, err := m.Client.Send(ctx, message)
	return err
}

func conversationTitle(conv models.Conversation) string {
	if conv.Title != "" {
		return conv.Title
	}
	for _, p := range conv.Participants {
		if p.RoleTag != models.RoleSystem {
			return "your conversation with " + p.DisplayName
		}
	}
	return "a conversation"
}
