package services

import (
	"context"
	"log"
	"sync"

	"github.com/leebenson/conform"
	"github.com/talentlink/messaging/client"
	"github.com/talentlink/messaging/config"
	"github.com/talentlink/messaging/db"
	apiError "github.com/talentlink/messaging/errors"
	"github.com/talentlink/messaging/models"
	"github.com/talentlink/messaging/store"
)

// Notifier is told about unread activity in conversations the user does not
// have open. Optional collaborator.
type Notifier interface {
	NotifyUnread(ctx context.Context, recipient string, conv models.Conversation, newCount int) error
}

// SyncService bridges the local stores to the remote messaging service and
// owns the retry and failure policy: exactly one network attempt per call,
// retries are explicit user actions, and failures surface as per-entity error
// state instead of clearing previously fetched data.
type SyncService interface {
	WarmStart(ctx context.Context)
	RefreshConversations(ctx context.Context, q client.ConversationQuery) error
	RefreshMessages(ctx context.Context, conversationID string, q client.MessageQuery) error
	OpenConversation(ctx context.Context, conversationID string) error
	CloseConversation()
	Send(ctx context.Context, conversationID string, draft models.DraftMessage) (models.Message, error)
	CreateConversation(ctx context.Context, req client.CreateConversationRequest, initial *models.DraftMessage) (*models.Conversation, error)
	MarkRead(ctx context.Context, conversationID string, messageIDs []string) error
	MarkConversationRead(ctx context.Context, conversationID string) error
	DeleteConversation(ctx context.Context, conversationID string) error

	Conversations() []models.Conversation
	Messages(conversationID string) []models.Message
	UnreadTotal() int
	ConversationsError() error
	MessagesError(conversationID string) error
	CurrentUser() models.Participant
}

// syncService struct
type syncService struct {
	Config    *config.Config
	client    client.MessagingService
	msgs      store.MessageStore
	convs     store.ConversationStore
	directory store.ParticipantDirectory
	snapshots db.SnapshotRepository
	notifier  Notifier
	me        models.Participant

	errMu    sync.Mutex
	convsErr error
	msgsErr  map[string]error
}

// NewSyncService instantiates a syncService. The local user identity is
// threaded explicitly from config; snapshots and notifier may be nil.
func NewSyncService(
	msgClient client.MessagingService,
	msgs store.MessageStore,
	convs store.ConversationStore,
	directory store.ParticipantDirectory,
	snapshots db.SnapshotRepository,
	notifier Notifier,
	conf *config.Config,
) SyncService {
	me := models.Participant{
		ID:    conf.CurrentUserID,
		Email: conf.CurrentUserEmail,
	}
	return &syncService{
		Config:    conf,
		client:    msgClient,
		msgs:      msgs,
		convs:     convs,
		directory: directory,
		snapshots: snapshots,
		notifier:  notifier,
		me:        me,
		msgsErr:   map[string]error{},
	}
}

// WarmStart seeds the stores from the last persisted snapshot so the gateway
// serves a stale-but-usable inbox before the first upstream fetch completes.
func (s *syncService) WarmStart(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	convs, msgs, err := s.snapshots.Load()
	if err != nil {
		log.Printf("warm start skipped: %v", err)
		return
	}
	for _, c := range convs {
		s.convs.Upsert(c)
		s.directory.PutAll(c.Participants)
	}
	for id, batch := range msgs {
		s.msgs.IngestRemote(id, batch)
	}
	log.Printf("warm start: %d conversations restored", len(convs))
}

// RefreshConversations fetches the conversation list. A response superseded by
// a newer list fetch is discarded; a failure preserves the last-known-good
// list and is remembered as the list error flag.
func (s *syncService) RefreshConversations(ctx context.Context, q client.ConversationQuery) error {
	token := s.convs.BeginList()

	fetched, err := s.client.ListConversations(ctx, s.me.ID, q)
	if err != nil {
		s.setConvsErr(err)
		return err
	}
	if s.convs.CurrentList() != token {
		return nil
	}

	for _, c := range fetched {
		s.convs.ApplyServer(c, token)
		s.directory.PutAll(c.Participants)
	}
	s.setConvsErr(nil)
	s.persistConversations()
	return nil
}

// RefreshMessages fetches a message page and merges it. New messages from
// other participants raise the unread count unless the conversation is open.
func (s *syncService) RefreshMessages(ctx context.Context, conversationID string, q client.MessageQuery) error {
	token := s.convs.Begin(conversationID)

	fetched, err := s.client.ListMessages(ctx, conversationID, q)
	if err != nil {
		s.setMsgsErr(conversationID, err)
		return err
	}
	if s.convs.Current(conversationID) != token {
		return nil
	}

	s.ingest(ctx, conversationID, fetched)
	s.setMsgsErr(conversationID, nil)
	return nil
}

// OpenConversation marks the conversation active, fetches its detail page and
// acknowledges everything unread in it.
func (s *syncService) OpenConversation(ctx context.Context, conversationID string) error {
	s.convs.SetActive(conversationID)
	token := s.convs.Begin(conversationID)

	detail, err := s.client.GetConversation(ctx, conversationID)
	if err != nil {
		s.setMsgsErr(conversationID, err)
		return err
	}
	if s.convs.Current(conversationID) != token {
		return nil
	}

	s.convs.ApplyServer(detail.Conversation, token)
	s.directory.PutAll(detail.Conversation.Participants)
	s.ingest(ctx, conversationID, detail.Messages)
	s.setMsgsErr(conversationID, nil)

	if err := s.MarkConversationRead(ctx, conversationID); err != nil {
		log.Printf("mark read on open failed for %s: %v", conversationID, err)
	}
	return nil
}

func (s *syncService) CloseConversation() {
	s.convs.SetActive("")
}

// Send appends an optimistic SENDING message, makes exactly one create
// attempt, and reconciles or marks it FAILED. A failed send does not disturb
// the conversation's ordering or unread count; retrying is a new Send.
func (s *syncService) Send(ctx context.Context, conversationID string, draft models.DraftMessage) (models.Message, error) {
	if err := conform.Strings(&draft); err != nil {
		return models.Message{}, apiError.ValidationFailure(err.Error())
	}
	if draft.Content == "" && len(draft.Attachments) == 0 {
		return models.Message{}, apiError.ValidationFailure("message must have content or attachments")
	}

	prev, hadConv := s.convs.Get(conversationID)

	local := s.msgs.AppendOptimistic(conversationID, draft, s.me)
	s.convs.Touch(conversationID, local.CreatedAt, summarize(local))

	created, err := s.client.CreateMessage(ctx, conversationID, client.CreateMessageRequest{
		Content:          draft.Content,
		Sender:           s.me,
		Recipients:       draft.Recipients,
		Attachments:      draft.Attachments,
		EntityReferences: draft.EntityReferences,
	})
	if err != nil {
		s.msgs.MarkFailed(conversationID, local.ID, err.Error())
		if hadConv {
			s.convs.RestoreSummary(conversationID, prev.UpdatedAt, prev.LastMessage)
		}
		failed, _ := s.msgs.Get(conversationID, local.ID)
		return failed, err
	}

	s.msgs.Reconcile(conversationID, local.ID, *created)
	s.convs.Touch(conversationID, created.CreatedAt, summarize(*created))
	s.persistConversation(conversationID)

	confirmed, _ := s.msgs.Get(conversationID, created.ID)
	return confirmed, nil
}

// CreateConversation creates the conversation remotely first; no local state
// exists until the server has assigned an id. The initial message, if any, is
// sent only after that succeeds.
func (s *syncService) CreateConversation(ctx context.Context, req client.CreateConversationRequest, initial *models.DraftMessage) (*models.Conversation, error) {
	if len(req.Participants) == 0 {
		return nil, apiError.ValidationFailure("a conversation needs at least one recipient")
	}
	if req.Type == "" {
		req.Type = models.ConversationIndividual
		if len(req.Participants) > 1 {
			req.Type = models.ConversationGroup
		}
	}
	if !hasParticipant(req.Participants, s.me.ID) {
		req.Participants = append(req.Participants, s.me)
	}

	conv, err := s.client.CreateConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	s.convs.Upsert(*conv)
	s.directory.PutAll(conv.Participants)
	s.persistConversations()

	if initial != nil {
		if _, err := s.Send(ctx, conv.ID, *initial); err != nil {
			return conv, err
		}
	}
	return conv, nil
}

// MarkRead acknowledges messages optimistically and rolls the statuses back if
// the round trip fails: an unacknowledged read must not suppress a legitimate
// unread indicator.
func (s *syncService) MarkRead(ctx context.Context, conversationID string, messageIDs []string) error {
	changed := s.msgs.MarkRead(conversationID, messageIDs)
	if len(changed) == 0 {
		return nil
	}
	token := s.convs.Begin(conversationID)

	ids := make([]string, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	if err := s.client.MarkMessagesRead(ctx, ids); err != nil {
		s.msgs.RevertStatus(conversationID, changed)
		return err
	}

	s.convs.ReduceUnread(conversationID, len(changed), token)
	s.persistConversation(conversationID)
	return nil
}

// MarkConversationRead acknowledges every unread message in the conversation.
func (s *syncService) MarkConversationRead(ctx context.Context, conversationID string) error {
	var ids []string
	for _, m := range s.msgs.Messages(conversationID) {
		if m.Sender.ID == s.me.ID {
			continue
		}
		if m.Status == models.StatusSent || m.Status == models.StatusDelivered {
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.MarkRead(ctx, conversationID, ids)
}

// DeleteConversation archives optimistically; on failure the pre-removal
// snapshot is re-inserted. The operation is idempotent, deleting an unknown
// conversation is a no-op.
func (s *syncService) DeleteConversation(ctx context.Context, conversationID string) error {
	snapshot, ok := s.convs.Remove(conversationID)
	if !ok {
		return nil
	}

	if err := s.client.DeleteConversation(ctx, conversationID); err != nil {
		s.convs.Upsert(snapshot)
		return err
	}

	s.msgs.Drop(conversationID)
	s.setMsgsErr(conversationID, nil)
	if s.snapshots != nil {
		if err := s.snapshots.DeleteConversation(conversationID); err != nil {
			log.Printf("snapshot delete failed for %s: %v", conversationID, err)
		}
	}
	return nil
}

func (s *syncService) Conversations() []models.Conversation {
	return s.convs.ListAll()
}

func (s *syncService) Messages(conversationID string) []models.Message {
	return s.msgs.Messages(conversationID)
}

func (s *syncService) UnreadTotal() int {
	return s.convs.UnreadTotal()
}

func (s *syncService) ConversationsError() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.convsErr
}

func (s *syncService) MessagesError(conversationID string) error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.msgsErr[conversationID]
}

func (s *syncService) CurrentUser() models.Participant {
	return s.me
}

// ingest merges a remote batch and propagates its effects: conversation
// metadata bump, unread increment when the conversation is not open, and the
// optional unread notification.
func (s *syncService) ingest(ctx context.Context, conversationID string, batch []models.Message) {
	res := s.msgs.IngestRemote(conversationID, batch)
	for _, m := range res.Added {
		s.directory.Put(m.Sender)
	}
	if res.Newest != nil {
		s.convs.Touch(conversationID, res.Newest.CreatedAt, summarize(*res.Newest))
	}

	if res.NewFromOthers > 0 && s.convs.ActiveID() != conversationID {
		s.convs.IncrementUnread(conversationID, res.NewFromOthers)
		if s.notifier != nil {
			if conv, ok := s.convs.Get(conversationID); ok {
				if err := s.notifier.NotifyUnread(ctx, s.me.Email, conv, res.NewFromOthers); err != nil {
					log.Printf("unread notification failed for %s: %v", conversationID, err)
				}
			}
		}
	}
	s.persistConversation(conversationID)
}

func (s *syncService) setConvsErr(err error) {
	s.errMu.Lock()
	s.convsErr = err
	s.errMu.Unlock()
}

func (s *syncService) setMsgsErr(conversationID string, err error) {
	s.errMu.Lock()
	if err == nil {
		delete(s.msgsErr, conversationID)
	} else {
		s.msgsErr[conversationID] = err
	}
	s.errMu.Unlock()
}

func (s *syncService) persistConversations() {
	if s.snapshots == nil {
		return
	}
	if err := s.snapshots.SaveConversations(s.convs.ListAll()); err != nil {
		log.Printf("conversation snapshot failed: %v", err)
	}
}

func (s *syncService) persistConversation(conversationID string) {
	if s.snapshots == nil {
		return
	}
	if conv, ok := s.convs.Get(conversationID); ok {
		if err := s.snapshots.SaveConversations([]models.Conversation{conv}); err != nil {
			log.Printf("conversation snapshot failed: %v", err)
		}
	}
	if err := s.snapshots.SaveMessages(conversationID, s.msgs.Messages(conversationID)); err != nil {
		log.Printf("message snapshot failed: %v", err)
	}
}

func summarize(m models.Message) *models.MessageSummary {
	return &models.MessageSummary{
		Content:  m.Content,
		SenderID: m.Sender.ID,
		SentAt:   m.CreatedAt,
	}
}

func hasParticipant(ps []models.Participant, id string) bool {
	for _, p := range ps {
		if p.ID == id {
			return true
		}
	}
	return false
}
