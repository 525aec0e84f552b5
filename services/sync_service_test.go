package services

import (
	"context"
	"testing"
	"time"

	"github.com/talentlink/messaging/client"
	"github.com/talentlink/messaging/config"
	apiError "github.com/talentlink/messaging/errors"
	"github.com/talentlink/messaging/models"
	"github.com/talentlink/messaging/store"
)

type fakeClient struct {
	listConversations  func(ctx context.Context, userID string, q client.ConversationQuery) ([]models.Conversation, error)
	getConversation    func(ctx context.Context, id string) (*client.ConversationDetail, error)
	createConversation func(ctx context.Context, req client.CreateConversationRequest) (*models.Conversation, error)
	listMessages       func(ctx context.Context, conversationID string, q client.MessageQuery) ([]models.Message, error)
	createMessage      func(ctx context.Context, conversationID string, req client.CreateMessageRequest) (*models.Message, error)
	markMessagesRead   func(ctx context.Context, messageIDs []string) error
	deleteConversation func(ctx context.Context, id string) error

	createMessageCalls int
	markReadCalls      int
	deleteCalls        int
}

func (f *fakeClient) ListConversations(ctx context.Context, userID string, q client.ConversationQuery) ([]models.Conversation, error) {
	if f.listConversations == nil {
		return nil, nil
	}
	return f.listConversations(ctx, userID, q)
}

func (f *fakeClient) GetConversation(ctx context.Context, id string) (*client.ConversationDetail, error) {
	if f.getConversation == nil {
		return &client.ConversationDetail{Conversation: models.Conversation{ID: id}}, nil
	}
	return f.getConversation(ctx, id)
}

func (f *fakeClient) CreateConversation(ctx context.Context, req client.CreateConversationRequest) (*models.Conversation, error) {
	if f.createConversation == nil {
		return nil, apiError.ErrInternalServerError
	}
	return f.createConversation(ctx, req)
}

func (f *fakeClient) ListMessages(ctx context.Context, conversationID string, q client.MessageQuery) ([]models.Message, error) {
	if f.listMessages == nil {
		return nil, nil
	}
	return f.listMessages(ctx, conversationID, q)
}

func (f *fakeClient) CreateMessage(ctx context.Context, conversationID string, req client.CreateMessageRequest) (*models.Message, error) {
	f.createMessageCalls++
	if f.createMessage == nil {
		return nil, apiError.ErrInternalServerError
	}
	return f.createMessage(ctx, conversationID, req)
}

func (f *fakeClient) MarkMessagesRead(ctx context.Context, messageIDs []string) error {
	f.markReadCalls++
	if f.markMessagesRead == nil {
		return nil
	}
	return f.markMessagesRead(ctx, messageIDs)
}

func (f *fakeClient) DeleteConversation(ctx context.Context, id string) error {
	f.deleteCalls++
	if f.deleteConversation == nil {
		return nil
	}
	return f.deleteConversation(ctx, id)
}

func (f *fakeClient) UnreadCount(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (f *fakeClient) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	return &models.Participant{ID: id}, nil
}

type testRig struct {
	svc   SyncService
	fc    *fakeClient
	msgs  store.MessageStore
	convs store.ConversationStore
}

func newTestRig() *testRig {
	fc := &fakeClient{}
	msgs := store.NewMessageStore("me")
	convs := store.NewConversationStore()
	dir := store.NewParticipantDirectory(nil)
	conf := &config.Config{CurrentUserID: "me", CurrentUserEmail: "me@talentlink.io"}
	svc := NewSyncService(fc, msgs, convs, dir, nil, nil, conf)
	return &testRig{svc: svc, fc: fc, msgs: msgs, convs: convs}
}

func seedConversation(r *testRig, id string, unread int, at time.Time) {
	r.convs.Upsert(models.Conversation{
		ID:          id,
		Kind:        models.ConversationIndividual,
		UnreadCount: unread,
		CreatedAt:   at,
		UpdatedAt:   at,
	})
}

func other(id string, at time.Time) models.Message {
	return models.Message{
		ID:        id,
		Content:   "from p7",
		Sender:    models.Participant{ID: "p7", DisplayName: "Jane"},
		CreatedAt: at,
		UpdatedAt: at,
		Status:    models.StatusSent,
	}
}

func TestSendReconcilesOptimisticMessage(t *testing.T) {
	r := newTestRig()
	base := time.Now().Add(-time.Hour)
	seedConversation(r, "C1", 0, base)

	r.fc.createMessage = func(ctx context.Context, conversationID string, req client.CreateMessageRequest) (*models.Message, error) {
		now := time.Now()
		return &models.Message{
			ID:        "m99",
			Content:   req.Content,
			Sender:    req.Sender,
			CreatedAt: now,
			UpdatedAt: now,
			Status:    models.StatusSent,
		}, nil
	}

	msg, err := r.svc.Send(context.Background(), "C1", models.DraftMessage{Content: "Hi"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if msg.ID != "m99" || msg.Status != models.StatusSent {
		t.Fatalf("expected reconciled m99/SENT, got %s/%s", msg.ID, msg.Status)
	}

	msgs := r.msgs.Messages("C1")
	if len(msgs) != 1 {
		t.Fatalf("reconcile must not duplicate, got %d messages", len(msgs))
	}

	conv, _ := r.convs.Get("C1")
	if !conv.UpdatedAt.After(base) {
		t.Fatal("conversation updatedAt must be bumped by a confirmed send")
	}
	if conv.LastMessage == nil || conv.LastMessage.Content != "Hi" {
		t.Fatalf("expected last-message summary, got %+v", conv.LastMessage)
	}
}

func TestSendFailureLeavesConversationUntouched(t *testing.T) {
	r := newTestRig()
	base := time.Now().Add(-time.Hour)
	seedConversation(r, "C1", 1, base)

	r.fc.createMessage = func(ctx context.Context, conversationID string, req client.CreateMessageRequest) (*models.Message, error) {
		return nil, apiError.NetworkFailure(nil)
	}

	msg, err := r.svc.Send(context.Background(), "C1", models.DraftMessage{Content: "Hi"})
	if err == nil {
		t.Fatal("expected send error")
	}
	if msg.Status != models.StatusFailed {
		t.Fatalf("failed send must stay visible as FAILED, got %s", msg.Status)
	}
	if len(r.msgs.Messages("C1")) != 1 {
		t.Fatal("failed message must remain in the list")
	}

	conv, _ := r.convs.Get("C1")
	if conv.UnreadCount != 1 {
		t.Fatalf("unread must be unaffected, got %d", conv.UnreadCount)
	}
	if !conv.UpdatedAt.Equal(base) {
		t.Fatalf("updatedAt must be unaffected by a failed send, got %v", conv.UpdatedAt)
	}
	if conv.LastMessage != nil {
		t.Fatalf("summary must be rolled back, got %+v", conv.LastMessage)
	}
}

func TestSendRejectsEmptyDraftBeforeNetwork(t *testing.T) {
	r := newTestRig()
	_, err := r.svc.Send(context.Background(), "C1", models.DraftMessage{Content: "   "})
	if !apiError.IsValidationFailure(err) {
		t.Fatalf("expected validation failure, got %v", err)
	}
	if r.fc.createMessageCalls != 0 {
		t.Fatal("validation failures must not reach the network")
	}
}

func TestMarkReadConservesUnreadAndIsIdempotent(t *testing.T) {
	r := newTestRig()
	base := time.Now().Add(-time.Hour)
	seedConversation(r, "C1", 3, base)
	r.msgs.IngestRemote("C1", []models.Message{
		other("m1", base), other("m2", base.Add(time.Minute)), other("m3", base.Add(2*time.Minute)),
	})
	// direct store seeding bumped nothing; pin unread back to 3
	conv, _ := r.convs.Get("C1")
	if conv.UnreadCount != 3 {
		t.Fatalf("precondition: unread 3, got %d", conv.UnreadCount)
	}

	if err := r.svc.MarkRead(context.Background(), "C1", []string{"m1"}); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	conv, _ = r.convs.Get("C1")
	if conv.UnreadCount != 2 {
		t.Fatalf("expected 3-1=2 unread, got %d", conv.UnreadCount)
	}

	if err := r.svc.MarkRead(context.Background(), "C1", []string{"m1"}); err != nil {
		t.Fatalf("repeat mark read failed: %v", err)
	}
	conv, _ = r.convs.Get("C1")
	if conv.UnreadCount != 2 {
		t.Fatalf("repeated mark read must not change the count, got %d", conv.UnreadCount)
	}
	if r.fc.markReadCalls != 1 {
		t.Fatalf("a no-op mark read must not hit the network, got %d calls", r.fc.markReadCalls)
	}
}

func TestMarkReadFailureRollsBack(t *testing.T) {
	r := newTestRig()
	base := time.Now().Add(-time.Hour)
	seedConversation(r, "C1", 1, base)
	r.msgs.IngestRemote("C1", []models.Message{other("m1", base)})

	r.fc.markMessagesRead = func(ctx context.Context, messageIDs []string) error {
		return apiError.NetworkFailure(nil)
	}

	if err := r.svc.MarkRead(context.Background(), "C1", []string{"m1"}); err == nil {
		t.Fatal("expected mark read error")
	}

	got, _ := r.msgs.Get("C1", "m1")
	if got.Status != models.StatusSent {
		t.Fatalf("status must roll back to SENT, got %s", got.Status)
	}
	conv, _ := r.convs.Get("C1")
	if conv.UnreadCount != 1 {
		t.Fatalf("unread must stay at 1 after rollback, got %d", conv.UnreadCount)
	}
}

func TestCreateConversationFailureLeavesNoPartialState(t *testing.T) {
	r := newTestRig()
	r.fc.createConversation = func(ctx context.Context, req client.CreateConversationRequest) (*models.Conversation, error) {
		return nil, apiError.NetworkFailure(nil)
	}

	initial := &models.DraftMessage{Content: "hello"}
	conv, err := r.svc.CreateConversation(context.Background(), client.CreateConversationRequest{
		Participants: []models.Participant{{ID: "p7"}},
	}, initial)
	if err == nil || conv != nil {
		t.Fatal("expected failure with no conversation")
	}
	if len(r.convs.ListAll()) != 0 {
		t.Fatal("no local conversation may exist after a failed create")
	}
	if r.fc.createMessageCalls != 0 {
		t.Fatal("the initial message must not be sent when creation fails")
	}
}

func TestCreateConversationSendsInitialMessageAfterSuccess(t *testing.T) {
	r := newTestRig()
	now := time.Now()
	r.fc.createConversation = func(ctx context.Context, req client.CreateConversationRequest) (*models.Conversation, error) {
		if len(req.Participants) != 2 {
			t.Fatalf("expected self appended to participants, got %d", len(req.Participants))
		}
		return &models.Conversation{ID: "c9", Participants: req.Participants, Kind: req.Type, CreatedAt: now, UpdatedAt: now}, nil
	}
	r.fc.createMessage = func(ctx context.Context, conversationID string, req client.CreateMessageRequest) (*models.Message, error) {
		return &models.Message{ID: "m1", Content: req.Content, Sender: req.Sender, CreatedAt: time.Now(), Status: models.StatusSent}, nil
	}

	conv, err := r.svc.CreateConversation(context.Background(), client.CreateConversationRequest{
		Participants: []models.Participant{{ID: "p7"}},
	}, &models.DraftMessage{Content: "hello"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, ok := r.convs.Get(conv.ID); !ok {
		t.Fatal("conversation must exist locally after success")
	}
	if len(r.msgs.Messages("c9")) != 1 {
		t.Fatal("initial message must be sent after creation succeeds")
	}
}

func TestDeleteConversationRollsBackOnFailure(t *testing.T) {
	r := newTestRig()
	base := time.Now().Add(-time.Hour)
	seedConversation(r, "C1", 2, base)

	r.fc.deleteConversation = func(ctx context.Context, id string) error {
		return apiError.NetworkFailure(nil)
	}

	if err := r.svc.DeleteConversation(context.Background(), "C1"); err == nil {
		t.Fatal("expected delete error")
	}
	conv, ok := r.convs.Get("C1")
	if !ok || conv.IsArchived {
		t.Fatal("conversation must be restored after a failed delete")
	}
	if conv.UnreadCount != 2 {
		t.Fatalf("restored conversation must keep its unread count, got %d", conv.UnreadCount)
	}
}

func TestDeleteConversationIsIdempotent(t *testing.T) {
	r := newTestRig()
	if err := r.svc.DeleteConversation(context.Background(), "unknown"); err != nil {
		t.Fatalf("deleting an unknown conversation must be a no-op, got %v", err)
	}
	if r.fc.deleteCalls != 0 {
		t.Fatal("a no-op delete must not hit the network")
	}
}

func TestRefreshMessagesIncrementsUnreadWhenNotActive(t *testing.T) {
	r := newTestRig()
	base := time.Now().Add(-time.Hour)
	seedConversation(r, "C1", 0, base)

	newest := base.Add(10 * time.Minute)
	r.fc.listMessages = func(ctx context.Context, conversationID string, q client.MessageQuery) ([]models.Message, error) {
		return []models.Message{
			other("m1", base.Add(5*time.Minute)),
			other("m2", newest),
			{ID: "m3", Sender: models.Participant{ID: "me"}, CreatedAt: base, Status: models.StatusSent},
		}, nil
	}

	if err := r.svc.RefreshMessages(context.Background(), "C1", client.MessageQuery{}); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	conv, _ := r.convs.Get("C1")
	if conv.UnreadCount != 2 {
		t.Fatalf("expected 2 unread (own message excluded), got %d", conv.UnreadCount)
	}
	if !conv.UpdatedAt.Equal(newest) {
		t.Fatalf("expected updatedAt bumped to newest message, got %v", conv.UpdatedAt)
	}
}

func TestRefreshMessagesActiveConversationStaysRead(t *testing.T) {
	r := newTestRig()
	base := time.Now().Add(-time.Hour)
	seedConversation(r, "C1", 0, base)
	r.convs.SetActive("C1")

	r.fc.listMessages = func(ctx context.Context, conversationID string, q client.MessageQuery) ([]models.Message, error) {
		return []models.Message{other("m1", base.Add(time.Minute))}, nil
	}

	if err := r.svc.RefreshMessages(context.Background(), "C1", client.MessageQuery{}); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	conv, _ := r.convs.Get("C1")
	if conv.UnreadCount != 0 {
		t.Fatalf("active conversation must not accumulate unread, got %d", conv.UnreadCount)
	}
}

func TestSupersededFetchResultIsDiscarded(t *testing.T) {
	r := newTestRig()
	seedConversation(r, "C1", 0, time.Now().Add(-time.Hour))

	r.fc.listMessages = func(ctx context.Context, conversationID string, q client.MessageQuery) ([]models.Message, error) {
		// a newer request for the same conversation starts mid-flight
		r.convs.Begin("C1")
		return []models.Message{other("m1", time.Now())}, nil
	}

	if err := r.svc.RefreshMessages(context.Background(), "C1", client.MessageQuery{}); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if len(r.msgs.Messages("C1")) != 0 {
		t.Fatal("a superseded fetch result must be discarded")
	}
}

func TestRefreshConversationsIsStaleWhileRevalidate(t *testing.T) {
	r := newTestRig()
	base := time.Now().Add(-time.Hour)
	seedConversation(r, "C1", 1, base)

	r.fc.listConversations = func(ctx context.Context, userID string, q client.ConversationQuery) ([]models.Conversation, error) {
		return nil, apiError.NetworkFailure(nil)
	}
	if err := r.svc.RefreshConversations(context.Background(), client.ConversationQuery{}); err == nil {
		t.Fatal("expected refresh error")
	}
	if r.svc.ConversationsError() == nil {
		t.Fatal("list error flag must be set")
	}
	if len(r.convs.List()) != 1 {
		t.Fatal("a failed refresh must preserve the last-known-good list")
	}

	r.fc.listConversations = func(ctx context.Context, userID string, q client.ConversationQuery) ([]models.Conversation, error) {
		return []models.Conversation{{ID: "C2", UpdatedAt: time.Now()}}, nil
	}
	if err := r.svc.RefreshConversations(context.Background(), client.ConversationQuery{}); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if r.svc.ConversationsError() != nil {
		t.Fatal("list error flag must clear on success")
	}
	if len(r.convs.List()) != 2 {
		t.Fatalf("expected both conversations, got %d", len(r.convs.List()))
	}
}

type countingNotifier struct {
	calls int
	last  int
}

func (n *countingNotifier) NotifyUnread(ctx context.Context, recipient string, conv models.Conversation, newCount int) error {
	n.calls++
	n.last = newCount
	return nil
}

func TestUnreadNotifierFiresForInactiveConversations(t *testing.T) {
	fc := &fakeClient{}
	msgs := store.NewMessageStore("me")
	convs := store.NewConversationStore()
	dir := store.NewParticipantDirectory(nil)
	notifier := &countingNotifier{}
	conf := &config.Config{CurrentUserID: "me", CurrentUserEmail: "me@talentlink.io"}
	svc := NewSyncService(fc, msgs, convs, dir, nil, notifier, conf)

	base := time.Now().Add(-time.Hour)
	convs.Upsert(models.Conversation{ID: "C1", CreatedAt: base, UpdatedAt: base})
	fc.listMessages = func(ctx context.Context, conversationID string, q client.MessageQuery) ([]models.Message, error) {
		return []models.Message{other("m1", base.Add(time.Minute))}, nil
	}

	if err := svc.RefreshMessages(context.Background(), "C1", client.MessageQuery{}); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if notifier.calls != 1 || notifier.last != 1 {
		t.Fatalf("expected one notification for one new message, got %+v", notifier)
	}
}
