package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/talentlink/messaging/config"
	apiError "github.com/talentlink/messaging/errors"
	"github.com/talentlink/messaging/models"
)

func newTestClient(handler http.Handler) (MessagingService, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewMessagingClient(&config.Config{
		MessagingBaseURL:        srv.URL,
		MessagingTimeoutSeconds: 2,
	})
	return c, srv
}

func TestListConversationsSendsQueryParams(t *testing.T) {
	var gotQuery map[string]string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		json.NewEncoder(w).Encode([]models.Conversation{{ID: "c1"}})
	}))
	defer srv.Close()

	convs, err := c.ListConversations(context.Background(), "me", ConversationQuery{
		Skip:       10,
		Limit:      25,
		UnreadOnly: true,
		EntityType: "job",
		EntityID:   "j5",
	})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(convs) != 1 || convs[0].ID != "c1" {
		t.Fatalf("unexpected result %+v", convs)
	}

	want := map[string]string{
		"user_id": "me", "skip": "10", "limit": "25",
		"unread_only": "true", "entity_type": "job", "entity_id": "j5",
	}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Errorf("query %s: expected %q, got %q", k, v, gotQuery[k])
		}
	}
}

func TestCreateMessagePostsBodyAndDecodesResponse(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/conversations/c1/messages" {
			t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var req CreateMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad body: %v", err)
		}
		if req.Content != "Hi" || req.Sender.ID != "me" {
			t.Fatalf("unexpected request %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Message{ID: "m99", Content: req.Content, Status: models.StatusSent})
	}))
	defer srv.Close()

	msg, err := c.CreateMessage(context.Background(), "c1", CreateMessageRequest{
		Content: "Hi",
		Sender:  models.Participant{ID: "me"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if msg.ID != "m99" {
		t.Fatalf("expected m99, got %s", msg.ID)
	}
}

func TestMarkMessagesReadSendsIDs(t *testing.T) {
	var got []string
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/read" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			MessageIDs []string `json:"message_ids"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		got = req.MessageIDs
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := c.MarkMessagesRead(context.Background(), []string{"m1", "m2"}); err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ids, got %v", got)
	}
}

func TestNon2xxBecomesServerError(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conversation is locked", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := c.GetConversation(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected error")
	}
	if apiError.IsNetworkFailure(err) {
		t.Fatal("an upstream response is not a network failure")
	}
	if apiError.Status(err) != http.StatusBadGateway {
		t.Fatalf("expected bad gateway surface, got %d", apiError.Status(err))
	}
}

func TestConnectionErrorBecomesNetworkFailure(t *testing.T) {
	c, srv := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := c.UnreadCount(context.Background(), "me")
	if !apiError.IsNetworkFailure(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
}
