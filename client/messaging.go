package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/talentlink/messaging/config"
	apiError "github.com/talentlink/messaging/errors"
	"github.com/talentlink/messaging/models"
)

// ConversationQuery mirrors the upstream list endpoint's query parameters.
type ConversationQuery struct {
	Skip       int
	Limit      int
	UnreadOnly bool
	EntityType string
	EntityID   string
}

// MessageQuery pages through a conversation's messages.
type MessageQuery struct {
	Skip   int
	Limit  int
	Before string
}

type CreateConversationRequest struct {
	Title              string                  `json:"title,omitempty"`
	Participants       []models.Participant    `json:"participants"`
	Type               models.ConversationKind `json:"type"`
	AssociatedEntities []models.EntityRef      `json:"associated_entities,omitempty"`
}

type CreateMessageRequest struct {
	Content          string               `json:"content"`
	Sender           models.Participant   `json:"sender"`
	Recipients       []models.Participant `json:"recipients"`
	Attachments      []models.Attachment  `json:"attachments,omitempty"`
	EntityReferences []models.EntityRef   `json:"entity_references,omitempty"`
}

// ConversationDetail is the single-conversation payload: metadata plus the
// initial message page.
type ConversationDetail struct {
	Conversation models.Conversation `json:"conversation"`
	Messages     []models.Message    `json:"messages"`
}

// MessagingService is the remote collaborator the sync layer talks to. All ids
// are opaque strings; timestamps are ISO-8601 on the wire.
type MessagingService interface {
	ListConversations(ctx context.Context, userID string, q ConversationQuery) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*ConversationDetail, error)
	CreateConversation(ctx context.Context, req CreateConversationRequest) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, q MessageQuery) ([]models.Message, error)
	CreateMessage(ctx context.Context, conversationID string, req CreateMessageRequest) (*models.Message, error)
	MarkMessagesRead(ctx context.Context, messageIDs []string) error
	DeleteConversation(ctx context.Context, id string) error
	UnreadCount(ctx context.Context, userID string) (int, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
}

// messagingClient struct
type messagingClient struct {
	baseURL string
	http    *http.Client
}

// NewMessagingClient creates a new instance of MessagingService backed by the
// configured upstream base URL.
func NewMessagingClient(conf *config.Config) MessagingService {
	return &messagingClient{
		baseURL: strings.TrimRight(conf.MessagingBaseURL, "/"),
		http: &http.Client{
			Timeout: time.Duration(conf.MessagingTimeoutSeconds) * time.Second,
		},
	}
}

func (c *messagingClient) ListConversations(ctx context.Context, userID string, q ConversationQuery) ([]models.Conversation, error) {
	v := url.Values{}
	v.Set("user_id", userID)
	v.Set("skip", strconv.Itoa(q.Skip))
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.UnreadOnly {
		v.Set("unread_only", "true")
	}
	if q.EntityType != "" {
		v.Set("entity_type", q.EntityType)
		v.Set("entity_id", q.EntityID)
	}

	var out []models.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations?"+v.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *messagingClient) GetConversation(ctx context.Context, id string) (*ConversationDetail, error) {
	var out ConversationDetail
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *messagingClient) CreateConversation(ctx context.Context, req CreateConversationRequest) (*models.Conversation, error) {
	var out models.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *messagingClient) ListMessages(ctx context.Context, conversationID string, q MessageQuery) ([]models.Message, error) {
	v := url.Values{}
	v.Set("skip", strconv.Itoa(q.Skip))
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Before != "" {
		v.Set("before", q.Before)
	}

	var out []models.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages?" + v.Encode()
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *messagingClient) CreateMessage(ctx context.Context, conversationID string, req CreateMessageRequest) (*models.Message, error) {
	var out models.Message
	path := "/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *messagingClient) MarkMessagesRead(ctx context.Context, messageIDs []string) error {
	body := struct {
		MessageIDs []string `json:"message_ids"`
	}{MessageIDs: messageIDs}
	return c.do(ctx, http.MethodPost, "/messages/read", body, nil)
}

func (c *messagingClient) DeleteConversation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/conversations/"+url.PathEscape(id), nil, nil)
}

func (c *messagingClient) UnreadCount(ctx context.Context, userID string) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	v := url.Values{}
	v.Set("user_id", userID)
	if err := c.do(ctx, http.MethodGet, "/messages/unread-count?"+v.Encode(), nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *messagingClient) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	var out models.Participant
	if err := c.do(ctx, http.MethodGet, "/participants/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do issues one request. Connectivity problems become NetworkFailure, non-2xx
// responses become ServerError with the body attached; there is exactly one
// attempt per call.
func (c *messagingClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apiError.NetworkFailure(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return apiError.ServerError(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, fmt.Sprintf("decoding %s %s response", method, path))
	}
	return nil
}
