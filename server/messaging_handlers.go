package server

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/talentlink/messaging/client"
	apiError "github.com/talentlink/messaging/errors"
	"github.com/talentlink/messaging/models"
	"github.com/talentlink/messaging/server/response"
	"github.com/talentlink/messaging/services"
)

// handleGetConversations refreshes the list from upstream, then serves the
// projected view. A refresh failure keeps the last-known-good list and is
// reported alongside it instead of blanking the response.
func (s *Server) handleGetConversations() gin.HandlerFunc {
	return func(c *gin.Context) {
		q := client.ConversationQuery{
			Skip:       atoiDefault(c.Query("skip"), 0),
			Limit:      atoiDefault(c.Query("limit"), 50),
			UnreadOnly: c.Query("unread_only") == "true",
			EntityType: c.Query("entity_type"),
			EntityID:   c.Query("entity_id"),
		}
		if c.Query("cached") != "true" {
			if err := s.SyncService.RefreshConversations(c.Request.Context(), q); err != nil {
				log.Printf("conversation refresh failed: %v", err)
			}
		}

		projected := services.ProjectConversations(s.SyncService.Conversations(), services.ConversationListQuery{
			SearchTerm:   c.Query("search"),
			ActiveFilter: models.ConversationFilter(c.Query("filter")),
		})

		payload := gin.H{
			"conversations": projected,
			"unread_total":  s.SyncService.UnreadTotal(),
		}
		if err := s.SyncService.ConversationsError(); err != nil {
			payload["conversations_error"] = err.Error()
		}
		response.JSON(c, "conversations retrieved", http.StatusOK, payload, nil)
	}
}

func (s *Server) handleCreateConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title              string               `json:"title"`
			Participants       []models.Participant `json:"participants" binding:"required,min=1"`
			Type               string               `json:"type"`
			AssociatedEntities []models.EntityRef   `json:"associated_entities"`
			InitialMessage     string               `json:"initial_message"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		var initial *models.DraftMessage
		if req.InitialMessage != "" {
			initial = &models.DraftMessage{Content: req.InitialMessage, Recipients: req.Participants}
		}
		conv, err := s.SyncService.CreateConversation(c.Request.Context(), client.CreateConversationRequest{
			Title:              req.Title,
			Participants:       req.Participants,
			Type:               models.ConversationKind(req.Type),
			AssociatedEntities: req.AssociatedEntities,
		}, initial)
		if conv == nil {
			response.JSON(c, "could not create conversation", apiError.Status(err), nil, err)
			return
		}
		response.JSON(c, "conversation created", http.StatusCreated, conv, err)
	}
}

// handleGetConversation opens the conversation: fetches its detail, marks it
// active and acknowledges unread messages.
func (s *Server) handleGetConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.SyncService.OpenConversation(c.Request.Context(), id); err != nil {
			log.Printf("open conversation %s: %v", id, err)
		}

		conv, ok := conversationByID(s.SyncService.Conversations(), id)
		if !ok {
			response.JSON(c, "conversation not found", http.StatusNotFound, nil, apiError.ErrNotFound)
			return
		}

		groups := services.GroupMessagesByDay(s.SyncService.Messages(id))
		payload := gin.H{
			"conversation": conv,
			"day_groups":   groups,
		}
		if err := s.SyncService.MessagesError(id); err != nil {
			payload["messages_error"] = err.Error()
		}
		response.JSON(c, "conversation retrieved", http.StatusOK, payload, nil)
	}
}

func (s *Server) handleGetMessages() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		q := client.MessageQuery{
			Skip:   atoiDefault(c.Query("skip"), 0),
			Limit:  atoiDefault(c.Query("limit"), 50),
			Before: c.Query("before"),
		}
		if err := s.SyncService.RefreshMessages(c.Request.Context(), id, q); err != nil {
			log.Printf("message refresh failed for %s: %v", id, err)
		}

		msgs := s.SyncService.Messages(id)
		payload := gin.H{
			"day_groups": services.GroupMessagesByDay(msgs),
		}
		if err := s.SyncService.MessagesError(id); err != nil {
			payload["messages_error"] = err.Error()
		}
		response.JSON(c, "messages retrieved", http.StatusOK, payload, nil)
	}
}

// handleSendMessage performs one optimistic send. On failure the FAILED
// message is returned with the error so the caller can offer a retry.
func (s *Server) handleSendMessage() gin.HandlerFunc {
	return func(c *gin.Context) {
		var draft models.DraftMessage
		if err := c.ShouldBindJSON(&draft); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		msg, err := s.SyncService.Send(c.Request.Context(), c.Param("id"), draft)
		if err != nil {
			if apiError.IsValidationFailure(err) {
				response.JSON(c, "invalid message", http.StatusBadRequest, nil, err)
				return
			}
			response.JSON(c, "send failed", apiError.Status(err), msg, err)
			return
		}
		response.JSON(c, "message sent", http.StatusCreated, msg, nil)
	}
}

func (s *Server) handleMarkRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			MessageIDs []string `json:"message_ids"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}

		id := c.Param("id")
		var err error
		if len(req.MessageIDs) == 0 {
			err = s.SyncService.MarkConversationRead(c.Request.Context(), id)
		} else {
			err = s.SyncService.MarkRead(c.Request.Context(), id, req.MessageIDs)
		}
		if err != nil {
			response.JSON(c, "mark read failed", apiError.Status(err), nil, err)
			return
		}
		response.JSON(c, "messages marked read", http.StatusOK, gin.H{
			"unread_total": s.SyncService.UnreadTotal(),
		}, nil)
	}
}

func (s *Server) handleDeleteConversation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.SyncService.DeleteConversation(c.Request.Context(), id); err != nil {
			response.JSON(c, "delete failed", apiError.Status(err), nil, err)
			return
		}
		response.JSON(c, "conversation deleted", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleUnreadCount() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.JSON(c, "unread count", http.StatusOK, gin.H{
			"count": s.SyncService.UnreadTotal(),
		}, nil)
	}
}

func (s *Server) handleGetParticipant() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.Directory.Lookup(c.Request.Context(), c.Param("id"))
		if err != nil {
			response.JSON(c, "participant not found", apiError.Status(err), nil, err)
			return
		}
		response.JSON(c, "participant retrieved", http.StatusOK, p, nil)
	}
}

func conversationByID(convs []models.Conversation, id string) (models.Conversation, bool) {
	for _, c := range convs {
		if c.ID == id {
			return c, true
		}
	}
	return models.Conversation{}, false
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
