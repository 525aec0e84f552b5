package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apiError "github.com/talentlink/messaging/errors"
	"github.com/talentlink/messaging/models"
	"github.com/talentlink/messaging/server/response"
)

func (s *Server) handleComposeState() gin.HandlerFunc {
	return func(c *gin.Context) {
		isComposing, recipients, draft := s.Compose.Snapshot()
		response.JSON(c, "compose state", http.StatusOK, gin.H{
			"is_composing": isComposing,
			"recipients":   recipients,
			"draft_text":   draft,
		}, nil)
	}
}

func (s *Server) handleComposeStart() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.Compose.Start()
		response.JSON(c, "compose started", http.StatusOK, nil, nil)
	}
}

func (s *Server) handleComposeAddRecipient() gin.HandlerFunc {
	return func(c *gin.Context) {
		var p models.Participant
		if err := c.ShouldBindJSON(&p); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}
		if p.ID == "" {
			response.JSON(c, "recipient id is required", http.StatusBadRequest, nil, nil)
			return
		}
		s.Compose.AddRecipient(p)
		_, recipients, _ := s.Compose.Snapshot()
		response.JSON(c, "recipient added", http.StatusOK, recipients, nil)
	}
}

func (s *Server) handleComposeRemoveRecipient() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.Compose.RemoveRecipient(c.Param("id"))
		_, recipients, _ := s.Compose.Snapshot()
		response.JSON(c, "recipient removed", http.StatusOK, recipients, nil)
	}
}

func (s *Server) handleComposeDraft() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			response.JSON(c, "", http.StatusBadRequest, nil, err)
			return
		}
		s.Compose.SetDraft(req.Text)
		response.JSON(c, "draft updated", http.StatusOK, nil, nil)
	}
}

// handleComposeCommit converts the session into a conversation. On failure the
// session is preserved so nothing typed is lost.
func (s *Server) handleComposeCommit() gin.HandlerFunc {
	return func(c *gin.Context) {
		conv, err := s.Compose.Commit(c.Request.Context(), s.SyncService)
		if err != nil {
			response.JSON(c, "compose failed", apiError.Status(err), nil, err)
			return
		}
		response.JSON(c, "conversation created", http.StatusCreated, conv, nil)
	}
}
