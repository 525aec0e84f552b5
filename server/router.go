package server

import (
	"fmt"
	"os"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func (s *Server) setupRouter() *gin.Engine {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "test" {
		r := gin.New()
		s.defineRoutes(r)
		return r
	}

	r := gin.New()
	r.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	s.defineRoutes(r)

	return r
}

func (s *Server) defineRoutes(router *gin.Engine) {
	store := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Second,
		Limit: 5,
	})
	limitSends := limitRateForSends(store)

	apirouter := router.Group("/api/v1")
	apirouter.GET("/conversations", s.handleGetConversations())
	apirouter.POST("/conversations", limitSends, s.handleCreateConversation())
	apirouter.GET("/conversations/:id", s.handleGetConversation())
	apirouter.DELETE("/conversations/:id", s.handleDeleteConversation())
	apirouter.GET("/conversations/:id/messages", s.handleGetMessages())
	apirouter.POST("/conversations/:id/messages", limitSends, s.handleSendMessage())
	apirouter.POST("/conversations/:id/read", s.handleMarkRead())
	apirouter.GET("/messages/unread-count", s.handleUnreadCount())
	apirouter.GET("/participants/:id", s.handleGetParticipant())

	compose := apirouter.Group("/compose")
	compose.GET("", s.handleComposeState())
	compose.POST("/start", s.handleComposeStart())
	compose.POST("/recipients", s.handleComposeAddRecipient())
	compose.DELETE("/recipients/:id", s.handleComposeRemoveRecipient())
	compose.PUT("/draft", s.handleComposeDraft())
	compose.POST("/commit", limitSends, s.handleComposeCommit())
}
